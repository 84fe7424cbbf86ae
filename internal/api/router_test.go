package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouter_PublicRoutes(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/health", "/ready"} {
		w := env.do(http.MethodGet, path, "", nil)
		expectStatus(t, w, http.StatusOK)
	}

	// /metrics is only mounted when a handler is configured.
	w := env.do(http.MethodGet, "/metrics", "", nil)
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound, "")

	mux := NewRouter(RouterConfig{
		Auth: env.tokens,
		MetricsHandler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "# metrics" {
		t.Errorf("unexpected /metrics response %d %q", rec.Code, rec.Body.String())
	}
}

func TestRouter_ProtectedRoutes(t *testing.T) {
	env := newTestEnv(t)

	routes := []struct{ method, path string }{
		{http.MethodGet, "/videos"},
		{http.MethodPost, "/videos/add"},
		{http.MethodPatch, "/videos/v1"},
		{http.MethodPost, "/history"},
		{http.MethodGet, "/analytics"},
		{http.MethodGet, "/notes"},
		{http.MethodDelete, "/notes/n1"},
		{http.MethodPost, "/playlists/import"},
		{http.MethodGet, "/playlists/p1/videos"},
		{http.MethodGet, "/search?q=go"},
		{http.MethodDelete, "/search/cache"},
	}
	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			w := env.do(rt.method, rt.path, "", nil)
			expectError(t, w, http.StatusUnauthorized, ErrCodeAuthFailed, "")
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/videos", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	env.handler.ServeHTTP(w, req)
	expectError(t, w, http.StatusUnauthorized, ErrCodeAuthFailed, "Invalid or expired token")
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/nope", "alice", nil)
	expectError(t, w, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
}
