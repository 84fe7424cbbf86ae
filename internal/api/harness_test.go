package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/studyplus/tracker/internal/analytics"
	"github.com/studyplus/tracker/internal/auth"
	"github.com/studyplus/tracker/internal/library"
	"github.com/studyplus/tracker/internal/middleware"
	"github.com/studyplus/tracker/internal/note"
	"github.com/studyplus/tracker/internal/playlist"
	"github.com/studyplus/tracker/internal/video"
	"github.com/studyplus/tracker/internal/watch"
	"github.com/studyplus/tracker/internal/youtube"
)

const testSecret = "test-secret-for-handler-tests-0123456789"

// fakeSource serves canned YouTube metadata.
type fakeSource struct {
	videos    map[string]youtube.Video
	playlists map[string][]youtube.PlaylistItem
	err       error
}

func (f *fakeSource) GetVideo(ctx context.Context, id string) (*youtube.Video, error) {
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.videos[id]
	if !ok {
		return nil, youtube.ErrNotFound
	}
	return &v, nil
}

func (f *fakeSource) GetVideos(ctx context.Context, ids []string) ([]youtube.Video, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []youtube.Video
	for _, id := range ids {
		if v, ok := f.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeSource) PlaylistItems(ctx context.Context, id string, maxPages int) ([]youtube.PlaylistItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	items, ok := f.playlists[id]
	if !ok {
		return nil, youtube.ErrNotFound
	}
	return items, nil
}

// fakeSearcher records queries and returns canned results.
type fakeSearcher struct {
	queries []string
	results []youtube.Video
	err     error
	purged  int64
}

func (f *fakeSearcher) Search(ctx context.Context, query string) ([]youtube.Video, error) {
	f.queries = append(f.queries, query)
	return f.results, f.err
}

func (f *fakeSearcher) Purge(ctx context.Context) (int64, error) {
	return f.purged, f.err
}

type testEnv struct {
	t           *testing.T
	videos      *video.InMemoryRepository
	notes       *note.InMemoryRepository
	playlists   *playlist.InMemoryRepository
	store       *watch.InMemoryStore
	broadcaster *watch.Broadcaster
	source      *fakeSource
	searcher    *fakeSearcher
	tokens      *auth.Service
	handler     http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	videos := video.NewInMemoryRepository()
	notes := note.NewInMemoryRepository(videos)
	playlists := playlist.NewInMemoryRepository(videos)
	store := watch.NewInMemoryStore(videos)
	broadcaster := watch.NewBroadcaster()
	engine := watch.NewEngine(store, watch.WithPublisher(broadcaster))
	source := &fakeSource{
		videos:    make(map[string]youtube.Video),
		playlists: make(map[string][]youtube.PlaylistItem),
	}
	importer := library.NewImporter(videos, playlists, source)
	searcher := &fakeSearcher{}
	tokens := auth.NewService(testSecret)

	mux := NewRouter(RouterConfig{
		Auth:           tokens,
		RateLimitStore: middleware.NewInMemoryRateLimitStore(),
		Health:         NewHealthHandlers(HealthHandlersConfig{}),
		Videos:         NewVideoHandlers(videos, notes, importer, true),
		History:        NewHistoryHandlers(engine, analytics.NewService(store, videos)),
		Notes:          NewNoteHandlers(notes, videos),
		Playlists:      NewPlaylistHandlers(playlists, videos, importer),
		Search:         NewSearchHandlers(searcher),
		Progress:       NewProgressHandlers(broadcaster, []string{"*"}),
	})

	return &testEnv{
		t:           t,
		videos:      videos,
		notes:       notes,
		playlists:   playlists,
		store:       store,
		broadcaster: broadcaster,
		source:      source,
		searcher:    searcher,
		tokens:      tokens,
		handler:     mux,
	}
}

func (e *testEnv) token(userID string) string {
	e.t.Helper()
	tok, err := e.tokens.GenerateAccessToken(userID)
	if err != nil {
		e.t.Fatalf("failed to mint token: %v", err)
	}
	return tok
}

// do sends a request as userID; an empty userID sends no token.
func (e *testEnv) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(userID))
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) saveVideo(userID, youtubeID string, duration int) *video.Video {
	e.t.Helper()
	v := &video.Video{UserID: userID, YouTubeID: youtubeID, Title: "Video " + youtubeID, Duration: duration}
	if _, err := e.videos.Save(context.Background(), v); err != nil {
		e.t.Fatalf("failed to save video: %v", err)
	}
	return v
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response: %v, body: %s", err, w.Body.String())
	}
	return out
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected status %d, got %d, body: %s", want, w.Code, w.Body.String())
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, code, message string) {
	t.Helper()
	expectStatus(t, w, status)
	resp := decode[ErrorResponse](t, w)
	if resp.Error.Code != code {
		t.Errorf("expected error code %s, got %s", code, resp.Error.Code)
	}
	if message != "" && resp.Error.Message != message {
		t.Errorf("expected message %q, got %q", message, resp.Error.Message)
	}
}
