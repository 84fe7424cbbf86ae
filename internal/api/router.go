package api

import (
	"log/slog"
	"net/http"

	"github.com/studyplus/tracker/internal/middleware"
)

// RouterConfig wires handlers and request guards into a ServeMux.
type RouterConfig struct {
	Auth middleware.TokenValidator

	// RateLimitStore backs both limits. Nil disables rate limiting.
	RateLimitStore middleware.RateLimitStore
	// GlobalLimit applies per user to every authenticated route.
	// Zero means middleware.DefaultGlobalLimit.
	GlobalLimit middleware.RateLimitConfig
	// SearchLimit applies per client IP to GET /search.
	// Zero means middleware.DefaultSearchLimit.
	SearchLimit middleware.RateLimitConfig
	Metrics     *middleware.Metrics

	// MetricsHandler serves /metrics when set.
	MetricsHandler http.Handler

	Health    *HealthHandlers
	Videos    *VideoHandlers
	History   *HistoryHandlers
	Notes     *NoteHandlers
	Playlists *PlaylistHandlers
	Search    *SearchHandlers
	Progress  *ProgressHandlers
}

// NewRouter registers every API route. Everything except /health, /ready
// and /metrics requires a bearer token.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	if cfg.GlobalLimit.RequestsPerWindow == 0 {
		cfg.GlobalLimit = middleware.DefaultGlobalLimit()
	}
	if cfg.SearchLimit.RequestsPerWindow == 0 {
		cfg.SearchLimit = middleware.DefaultSearchLimit()
	}

	requireAuth := middleware.RequireAuth(cfg.Auth)
	limit := func(config middleware.RateLimitConfig, key middleware.KeyFunc, h http.Handler) http.Handler {
		if cfg.RateLimitStore == nil {
			return h
		}
		return middleware.RateLimiter(cfg.RateLimitStore, config, key, cfg.Metrics)(h)
	}
	authed := func(h http.HandlerFunc) http.Handler {
		return requireAuth(limit(cfg.GlobalLimit, middleware.UserKeyFunc(), h))
	}

	mux := http.NewServeMux()

	if cfg.Health != nil {
		mux.HandleFunc("GET /health", cfg.Health.Health)
		mux.HandleFunc("GET /ready", cfg.Health.Ready)
	}
	if cfg.MetricsHandler != nil {
		mux.Handle("GET /metrics", cfg.MetricsHandler)
	}

	if h := cfg.Videos; h != nil {
		mux.Handle("GET /videos", authed(h.ListVideos))
		mux.Handle("POST /videos", authed(h.SaveVideo))
		mux.Handle("DELETE /videos", authed(h.ClearLibrary))
		mux.Handle("POST /videos/add", authed(h.AddVideo))
		mux.Handle("POST /videos/update-durations", authed(h.UpdateDurations))
		mux.Handle("GET /videos/{id}", authed(h.GetVideo))
		mux.Handle("PATCH /videos/{id}", authed(h.UpdateVideo))
		mux.Handle("DELETE /videos/{id}", authed(h.DeleteVideo))
	}

	if h := cfg.History; h != nil {
		mux.Handle("GET /history", authed(h.ListHistory))
		mux.Handle("POST /history", authed(h.ReportWatchTime))
		mux.Handle("DELETE /history", authed(h.DeleteHistory))
		mux.Handle("GET /analytics", authed(h.GetAnalytics))
	}

	if h := cfg.Notes; h != nil {
		mux.Handle("GET /notes", authed(h.ListNotes))
		mux.Handle("POST /notes", authed(h.CreateNote))
		mux.Handle("PATCH /notes/{id}", authed(h.UpdateNote))
		mux.Handle("DELETE /notes/{id}", authed(h.DeleteNote))
	}

	if h := cfg.Playlists; h != nil {
		mux.Handle("GET /playlists", authed(h.ListPlaylists))
		mux.Handle("POST /playlists", authed(h.CreatePlaylist))
		mux.Handle("POST /playlists/import", authed(h.ImportPlaylist))
		mux.Handle("GET /playlists/{id}", authed(h.GetPlaylist))
		mux.Handle("PATCH /playlists/{id}", authed(h.UpdatePlaylist))
		mux.Handle("DELETE /playlists/{id}", authed(h.DeletePlaylist))
		mux.Handle("GET /playlists/{id}/videos", authed(h.ListPlaylistVideos))
		mux.Handle("POST /playlists/{id}/videos", authed(h.AddPlaylistVideo))
		mux.Handle("DELETE /playlists/{id}/videos", authed(h.RemovePlaylistVideo))
	}

	if h := cfg.Search; h != nil {
		mux.Handle("GET /search", requireAuth(limit(cfg.SearchLimit, middleware.IPKeyFunc(), http.HandlerFunc(h.Search))))
		mux.Handle("DELETE /search/cache", authed(h.PurgeCache))
	}

	if h := cfg.Progress; h != nil {
		// No rate limit: the connection is long-lived.
		mux.Handle("GET /progress/ws", requireAuth(http.HandlerFunc(h.Subscribe)))
	}

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, r, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
	})

	return mux
}

// MiddlewareConfig configures the request middleware applied around the router.
type MiddlewareConfig struct {
	Logger      *slog.Logger
	ServiceName string
	// Metrics records HTTP metrics when set.
	Metrics     *middleware.Metrics
	CORSOrigins []string
}

// Wrap applies the request middleware, outermost first: request ID, logging,
// tracing, HTTP metrics, CORS.
func Wrap(h http.Handler, cfg MiddlewareConfig) http.Handler {
	h = middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins))(h)
	if cfg.Metrics != nil {
		h = middleware.HTTPMetrics(cfg.Metrics)(h)
	}
	h = middleware.Tracing(cfg.ServiceName)(h)
	h = middleware.Logging(cfg.Logger)(h)
	return middleware.RequestID(h)
}
