package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/studyplus/tracker/internal/validate"
	"github.com/studyplus/tracker/internal/youtube"
)

// VideoSearcher searches YouTube through the result cache.
type VideoSearcher interface {
	Search(ctx context.Context, query string) ([]youtube.Video, error)
	Purge(ctx context.Context) (int64, error)
}

// SearchHandlers serves YouTube search.
type SearchHandlers struct {
	searcher VideoSearcher
}

// NewSearchHandlers creates a new SearchHandlers instance.
func NewSearchHandlers(searcher VideoSearcher) *SearchHandlers {
	return &SearchHandlers{searcher: searcher}
}

// Search handles GET /search?q=.
func (h *SearchHandlers) Search(w http.ResponseWriter, r *http.Request) {
	query, err := validate.SearchQuery(r.URL.Query().Get("q"))
	if err != nil {
		if errors.Is(err, validate.ErrEmpty) {
			writeFailure(w, r, http.StatusBadRequest, ErrCodeValidation, "Query is required")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	results, err := h.searcher.Search(r.Context(), query)
	if err != nil {
		if errors.Is(err, youtube.ErrQuotaExceeded) || errors.Is(err, youtube.ErrNotConfigured) {
			writeServiceError(w, r, err)
			return
		}
		slog.ErrorContext(r.Context(), "search failed", "error", err)
		writeFailure(w, r, http.StatusInternalServerError, ErrCodeInternal, "Search failed")
		return
	}
	if results == nil {
		results = []youtube.Video{}
	}
	writeJSON(w, r, http.StatusOK, results)
}

type purgeResponse struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// PurgeCache handles DELETE /search/cache.
func (h *SearchHandlers) PurgeCache(w http.ResponseWriter, r *http.Request) {
	n, err := h.searcher.Purge(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "search cache cleanup failed", "error", err)
		writeFailure(w, r, http.StatusInternalServerError, ErrCodeInternal, "Cleanup failed")
		return
	}
	writeJSON(w, r, http.StatusOK, purgeResponse{Message: "Expired cache cleared", Count: n})
}
