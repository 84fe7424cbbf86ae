package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/studyplus/tracker/internal/analytics"
	"github.com/studyplus/tracker/internal/middleware"
	"github.com/studyplus/tracker/internal/watch"
)

// HistoryLimit is the number of entries GET /history returns.
const HistoryLimit = 50

// WatchEngine records watch time and manages viewing history.
type WatchEngine interface {
	ReportWatchTime(ctx context.Context, userID, videoID string, seconds float64) (*watch.HistoryEntry, error)
	History(ctx context.Context, userID string, limit int) ([]*watch.HistoryEntry, error)
	DeleteEntry(ctx context.Context, userID, entryID string) error
	ClearHistory(ctx context.Context, userID string) (int64, error)
}

// AnalyticsReader computes a user's analytics view.
type AnalyticsReader interface {
	GetAnalytics(ctx context.Context, userID string) (*analytics.View, error)
}

// ReportWatchTimeRequest is the body of POST /history.
// WatchTime is in seconds and may be fractional.
type ReportWatchTimeRequest struct {
	VideoID   string   `json:"videoId"`
	WatchTime *float64 `json:"watchTime"`
}

// HistoryHandlers serves watch-time reports, viewing history and analytics.
type HistoryHandlers struct {
	engine    WatchEngine
	analytics AnalyticsReader
}

// NewHistoryHandlers creates a new HistoryHandlers instance.
func NewHistoryHandlers(engine WatchEngine, analytics AnalyticsReader) *HistoryHandlers {
	return &HistoryHandlers{engine: engine, analytics: analytics}
}

// ReportWatchTime handles POST /history.
func (h *HistoryHandlers) ReportWatchTime(w http.ResponseWriter, r *http.Request) {
	var req ReportWatchTimeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	videoID := strings.TrimSpace(req.VideoID)
	if videoID == "" || req.WatchTime == nil {
		writeFailure(w, r, http.StatusBadRequest, ErrCodeValidation, "Missing required fields")
		return
	}

	entry, err := h.engine.ReportWatchTime(r.Context(), middleware.GetUserID(r.Context()), videoID, *req.WatchTime)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, entry)
}

// ListHistory handles GET /history.
func (h *HistoryHandlers) ListHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.engine.History(r.Context(), middleware.GetUserID(r.Context()), HistoryLimit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*watch.HistoryEntry{}
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// DeleteHistory handles DELETE /history?id= and DELETE /history?clearAll=true.
func (h *HistoryHandlers) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	q := r.URL.Query()

	switch {
	case q.Get("clearAll") == "true":
		if _, err := h.engine.ClearHistory(ctx, userID); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, message{Message: "History cleared"})
	case q.Get("id") != "":
		if err := h.engine.DeleteEntry(ctx, userID, q.Get("id")); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, message{Message: "Item deleted"})
	default:
		writeFailure(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Missing parameters")
	}
}

// GetAnalytics handles GET /analytics.
func (h *HistoryHandlers) GetAnalytics(w http.ResponseWriter, r *http.Request) {
	view, err := h.analytics.GetAnalytics(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}
