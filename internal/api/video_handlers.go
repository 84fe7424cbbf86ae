package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/studyplus/tracker/internal/library"
	"github.com/studyplus/tracker/internal/middleware"
	"github.com/studyplus/tracker/internal/note"
	"github.com/studyplus/tracker/internal/validate"
	"github.com/studyplus/tracker/internal/video"
	"github.com/studyplus/tracker/internal/youtube"
)

// LibraryImporter adds YouTube content to a user's library.
type LibraryImporter interface {
	AddByURL(ctx context.Context, userID, rawURL string) (*video.Video, bool, error)
	ImportPlaylist(ctx context.Context, userID, rawURL, name string) (*library.ImportResult, error)
	RefreshDurations(ctx context.Context, userID string) (library.RefreshResult, error)
}

// SaveVideoRequest is the body of POST /videos.
type SaveVideoRequest struct {
	YouTubeID   string `json:"youtubeId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
	Channel     string `json:"channel"`
	Duration    int    `json:"duration"`
}

// AddVideoRequest is the body of POST /videos/add.
type AddVideoRequest struct {
	URL string `json:"url"`
}

// UpdateVideoRequest is the body of PATCH /videos/{id}.
type UpdateVideoRequest struct {
	Progress  *int  `json:"progress"`
	Completed *bool `json:"completed"`
}

// VideoWithNotes is a library video with its notes in playback order.
type VideoWithNotes struct {
	*video.Video
	Notes []*note.Note `json:"notes"`
}

// VideoHandlers serves the user's video library.
type VideoHandlers struct {
	videos            video.Repository
	notes             note.Repository
	importer          LibraryImporter
	youtubeConfigured bool
}

// NewVideoHandlers creates a new VideoHandlers instance.
func NewVideoHandlers(videos video.Repository, notes note.Repository, importer LibraryImporter, youtubeConfigured bool) *VideoHandlers {
	return &VideoHandlers{
		videos:            videos,
		notes:             notes,
		importer:          importer,
		youtubeConfigured: youtubeConfigured,
	}
}

// ownedVideo loads a video and hides videos of other users.
func ownedVideo(ctx context.Context, repo video.Repository, userID, id string) (*video.Video, error) {
	v, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if v.UserID != userID {
		return nil, video.ErrVideoNotFound
	}
	return v, nil
}

// ListVideos handles GET /videos.
func (h *VideoHandlers) ListVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	videos, err := h.videos.ListLibrary(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ids := make([]string, len(videos))
	for i, v := range videos {
		ids[i] = v.ID
	}
	notes, err := h.notes.ListByVideos(ctx, ids)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]VideoWithNotes, len(videos))
	for i, v := range videos {
		n := notes[v.ID]
		if n == nil {
			n = []*note.Note{}
		}
		out[i] = VideoWithNotes{Video: v, Notes: n}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// SaveVideo handles POST /videos. Responds 201 for a new video and 200 when
// the user already had it.
func (h *VideoHandlers) SaveVideo(w http.ResponseWriter, r *http.Request) {
	var req SaveVideoRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	youtubeID := strings.TrimSpace(req.YouTubeID)
	title := strings.TrimSpace(req.Title)
	if youtubeID == "" || title == "" {
		writeFailure(w, r, http.StatusBadRequest, ErrCodeValidation, "Missing required fields")
		return
	}
	desc, err := validate.Description(req.Description)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if req.Duration < 0 {
		writeFailure(w, r, http.StatusBadRequest, ErrCodeValidation, "duration must not be negative")
		return
	}

	v := &video.Video{
		UserID:      middleware.GetUserID(r.Context()),
		YouTubeID:   youtubeID,
		Title:       title,
		Description: desc,
		Thumbnail:   req.Thumbnail,
		Channel:     req.Channel,
		Duration:    req.Duration,
	}
	created, err := h.videos.Save(r.Context(), v)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, v)
}

// ClearLibrary handles DELETE /videos?clearAll=true.
func (h *VideoHandlers) ClearLibrary(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("clearAll") != "true" {
		writeFailure(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Missing parameters")
		return
	}
	if _, err := h.videos.ClearLibrary(r.Context(), middleware.GetUserID(r.Context())); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, message{Message: "Library cleared"})
}

// AddVideo handles POST /videos/add.
func (h *VideoHandlers) AddVideo(w http.ResponseWriter, r *http.Request) {
	var req AddVideoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	source, err := validate.YouTubeSource(req.URL)
	if err != nil {
		if errors.Is(err, validate.ErrEmpty) {
			writeFailure(w, r, http.StatusBadRequest, ErrCodeValidation, "URL is required")
			return
		}
		writeServiceError(w, r, err)
		return
	}

	v, created, err := h.importer.AddByURL(r.Context(), middleware.GetUserID(r.Context()), source)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, v)
}

// durationUpdateResponse is the body of POST /videos/update-durations.
type durationUpdateResponse struct {
	Message string `json:"message"`
	Updated int    `json:"updated"`
	Total   int    `json:"total,omitempty"`
}

// UpdateDurations handles POST /videos/update-durations.
func (h *VideoHandlers) UpdateDurations(w http.ResponseWriter, r *http.Request) {
	if !h.youtubeConfigured {
		writeServiceError(w, r, youtube.ErrNotConfigured)
		return
	}

	res, err := h.importer.RefreshDurations(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if res.Total == 0 {
		writeJSON(w, r, http.StatusOK, durationUpdateResponse{Message: "No videos need duration update"})
		return
	}
	writeJSON(w, r, http.StatusOK, durationUpdateResponse{
		Message: "Duration update complete",
		Updated: res.Updated,
		Total:   res.Total,
	})
}

// GetVideo handles GET /videos/{id}.
func (h *VideoHandlers) GetVideo(w http.ResponseWriter, r *http.Request) {
	v, err := ownedVideo(r.Context(), h.videos, middleware.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

// UpdateVideo handles PATCH /videos/{id}: manual progress and completion.
func (h *VideoHandlers) UpdateVideo(w http.ResponseWriter, r *http.Request) {
	var req UpdateVideoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	update := video.ProgressUpdate{Progress: req.Progress, Completed: req.Completed}
	if err := update.Validate(); err != nil {
		writeServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	v, err := ownedVideo(ctx, h.videos, middleware.GetUserID(ctx), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	v, err = h.videos.UpdateProgress(ctx, v.ID, update)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, v)
}

// DeleteVideo handles DELETE /videos/{id}. History, notes and playlist
// items of the video go with it.
func (h *VideoHandlers) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	v, err := ownedVideo(ctx, h.videos, middleware.GetUserID(ctx), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.videos.Delete(ctx, v.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}
