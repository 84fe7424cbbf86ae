package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/studyplus/tracker/internal/middleware"
	"github.com/studyplus/tracker/internal/note"
	"github.com/studyplus/tracker/internal/validate"
	"github.com/studyplus/tracker/internal/video"
)

// CreateNoteRequest is the body of POST /notes.
type CreateNoteRequest struct {
	VideoID   string `json:"videoId"`
	Content   string `json:"content"`
	Timestamp *int   `json:"timestamp"`
}

// UpdateNoteRequest is the body of PATCH /notes/{id}.
type UpdateNoteRequest struct {
	Content string `json:"content"`
}

// NoteWithVideo is a note together with the video it is pinned to.
type NoteWithVideo struct {
	*note.Note
	Video *video.Video `json:"video,omitempty"`
}

// NoteHandlers serves timestamped notes.
type NoteHandlers struct {
	notes  note.Repository
	videos video.Repository
}

// NewNoteHandlers creates a new NoteHandlers instance.
func NewNoteHandlers(notes note.Repository, videos video.Repository) *NoteHandlers {
	return &NoteHandlers{notes: notes, videos: videos}
}

// ownedNote loads a note and hides notes of other users.
func (h *NoteHandlers) ownedNote(ctx context.Context, userID, id string) (*note.Note, error) {
	n, err := h.notes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if n.UserID != userID {
		return nil, note.ErrNoteNotFound
	}
	return n, nil
}

// ListNotes handles GET /notes, optionally filtered by ?videoId=.
func (h *NoteHandlers) ListNotes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	notes, err := h.notes.List(ctx, middleware.GetUserID(ctx), r.URL.Query().Get("videoId"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	seen := make(map[string]bool)
	var ids []string
	for _, n := range notes {
		if !seen[n.VideoID] {
			seen[n.VideoID] = true
			ids = append(ids, n.VideoID)
		}
	}
	videos, err := h.videos.ListByIDs(ctx, ids)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	byID := make(map[string]*video.Video, len(videos))
	for _, v := range videos {
		byID[v.ID] = v
	}

	out := make([]NoteWithVideo, len(notes))
	for i, n := range notes {
		out[i] = NoteWithVideo{Note: n, Video: byID[n.VideoID]}
	}
	writeJSON(w, r, http.StatusOK, out)
}

// CreateNote handles POST /notes.
func (h *NoteHandlers) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	videoID := strings.TrimSpace(req.VideoID)
	if videoID == "" || strings.TrimSpace(req.Content) == "" || req.Timestamp == nil {
		writeFailure(w, r, http.StatusBadRequest, ErrCodeValidation, "Missing required fields")
		return
	}
	content, err := validate.NoteContent(req.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if *req.Timestamp < 0 {
		writeServiceError(w, r, note.ErrInvalidTimestamp)
		return
	}

	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	v, err := ownedVideo(ctx, h.videos, userID, videoID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	n := &note.Note{
		UserID:    userID,
		VideoID:   v.ID,
		Content:   content,
		Timestamp: *req.Timestamp,
	}
	if err := h.notes.Create(ctx, n); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, NoteWithVideo{Note: n, Video: v})
}

// UpdateNote handles PATCH /notes/{id}.
func (h *NoteHandlers) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req UpdateNoteRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	content, err := validate.NoteContent(req.Content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	ctx := r.Context()
	n, err := h.ownedNote(ctx, middleware.GetUserID(ctx), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	n, err = h.notes.UpdateContent(ctx, n.ID, content)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, n)
}

// DeleteNote handles DELETE /notes/{id}.
func (h *NoteHandlers) DeleteNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	n, err := h.ownedNote(ctx, middleware.GetUserID(ctx), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.notes.Delete(ctx, n.ID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, successResponse{Success: true})
}
