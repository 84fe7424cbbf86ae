// Package api provides the HTTP handlers of the study tracker API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/studyplus/tracker/internal/library"
	"github.com/studyplus/tracker/internal/middleware"
	"github.com/studyplus/tracker/internal/note"
	"github.com/studyplus/tracker/internal/playlist"
	"github.com/studyplus/tracker/internal/validate"
	"github.com/studyplus/tracker/internal/video"
	"github.com/studyplus/tracker/internal/watch"
	"github.com/studyplus/tracker/internal/youtube"
)

// Common error codes used throughout the API.
const (
	// ErrCodeValidation indicates input validation failure.
	ErrCodeValidation = "validation_error"

	// ErrCodeAuthFailed indicates authentication failure.
	ErrCodeAuthFailed = "auth_failed"

	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound = "not_found"

	// ErrCodeRateLimited indicates rate limit exceeded.
	ErrCodeRateLimited = "rate_limited"

	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal = "internal_error"

	// ErrCodeForbidden indicates the request is forbidden.
	ErrCodeForbidden = "forbidden"

	// ErrCodeConflict indicates a conflict with the current state.
	ErrCodeConflict = "conflict"

	// ErrCodeBadRequest indicates a malformed request.
	ErrCodeBadRequest = "bad_request"

	// ErrCodeAlreadyAdded indicates the video is already in the library.
	ErrCodeAlreadyAdded = "already_added"

	// ErrCodeUnavailable indicates the YouTube API cannot serve the request.
	ErrCodeUnavailable = "service_unavailable"
)

// ErrorResponse represents the standard error response format.
// All API errors return JSON in this structure: {"error": {"code": "...", "message": "..."}}
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error code and human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError writes a standardized JSON error response.
//
// The error_code is logged by the logging middleware for 4xx and 5xx
// responses when ctx carries it:
//
//	ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
//	api.WriteError(w, ctx, http.StatusNotFound, api.ErrCodeNotFound, "Video not found")
func WriteError(w http.ResponseWriter, ctx context.Context, status int, code, message string) {
	middleware.UpdateResponseContext(w, ctx)

	errResp := ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	}

	data, err := json.Marshal(errResp)
	if err != nil {
		slog.ErrorContext(ctx, "failed to marshal error response", "error", err)
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		slog.ErrorContext(ctx, "failed to write error response", "error", err)
	}
}

// writeFailure sets the error code on the request context and writes the error.
func writeFailure(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	ctx := middleware.SetErrorCode(r.Context(), code)
	WriteError(w, ctx, status, code, message)
}

// writeServiceError maps a domain error onto an HTTP error response.
// Unknown errors are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed", "error", err)
	}
	writeFailure(w, r, status, code, message)
}

func classify(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, watch.ErrInvalidInput),
		errors.Is(err, video.ErrInvalidProgress),
		errors.Is(err, video.ErrMissingYouTubeID),
		errors.Is(err, note.ErrInvalidTimestamp),
		errors.Is(err, validate.ErrEmpty),
		errors.Is(err, validate.ErrStringTooShort),
		errors.Is(err, validate.ErrStringTooLong),
		errors.Is(err, validate.ErrInvalidCharacters):
		return http.StatusBadRequest, ErrCodeValidation, err.Error()
	case errors.Is(err, library.ErrInvalidURL),
		errors.Is(err, validate.ErrInvalidURL),
		errors.Is(err, validate.ErrDisallowedScheme),
		errors.Is(err, validate.ErrDisallowedDomain):
		return http.StatusBadRequest, ErrCodeValidation, "Invalid YouTube URL"
	case errors.Is(err, library.ErrAlreadyAdded):
		return http.StatusBadRequest, ErrCodeAlreadyAdded, "Video already added"
	case errors.Is(err, library.ErrEmptyPlaylist):
		return http.StatusBadRequest, ErrCodeValidation, "Playlist is empty or not accessible"
	case errors.Is(err, playlist.ErrDuplicateItem):
		return http.StatusBadRequest, ErrCodeConflict, "Video already in playlist"
	case errors.Is(err, watch.ErrForbidden):
		return http.StatusForbidden, ErrCodeForbidden, "Forbidden"
	case errors.Is(err, video.ErrVideoNotFound),
		errors.Is(err, youtube.ErrNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Video not found"
	case errors.Is(err, note.ErrNoteNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Note not found"
	case errors.Is(err, playlist.ErrPlaylistNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Playlist not found"
	case errors.Is(err, playlist.ErrItemNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Video not in playlist"
	case errors.Is(err, watch.ErrEntryNotFound):
		return http.StatusNotFound, ErrCodeNotFound, "Item not found"
	case errors.Is(err, youtube.ErrQuotaExceeded):
		return http.StatusServiceUnavailable, ErrCodeUnavailable, "YouTube API quota exceeded. Please try again later."
	case errors.Is(err, youtube.ErrNotConfigured):
		return http.StatusServiceUnavailable, ErrCodeUnavailable, "YouTube API key not configured"
	case errors.Is(err, youtube.ErrUnavailable):
		return http.StatusServiceUnavailable, ErrCodeUnavailable, "YouTube API unavailable"
	}
	return http.StatusInternalServerError, ErrCodeInternal, "Internal error"
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(r.Context(), "failed to encode response", "error", err)
	}
}

// maxBodyBytes bounds request bodies; notes are the largest at 10k runes.
const maxBodyBytes = 64 << 10

// decodeJSON reads the request body into v, writing a 400 on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeFailure(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return false
	}
	return true
}

// message is the body of responses that only confirm an action.
type message struct {
	Message string `json:"message"`
}

// successResponse confirms a deletion.
type successResponse struct {
	Success bool `json:"success"`
}
