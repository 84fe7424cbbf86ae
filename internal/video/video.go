// Package video manages a user's saved YouTube videos: the study library.
package video

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrVideoNotFound is returned when a video does not exist or belongs to another user.
	ErrVideoNotFound = errors.New("video not found")
	// ErrInvalidProgress is returned when a manual progress update is outside 0..100.
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")
	// ErrMissingYouTubeID is returned when saving a video without a YouTube ID.
	ErrMissingYouTubeID = errors.New("youtube id is required")
)

// CompletionThreshold is the progress percentage at which a video counts as completed.
const CompletionThreshold = 95

// Video is a YouTube video saved by a user. (UserID, YouTubeID) is unique.
type Video struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	YouTubeID   string    `json:"youtubeId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	Channel     string    `json:"channel,omitempty"`
	Duration    int       `json:"duration"` // seconds, 0 when unknown
	Progress    int       `json:"progress"` // percent
	Completed   bool      `json:"completed"`
	InLibrary   bool      `json:"inLibrary"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	// CompletionCounted is set once the completion reached the user's totals
	// and stays set when the video is manually marked incomplete.
	CompletionCounted bool `json:"-"`
}

// ProgressUpdate is a change to progress and/or completion.
// Nil fields are left unchanged. CompletionCounted is only set by watch
// reports; manual updates leave it nil.
type ProgressUpdate struct {
	Progress          *int
	Completed         *bool
	CompletionCounted *bool
}

// Validate checks the update bounds.
func (u ProgressUpdate) Validate() error {
	if u.Progress != nil && (*u.Progress < 0 || *u.Progress > 100) {
		return ErrInvalidProgress
	}
	return nil
}

// Repository defines video persistence. Lookups by ID are not owner-scoped;
// callers compare UserID themselves and treat a foreign video as not found.
type Repository interface {
	// Save creates v, or, if (UserID, YouTubeID) already exists, puts the existing
	// video back into the library and loads it into v. Reports whether v is new.
	Save(ctx context.Context, v *Video) (created bool, err error)

	GetByID(ctx context.Context, id string) (*Video, error)

	// FindByYouTubeID returns the user's video for a YouTube ID, in library or not.
	FindByYouTubeID(ctx context.Context, userID, youtubeID string) (*Video, error)

	// ListLibrary returns the user's videos that are in the library, most recently updated first.
	ListLibrary(ctx context.Context, userID string) ([]*Video, error)

	// ListByUser returns every video the user has ever saved.
	ListByUser(ctx context.Context, userID string) ([]*Video, error)

	// ListByIDs returns the videos with the given IDs; unknown IDs are skipped.
	ListByIDs(ctx context.Context, ids []string) ([]*Video, error)

	// ListMissingDuration returns up to limit videos with duration 0.
	// An empty userID searches all users.
	ListMissingDuration(ctx context.Context, userID string, limit int) ([]*Video, error)

	UpdateProgress(ctx context.Context, id string, u ProgressUpdate) (*Video, error)
	SetDuration(ctx context.Context, id string, seconds int) error

	// Delete removes the video and, through cascade, its history, notes and playlist items.
	Delete(ctx context.Context, id string) error

	// ClearLibrary takes every video of the user out of the library without deleting it.
	ClearLibrary(ctx context.Context, userID string) (int64, error)
}
