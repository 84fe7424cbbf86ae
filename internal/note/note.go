// Package note stores timestamped notes a user takes on their videos.
package note

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoteNotFound is returned when a note does not exist.
	ErrNoteNotFound = errors.New("note not found")
	// ErrInvalidTimestamp is returned for a negative playback position.
	ErrInvalidTimestamp = errors.New("timestamp must not be negative")
)

// Note is a comment pinned to a playback position of a video.
type Note struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	VideoID   string    `json:"videoId"`
	Content   string    `json:"content"`
	Timestamp int       `json:"timestamp"` // seconds into the video
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Repository defines note persistence. Ownership of the referenced video is
// checked by callers before Create.
type Repository interface {
	Create(ctx context.Context, n *Note) error
	GetByID(ctx context.Context, id string) (*Note, error)

	// List returns the user's notes, newest first, optionally for one video.
	List(ctx context.Context, userID, videoID string) ([]*Note, error)

	// ListByVideos returns notes for the given videos keyed by video ID,
	// each list in playback order.
	ListByVideos(ctx context.Context, videoIDs []string) (map[string][]*Note, error)

	UpdateContent(ctx context.Context, id, content string) (*Note, error)
	Delete(ctx context.Context, id string) error
}
