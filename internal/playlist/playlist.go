// Package playlist manages ordered collections of library videos.
package playlist

import (
	"context"
	"errors"
	"time"

	"github.com/studyplus/tracker/internal/video"
)

var (
	// ErrPlaylistNotFound is returned when a playlist does not exist.
	ErrPlaylistNotFound = errors.New("playlist not found")
	// ErrDuplicateItem is returned when a video is already in the playlist.
	ErrDuplicateItem = errors.New("video already in playlist")
	// ErrItemNotFound is returned when removing a video that is not in the playlist.
	ErrItemNotFound = errors.New("video not in playlist")
)

// Playlist is a named, user-owned list of videos.
type Playlist struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Item places a video at a position in a playlist. Positions start at 0.
type Item struct {
	PlaylistID string       `json:"playlistId"`
	VideoID    string       `json:"videoId"`
	Position   int          `json:"position"`
	AddedAt    time.Time    `json:"addedAt"`
	Video      *video.Video `json:"video,omitempty"`
}

// Update changes a playlist's name and/or description. Nil fields are left unchanged.
type Update struct {
	Name        *string
	Description *string
}

// Stats summarizes the videos of a playlist.
type Stats struct {
	TotalVideos     int `json:"totalVideos"`
	CompletedVideos int `json:"completedVideos"`
	TotalDuration   int `json:"totalDuration"` // seconds
}

// Summarize computes Stats over videos.
func Summarize(videos []*video.Video) Stats {
	var s Stats
	for _, v := range videos {
		s.TotalVideos++
		s.TotalDuration += v.Duration
		if v.Completed {
			s.CompletedVideos++
		}
	}
	return s
}

// Repository defines playlist persistence.
type Repository interface {
	Create(ctx context.Context, p *Playlist) error
	GetByID(ctx context.Context, id string) (*Playlist, error)

	// ListByUser returns the user's playlists, newest first.
	ListByUser(ctx context.Context, userID string) ([]*Playlist, error)

	Update(ctx context.Context, id string, u Update) (*Playlist, error)

	// Delete removes the playlist and its items. Videos are untouched.
	Delete(ctx context.Context, id string) error

	// ListItems returns the playlist's items in position order, without videos.
	ListItems(ctx context.Context, playlistID string) ([]*Item, error)

	// AddItem appends videoID after the current last position.
	AddItem(ctx context.Context, playlistID, videoID string) (*Item, error)

	RemoveItem(ctx context.Context, playlistID, videoID string) error
}
