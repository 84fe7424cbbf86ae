// Package watch implements watch-time accounting: it records the seconds a user
// spends on a video, merges reports into viewing sessions, keeps the video's
// progress and completion current, and maintains the user's running totals.
package watch

import (
	"errors"
	"time"

	"github.com/studyplus/tracker/internal/video"
)

var (
	// ErrInvalidInput is returned for missing identifiers or a non-positive,
	// non-finite number of seconds.
	ErrInvalidInput = errors.New("invalid input")
	// ErrVideoNotFound is returned when the video is missing or owned by someone else.
	ErrVideoNotFound = video.ErrVideoNotFound
	// ErrInternal wraps storage failures. The report had no effect.
	ErrInternal = errors.New("internal error")
	// ErrEntryNotFound is returned when a history entry does not exist.
	ErrEntryNotFound = errors.New("history entry not found")
	// ErrForbidden is returned when deleting another user's history entry.
	ErrForbidden = errors.New("history entry belongs to another user")
)

// HistoryEntry is one viewing session of a video. Reports arriving within the
// merge window of the previous one extend the same entry.
type HistoryEntry struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	VideoID   string       `json:"videoId"`
	WatchTime int64        `json:"watchTime"` // seconds
	WatchedAt time.Time    `json:"watchedAt"`
	Video     *video.Video `json:"video,omitempty"`
}

// UserAnalytics holds a user's running totals. Streaks are refreshed when
// analytics are read; reports only touch totals and LastWatchDate.
type UserAnalytics struct {
	UserID          string     `json:"userId"`
	TotalWatchTime  int64      `json:"totalWatchTime"`
	VideosCompleted int        `json:"videosCompleted"`
	CurrentStreak   int        `json:"currentStreak"`
	LongestStreak   int        `json:"longestStreak"`
	LastWatchDate   *time.Time `json:"lastWatchDate"`
}

// ProgressEvent is pushed to the user's live subscribers after a report commits.
type ProgressEvent struct {
	Type           string    `json:"type"`
	VideoID        string    `json:"videoId"`
	Progress       int       `json:"progress"`
	Completed      bool      `json:"completed"`
	JustCompleted  bool      `json:"justCompleted"`
	WatchTime      int64     `json:"watchTime"`
	TotalWatchTime int64     `json:"totalWatchTime"`
	At             time.Time `json:"at"`
}

// EventTypeProgress is the Type of every ProgressEvent.
const EventTypeProgress = "progress"
