package watch

import (
	"context"
	"time"

	"github.com/studyplus/tracker/internal/video"
)

// DefaultHistoryLimit is the number of entries returned by the history listing.
const DefaultHistoryLimit = 50

// Store persists history entries and user analytics.
type Store interface {
	// WithinTx runs fn in a transaction. If fn returns an error nothing it did is kept.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// ListHistory returns the user's newest entries first, with Video attached.
	ListHistory(ctx context.Context, userID string, limit int) ([]*HistoryEntry, error)
	// ListAllHistory returns every entry of the user, oldest first, without videos.
	ListAllHistory(ctx context.Context, userID string) ([]*HistoryEntry, error)
	GetEntry(ctx context.Context, id string) (*HistoryEntry, error)
	DeleteEntry(ctx context.Context, id string) error
	ClearHistory(ctx context.Context, userID string) (int64, error)

	// EnsureAnalytics returns the user's analytics, creating a zero row if absent.
	EnsureAnalytics(ctx context.Context, userID string) (*UserAnalytics, error)
	// UpdateStreaks stores freshly computed streaks.
	UpdateStreaks(ctx context.Context, userID string, current, longest int) error
}

// Tx is the view of the store inside WithinTx.
type Tx interface {
	// LockVideo loads the video and holds it until the transaction ends, so
	// concurrent reports for the same video serialize.
	LockVideo(ctx context.Context, videoID string) (*video.Video, error)
	// LatestEntrySince returns the newest entry for (user, video) watched at or
	// after since, or nil.
	LatestEntrySince(ctx context.Context, userID, videoID string, since time.Time) (*HistoryEntry, error)
	InsertEntry(ctx context.Context, e *HistoryEntry) error
	UpdateEntry(ctx context.Context, id string, watchTime int64, watchedAt time.Time) error
	SumWatchTime(ctx context.Context, userID, videoID string) (int64, error)
	// UpdateVideoProgress stores progress and completion. counted marks the
	// completion as already added to the user's totals.
	UpdateVideoProgress(ctx context.Context, videoID string, progress int, completed, counted bool) error
	// AddToAnalytics adds seconds and completed to the user's totals and sets
	// LastWatchDate to at. A missing row is created with those values and a
	// streak of 1. Returns the resulting row.
	AddToAnalytics(ctx context.Context, userID string, seconds int64, completed int, at time.Time) (*UserAnalytics, error)
}
