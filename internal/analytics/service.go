package analytics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/studyplus/tracker/internal/tracing"
	"github.com/studyplus/tracker/internal/video"
	"github.com/studyplus/tracker/internal/watch"
)

// HistoryStore is the part of watch.Store the aggregator reads and writes.
type HistoryStore interface {
	ListAllHistory(ctx context.Context, userID string) ([]*watch.HistoryEntry, error)
	EnsureAnalytics(ctx context.Context, userID string) (*watch.UserAnalytics, error)
	UpdateStreaks(ctx context.Context, userID string, current, longest int) error
}

// VideoLister lists every video a user has saved.
type VideoLister interface {
	ListByUser(ctx context.Context, userID string) ([]*video.Video, error)
}

// View is the analytics response for one user.
type View struct {
	TotalWatchTime  int64         `json:"totalWatchTime"`
	VideosCompleted int           `json:"videosCompleted"`
	CurrentStreak   int           `json:"currentStreak"`
	LongestStreak   int           `json:"longestStreak"`
	LastWatchDate   *time.Time    `json:"lastWatchDate"`
	WeeklyActivity  []DayActivity `json:"weeklyActivity"`
	TopCategories   []Category    `json:"topCategories"`
}

// Service computes analytics on read.
type Service struct {
	history        HistoryStore
	videos         VideoLister
	allowYesterday bool
	now            func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithAllowYesterday keeps a streak alive through the current day until it ends.
func WithAllowYesterday(allow bool) Option {
	return func(s *Service) { s.allowYesterday = allow }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a Service.
func NewService(history HistoryStore, videos VideoLister, opts ...Option) *Service {
	s := &Service{history: history, videos: videos, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetAnalytics recomputes the user's streaks from history, stores them, and
// returns them with the stored totals and the activity breakdowns.
func (s *Service) GetAnalytics(ctx context.Context, userID string) (view *View, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "analytics.get")
	defer func() { endSpan(err) }()

	entries, err := s.history.ListAllHistory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	now := s.now().UTC()
	streaks := ComputeStreaks(ActiveDays(entries), now, s.allowYesterday)

	stored, err := s.history.EnsureAnalytics(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load analytics: %w", err)
	}
	if stored.CurrentStreak != streaks.Current || stored.LongestStreak != streaks.Longest {
		if err := s.history.UpdateStreaks(ctx, userID, streaks.Current, streaks.Longest); err != nil {
			return nil, fmt.Errorf("failed to store streaks: %w", err)
		}
	}

	videos, err := s.videos.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load videos: %w", err)
	}

	tracing.SetAttributes(ctx,
		attribute.Int("analytics.history_entries", len(entries)),
		attribute.Int("analytics.current_streak", streaks.Current),
	)

	return &View{
		TotalWatchTime:  stored.TotalWatchTime,
		VideosCompleted: stored.VideosCompleted,
		CurrentStreak:   streaks.Current,
		LongestStreak:   streaks.Longest,
		LastWatchDate:   stored.LastWatchDate,
		WeeklyActivity:  WeeklyActivity(entries, now),
		TopCategories:   TopCategories(videos, DefaultTopCategories),
	}, nil
}
