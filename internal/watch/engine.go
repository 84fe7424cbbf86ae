package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/studyplus/tracker/internal/tracing"
)

// DefaultMergeWindow is how recent the last entry must be for a report to extend it.
const DefaultMergeWindow = time.Hour

// Publisher delivers progress events to a user's live subscribers.
type Publisher interface {
	Publish(userID string, event ProgressEvent)
}

// Engine applies watch time reports.
type Engine struct {
	store       Store
	publisher   Publisher
	metrics     *Metrics
	mergeWindow time.Duration
	now         func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithMergeWindow overrides DefaultMergeWindow. Non-positive values are ignored.
func WithMergeWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.mergeWindow = d
		}
	}
}

// WithPublisher sets where progress events go after a report commits.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:       store,
		mergeWindow: DefaultMergeWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReportWatchTime records seconds of viewing of videoID by userID.
//
// The report either fully applies or has no effect. It returns ErrInvalidInput,
// ErrVideoNotFound, or an error wrapping ErrInternal.
func (e *Engine) ReportWatchTime(ctx context.Context, userID, videoID string, seconds float64) (entry *HistoryEntry, err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartSpan(ctx, "watch.report")
	defer func() { endSpan(err) }()

	secs, err := NormalizeSeconds(seconds)
	if err != nil || userID == "" || videoID == "" {
		e.metrics.observe(ResultInvalid, 0, false, false, time.Since(start).Seconds())
		return nil, ErrInvalidInput
	}

	now := e.now().UTC()
	var (
		merged, justCompleted bool
		countNow              bool
		progress              int
		completed             bool
		totals                *UserAnalytics
	)

	err = e.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		v, err := tx.LockVideo(ctx, videoID)
		if err != nil {
			return err
		}
		if v.UserID != userID {
			return ErrVideoNotFound
		}

		recent, err := tx.LatestEntrySince(ctx, userID, videoID, now.Add(-e.mergeWindow))
		if err != nil {
			return err
		}
		if recent != nil {
			recent.WatchTime += secs
			recent.WatchedAt = now
			if err := tx.UpdateEntry(ctx, recent.ID, recent.WatchTime, recent.WatchedAt); err != nil {
				return err
			}
			entry, merged = recent, true
		} else {
			entry = &HistoryEntry{
				ID:        uuid.New().String(),
				UserID:    userID,
				VideoID:   videoID,
				WatchTime: secs,
				WatchedAt: now,
			}
			if err := tx.InsertEntry(ctx, entry); err != nil {
				return err
			}
		}

		total, err := tx.SumWatchTime(ctx, userID, videoID)
		if err != nil {
			return err
		}
		progress = ComputeProgress(total, v.Duration, v.Progress)
		completed = IsCompleted(v.Completed, progress)
		justCompleted = completed && !v.Completed
		// A video un-completed by hand and completed again is not counted twice.
		countNow = justCompleted && !v.CompletionCounted
		counted := v.CompletionCounted || countNow
		if err := tx.UpdateVideoProgress(ctx, videoID, progress, completed, counted); err != nil {
			return err
		}

		completedDelta := 0
		if countNow {
			completedDelta = 1
		}
		totals, err = tx.AddToAnalytics(ctx, userID, secs, completedDelta, now)
		return err
	})

	if err != nil {
		entry = nil
		switch {
		case errors.Is(err, ErrVideoNotFound):
			e.metrics.observe(ResultNotFound, 0, false, false, time.Since(start).Seconds())
			return nil, ErrVideoNotFound
		default:
			e.metrics.observe(ResultError, 0, false, false, time.Since(start).Seconds())
			slog.ErrorContext(ctx, "watch report failed", "video_id", videoID, "error", err)
			return nil, fmt.Errorf("%w: %w", ErrInternal, err)
		}
	}

	e.metrics.observe(ResultOK, secs, merged, countNow, time.Since(start).Seconds())
	tracing.SetAttributes(ctx,
		attribute.Int64("watch.seconds", secs),
		attribute.Bool("watch.merged", merged),
		attribute.Int("watch.progress", progress),
	)

	if e.publisher != nil {
		e.publisher.Publish(userID, ProgressEvent{
			Type:           EventTypeProgress,
			VideoID:        videoID,
			Progress:       progress,
			Completed:      completed,
			JustCompleted:  justCompleted,
			WatchTime:      entry.WatchTime,
			TotalWatchTime: totals.TotalWatchTime,
			At:             now,
		})
	}
	return entry, nil
}
