package jobs

import (
	"context"
	"log/slog"

	"github.com/studyplus/tracker/internal/library"
)

// CachePurger removes expired search cache entries. *searchcache.Searcher implements it.
type CachePurger interface {
	Purge(ctx context.Context) (int64, error)
}

// DurationRefresher fills in missing video durations. *library.Importer implements it.
type DurationRefresher interface {
	RefreshAllDurations(ctx context.Context, limit int) (library.RefreshResult, error)
}

// DefaultRefreshBatch is how many videos one duration refresh run looks at.
const DefaultRefreshBatch = 500

// SearchCacheCleanup returns a task that purges expired search results.
func SearchCacheCleanup(p CachePurger, logger *slog.Logger) Task {
	return func(ctx context.Context) error {
		n, err := p.Purge(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			logger.Info("cleared expired search cache entries", "count", n)
		}
		return nil
	}
}

// DurationRefresh returns a task that looks up durations for up to limit
// videos saved without one.
func DurationRefresh(r DurationRefresher, limit int, logger *slog.Logger) Task {
	if limit <= 0 {
		limit = DefaultRefreshBatch
	}
	return func(ctx context.Context) error {
		res, err := r.RefreshAllDurations(ctx, limit)
		if err != nil {
			return err
		}
		if res.Total > 0 {
			logger.Info("refreshed video durations", "updated", res.Updated, "total", res.Total)
		}
		return nil
	}
}

// BucketCleaner drops expired rate limit windows. *middleware.InMemoryRateLimitStore implements it.
type BucketCleaner interface {
	Cleanup()
}

// RateLimitCleanup returns a task that prunes the in-memory rate limiter.
func RateLimitCleanup(c BucketCleaner) Task {
	return func(ctx context.Context) error {
		c.Cleanup()
		return nil
	}
}
