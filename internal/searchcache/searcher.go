package searchcache

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/studyplus/tracker/internal/tracing"
	"github.com/studyplus/tracker/internal/youtube"
)

// DefaultMaxResults is the number of videos a search returns.
const DefaultMaxResults = 10

// VideoSearcher runs an uncached search.
type VideoSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]youtube.Video, error)
}

// Searcher serves searches from the cache, falling through to upstream on a miss.
// Cache failures are logged and bypassed; upstream failures are returned.
type Searcher struct {
	cache    Cache
	upstream VideoSearcher
	ttl      time.Duration
	metrics  *Metrics
}

// NewSearcher creates a Searcher. A non-positive ttl means DefaultTTL; metrics may be nil.
func NewSearcher(cache Cache, upstream VideoSearcher, ttl time.Duration, metrics *Metrics) *Searcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Searcher{cache: cache, upstream: upstream, ttl: ttl, metrics: metrics}
}

// Search returns up to DefaultMaxResults videos for query.
func (s *Searcher) Search(ctx context.Context, query string) (videos []youtube.Video, err error) {
	ctx, endSpan := tracing.StartSpan(ctx, "searchcache.search")
	defer func() { endSpan(err) }()

	videos, ok, cerr := s.cache.Get(ctx, query)
	if cerr != nil {
		s.metrics.cacheError("get")
		slog.WarnContext(ctx, "search cache read failed", "error", cerr)
	}
	if ok {
		s.metrics.lookup(ResultHit)
		tracing.AddEvent(ctx, "cache_hit", attribute.Int("results", len(videos)))
		return videos, nil
	}
	s.metrics.lookup(ResultMiss)
	tracing.AddEvent(ctx, "cache_miss")

	videos, err = s.upstream.Search(ctx, query, DefaultMaxResults)
	if err != nil {
		s.metrics.upstreamError()
		return nil, err
	}

	if err := s.cache.Set(ctx, query, videos, s.ttl); err != nil {
		s.metrics.cacheError("set")
		slog.WarnContext(ctx, "search cache write failed", "error", err)
	}
	return videos, nil
}

// Purge removes expired cache entries.
func (s *Searcher) Purge(ctx context.Context) (int64, error) {
	return s.cache.DeleteExpired(ctx)
}
