// Package searchcache caches YouTube search results by normalized query.
package searchcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/studyplus/tracker/internal/youtube"
)

// DefaultTTL is how long a search result stays fresh.
const DefaultTTL = 24 * time.Hour

// Cache stores search results. Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached result for query. ok is false on a miss or an expired entry.
	Get(ctx context.Context, query string) (videos []youtube.Video, ok bool, err error)
	Set(ctx context.Context, query string, videos []youtube.Video, ttl time.Duration) error
	// DeleteExpired purges stale entries and reports how many were removed.
	DeleteExpired(ctx context.Context) (int64, error)
}

// NormalizeQuery returns the cache key for a query.
func NormalizeQuery(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// entry is the stored form of a cached result.
type entry struct {
	Videos    []youtube.Video `cbor:"1,keyasint"`
	ExpiresAt int64           `cbor:"2,keyasint"` // unix seconds
}

// InMemoryCache implements Cache with a map.
type InMemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// NewInMemoryCache creates an empty cache.
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get implements Cache.
func (c *InMemoryCache) Get(ctx context.Context, query string) ([]youtube.Video, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[NormalizeQuery(query)]
	c.mu.RUnlock()

	if !ok || c.now().Unix() >= e.ExpiresAt {
		return nil, false, nil
	}
	return append([]youtube.Video(nil), e.Videos...), true, nil
}

// Set implements Cache.
func (c *InMemoryCache) Set(ctx context.Context, query string, videos []youtube.Video, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[NormalizeQuery(query)] = entry{
		Videos:    append([]youtube.Video(nil), videos...),
		ExpiresAt: c.now().Add(ttl).Unix(),
	}
	return nil
}

// DeleteExpired implements Cache.
func (c *InMemoryCache) DeleteExpired(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now().Unix()
	var n int64
	for k, e := range c.entries {
		if now >= e.ExpiresAt {
			delete(c.entries, k)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored entries, expired or not.
func (c *InMemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
