package searchcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"

	"github.com/studyplus/tracker/internal/youtube"
)

// keyPrefix namespaces cache keys in Redis.
const keyPrefix = "searchcache:"

const scanBatch = 100

// RedisCache implements Cache in Redis with CBOR values. Entries carry a native
// TTL, so DeleteExpired only has to purge entries that lost theirs.
type RedisCache struct {
	client redis.UniversalClient
	now    func() time.Time
}

// NewRedisCache creates a cache on client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, now: time.Now}
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, query string) ([]youtube.Video, bool, error) {
	data, err := c.client.Get(ctx, keyPrefix+NormalizeQuery(query)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read search cache: %w", err)
	}

	var e entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, false, fmt.Errorf("failed to decode search cache entry: %w", err)
	}
	if c.now().Unix() >= e.ExpiresAt {
		return nil, false, nil
	}
	return e.Videos, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, query string, videos []youtube.Video, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := cbor.Marshal(entry{Videos: videos, ExpiresAt: c.now().Add(ttl).Unix()})
	if err != nil {
		return fmt.Errorf("failed to encode search cache entry: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+NormalizeQuery(query), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to write search cache: %w", err)
	}
	return nil
}

// DeleteExpired implements Cache. It removes entries that are past their
// embedded expiry or cannot be decoded.
func (c *RedisCache) DeleteExpired(ctx context.Context) (int64, error) {
	now := c.now().Unix()
	var deleted int64

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		data, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return deleted, fmt.Errorf("failed to read search cache: %w", err)
		}

		var e entry
		if cbor.Unmarshal(data, &e) == nil && now < e.ExpiresAt {
			continue
		}
		n, err := c.client.Del(ctx, key).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to delete search cache entry: %w", err)
		}
		deleted += n
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("failed to scan search cache: %w", err)
	}
	return deleted, nil
}
