package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/pulsefeed/moment-search/internal/moment"
	pkgredis "github.com/pulsefeed/moment-search/pkg/redis"
)

const keyPrefix = "moment-search:"

// RedisCache is the distributed Cache backend for multi-instance
// deployments. Capacity bounding and expiry sweeping are delegated to Redis
// (per-key TTL and the server's maxmemory policy), so Cleanup is a no-op.
type RedisCache struct {
	client *pkgredis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisCache creates a RedisCache with the given TTL.
func NewRedisCache(client *pkgredis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: slog.Default().With("component", "redis-cache"),
	}
}

// Get returns the cached result for the query, if any.
func (c *RedisCache) Get(ctx context.Context, query *moment.Query) (*moment.SearchResult, bool) {
	key := keyPrefix + Key(query)
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		return nil, false
	}
	var result moment.SearchResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return nil, false
	}
	return &result, true
}

// Set stores the result under the configured TTL.
func (c *RedisCache) Set(ctx context.Context, query *moment.Query, result *moment.SearchResult) {
	key := keyPrefix + Key(query)
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// Cleanup is a no-op: Redis expires keys itself.
func (c *RedisCache) Cleanup(ctx context.Context) int {
	return 0
}

// Clear deletes every cached search result.
func (c *RedisCache) Clear(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return err
	}
	c.logger.Info("cache cleared", "keys_deleted", deleted)
	return nil
}

// Stats reports the live key count; Redis holds no expired keys, so
// ExpiredEntries is always zero.
func (c *RedisCache) Stats(ctx context.Context) Stats {
	count, err := c.client.CountByPattern(ctx, keyPrefix+"*")
	if err != nil {
		c.logger.Error("cache stats failed", "error", err)
		return Stats{}
	}
	return Stats{
		TotalEntries:  int(count),
		ActiveEntries: int(count),
	}
}
