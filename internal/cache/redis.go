package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hkloudou/odwatch/internal/index"
	"github.com/hkloudou/odwatch/trace"
	"github.com/redis/go-redis/v9"
)

const redisPrefix = "odwatch_cache:"

// RedisCache caches snapshot blobs in Redis so repeated runs on different
// hosts skip re-downloading from object storage
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
	stat   *CacheStat
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(client *redis.Client, ttl time.Duration, log *slog.Logger) *RedisCache {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &RedisCache{
		client: client,
		ttl:    ttl,
		log:    log,
		stat: NewCacheStat("redis", log, func() int {
			return countKeys(client, redisPrefix+"*")
		}),
	}
}

// NewRedisCacheWithURL creates Redis cache from URL
func NewRedisCacheWithURL(redisURL string, ttl time.Duration, log *slog.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisCache(redis.NewClient(opt), ttl, log), nil
}

// Take implements Cache. Only timestamped snapshot keys are cached, aliases
// such as latest.json.gz are rewritten in place and always go to the loader.
func (c *RedisCache) Take(ctx context.Context, namespace, key string, loader func() ([]byte, error)) ([]byte, error) {
	if !index.IsSnapshotKey(key) || index.IsSentinel(key) {
		return loader()
	}

	tr := trace.FromContext(ctx)
	k := redisPrefix + cacheKey(namespace, key)

	cached, err := c.client.Get(ctx, k).Bytes()
	switch {
	case err == nil:
		c.stat.IncrementHit()
		tr.RecordSpan("RedisCache.Hit", map[string]any{"key": k, "size": len(cached)})
		return cached, nil
	case errors.Is(err, redis.Nil):
		c.stat.IncrementMiss()
	default:
		// Redis unavailable, the cache is optional
		c.log.Warn("redis cache get failed", "key", k, "error", err)
		return loader()
	}

	data, err := loader()
	if err != nil {
		return nil, err
	}

	if err := c.client.Set(ctx, k, data, c.ttl).Err(); err != nil {
		c.log.Warn("redis cache set failed", "key", k, "error", err)
	}
	tr.RecordSpan("RedisCache.Loaded", map[string]any{"key": k, "size": len(data)})
	return data, nil
}

// Stat exposes the hit/miss counters
func (c *RedisCache) Stat() *CacheStat {
	return c.stat
}

// countKeys counts keys matching a pattern
func countKeys(client *redis.Client, pattern string) int {
	ctx := context.Background()
	var cursor uint64
	var count int

	for {
		keys, next, err := client.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return 0
		}
		count += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return count
}
