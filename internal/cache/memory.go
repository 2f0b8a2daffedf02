package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/hkloudou/odwatch/trace"
	"github.com/jellydator/ttlcache/v3"
)

// MemoryCache keeps blobs in process memory with a TTL
type MemoryCache struct {
	data *ttlcache.Cache[string, []byte]
	stat *CacheStat
}

// NewMemoryCache creates a new memory cache with TTL support
func NewMemoryCache(ttl time.Duration, log *slog.Logger) *MemoryCache {
	data := ttlcache.New(
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	return &MemoryCache{
		data: data,
		stat: NewCacheStat("memory", log, func() int { return data.Len() }),
	}
}

// Take implements Cache
func (c *MemoryCache) Take(ctx context.Context, namespace, key string, loader func() ([]byte, error)) ([]byte, error) {
	tr := trace.FromContext(ctx)
	k := cacheKey(namespace, key)

	if item := c.data.Get(k); item != nil {
		c.stat.IncrementHit()
		tr.RecordSpan("MemoryCache.Hit", map[string]any{
			"key":  k,
			"size": len(item.Value()),
		})
		return item.Value(), nil
	}
	c.stat.IncrementMiss()

	data, err := loader()
	if err != nil {
		return nil, err
	}
	c.data.Set(k, data, ttlcache.DefaultTTL)

	tr.RecordSpan("MemoryCache.Loaded", map[string]any{
		"key":  k,
		"size": len(data),
	})
	return data, nil
}

// Stat exposes the hit/miss counters
func (c *MemoryCache) Stat() *CacheStat {
	return c.stat
}
