package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingLoader(calls *int, value string) func() ([]byte, error) {
	return func() ([]byte, error) {
		*calls++
		return []byte(value), nil
	}
}

func TestNoOpCacheAlwaysLoads(t *testing.T) {
	c := NewNoOpCache()
	calls := 0
	for i := 0; i < 3; i++ {
		v, err := c.Take(context.Background(), "ns", "k", countingLoader(&calls, "v"))
		require.NoError(t, err)
		assert.Equal(t, "v", string(v))
	}
	assert.Equal(t, 3, calls)
}

func TestMemoryCacheTake(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, nil)

	calls := 0
	for i := 0; i < 3; i++ {
		v, err := c.Take(ctx, "file:raw", "2024-03-01T09:30:00Z.json.gz", countingLoader(&calls, "blob"))
		require.NoError(t, err)
		assert.Equal(t, "blob", string(v))
	}
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 2, c.Stat().Hits())
	assert.EqualValues(t, 1, c.Stat().Misses())

	// Namespaces do not collide
	_, err := c.Take(ctx, "file:other", "2024-03-01T09:30:00Z.json.gz", countingLoader(&calls, "blob"))
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestMemoryCacheDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute, nil)
	boom := errors.New("boom")

	_, err := c.Take(ctx, "ns", "k", func() ([]byte, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	calls := 0
	v, err := c.Take(ctx, "ns", "k", countingLoader(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(v))
	assert.Equal(t, 1, calls)
}

func TestRedisCacheTake(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client, time.Hour, nil)

	key := "2024-03-01T09:30:00Z.json.gz"
	calls := 0
	for i := 0; i < 2; i++ {
		v, err := c.Take(ctx, "file:raw", key, countingLoader(&calls, "blob"))
		require.NoError(t, err)
		assert.Equal(t, "blob", string(v))
	}
	assert.Equal(t, 1, calls)
	assert.True(t, mr.Exists(redisPrefix+"file:raw:"+key))

	ttl := mr.TTL(redisPrefix + "file:raw:" + key)
	assert.Equal(t, time.Hour, ttl)
}

func TestRedisCacheSkipsAliases(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client, time.Hour, nil)

	calls := 0
	for i := 0; i < 2; i++ {
		_, err := c.Take(ctx, "file:raw", "latest.json.gz", countingLoader(&calls, "blob"))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, calls)
	assert.Empty(t, mr.Keys())
}

func TestRedisCacheFallsBackWhenDown(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewRedisCache(client, time.Hour, nil)
	mr.Close()

	calls := 0
	v, err := c.Take(ctx, "file:raw", "2024-03-01T09:30:00Z.json.gz", countingLoader(&calls, "blob"))
	require.NoError(t, err)
	assert.Equal(t, "blob", string(v))
	assert.Equal(t, 1, calls)
}
