package config

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hkloudou/odwatch/internal/cache"
	"github.com/hkloudou/odwatch/internal/ledger"
	"github.com/hkloudou/odwatch/internal/social"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir()) // no .env here

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "file", cfg.Storage)
	assert.Equal(t, []string{"data.cityofnewyork.us"}, cfg.Domains)
	assert.Equal(t, 10000, cfg.Limit)
	assert.Equal(t, 2*time.Second, cfg.SocialDelay)
	assert.Equal(t, "data/raw", cfg.RawDir())
	assert.Equal(t, "data/clean", cfg.CleanDir())
}

func TestLoadFromEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("ODWATCH_DATA_DIR", "/srv/odwatch")
	t.Setenv("ODWATCH_DOMAINS", "data.cityofnewyork.us, data.ny.gov")
	t.Setenv("ODWATCH_LIMIT", "50")
	t.Setenv("ODWATCH_SOCIAL", "slack")
	t.Setenv("ODWATCH_SOCIAL_DELAY", "500ms")
	t.Setenv("ODWATCH_OSS_INTERNAL", "true")
	t.Setenv("MASTODON_ACCESS_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/odwatch/clean", cfg.CleanDir())
	assert.Equal(t, []string{"data.cityofnewyork.us", "data.ny.gov"}, cfg.Domains)
	assert.Equal(t, 50, cfg.Limit)
	assert.Equal(t, "slack", cfg.Social)
	assert.Equal(t, 500*time.Millisecond, cfg.SocialDelay)
	assert.True(t, cfg.OSSInternal)
	assert.Equal(t, "tok", cfg.MastodonAccessToken)
}

func TestLoadInvalid(t *testing.T) {
	tests := map[string][2]string{
		"bad int":      {"ODWATCH_LIMIT", "many"},
		"bad duration": {"ODWATCH_CACHE_TTL", "forever"},
		"bad storage":  {"ODWATCH_STORAGE", "s3"},
		"bad timezone": {"ODWATCH_TIMEZONE", "Mars/Olympus"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.ErrorContains(t, err, kv[0])
		})
	}
}

func TestCreateBackends(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()

	s, err := cfg.CreateStorage()
	require.NoError(t, err)
	assert.Equal(t, "file:raw", s.Namespace())

	cfg.Storage = "memory"
	s, err = cfg.CreateStorage()
	require.NoError(t, err)
	assert.Equal(t, "memory:raw", s.Namespace())

	c, err := cfg.CreateCache(nil)
	require.NoError(t, err)
	assert.IsType(t, &cache.NoOpCache{}, c)

	cfg.Cache = "memory"
	c, err = cfg.CreateCache(nil)
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryCache{}, c)

	l, err := cfg.CreateLedger()
	require.NoError(t, err)
	assert.IsType(t, &ledger.StorageLedger{}, l)

	cfg.Social = "dry-run"
	p, err := cfg.CreatePoster()
	require.NoError(t, err)
	assert.IsType(t, &social.RecordingPoster{}, p)

	cfg.Social = "mastodon"
	_, err = cfg.CreatePoster()
	assert.Error(t, err, "mastodon without a token must fail")
}

func TestCreateRedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := Default()
	cfg.Cache = "redis"
	cfg.Ledger = "redis"

	_, err := cfg.CreateCache(nil)
	assert.ErrorContains(t, err, "REDIS_URL")

	cfg.RedisURL = "redis://" + mr.Addr()
	c, err := cfg.CreateCache(nil)
	require.NoError(t, err)
	assert.IsType(t, &cache.RedisCache{}, c)

	l, err := cfg.CreateLedger()
	require.NoError(t, err)
	assert.IsType(t, &ledger.RedisLedger{}, l)
}

func TestManagerOverlay(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	m := NewManager(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	cfg := Default()
	require.NoError(t, m.Overlay(ctx, cfg), "missing key is not an error")
	assert.Equal(t, "file", cfg.Storage)

	mr.Set(SettingsKey, `{"Storage":"oss","Bucket":"odwatch","FeedTitle":"Shared"}`)
	require.NoError(t, m.Overlay(ctx, cfg))
	assert.Equal(t, "oss", cfg.Storage)
	assert.Equal(t, "odwatch", cfg.Bucket)
	assert.Equal(t, "Shared", cfg.FeedTitle)
	assert.Equal(t, 10000, cfg.Limit, "unset fields keep their value")

	mr.Set(SettingsKey, `{"Storage":"tape"}`)
	assert.Error(t, m.Overlay(ctx, Default()))

	require.NoError(t, m.Save(ctx, Default()))
	fresh := &Config{}
	require.NoError(t, m.Overlay(ctx, fresh))
	assert.Equal(t, "file", fresh.Storage)
}
