package config

import (
	"fmt"
	"log/slog"

	"github.com/hkloudou/odwatch/internal/cache"
	"github.com/hkloudou/odwatch/internal/ledger"
	"github.com/hkloudou/odwatch/internal/social"
	"github.com/hkloudou/odwatch/internal/storage"
	"github.com/redis/go-redis/v9"
)

// CreateStorage creates the snapshot storage based on configuration
func (cfg *Config) CreateStorage() (storage.Storage, error) {
	switch cfg.Storage {
	case "memory":
		return storage.NewMemoryStorage("raw"), nil

	case "file", "":
		return storage.NewFileStorage(storage.FileConfig{
			Name:     "raw",
			BasePath: cfg.RawDir(),
			AESKey:   cfg.AESKey,
		})

	case "oss":
		return storage.NewOSSStorage(storage.OSSConfig{
			Endpoint:  cfg.Endpoint,
			Bucket:    cfg.Bucket,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Prefix:    cfg.Prefix,
			AESKey:    cfg.AESKey,
			Internal:  cfg.OSSInternal,
		})

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage)
	}
}

// RedisClient connects to RedisURL
func (cfg *Config) RedisClient() (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return redis.NewClient(opt), nil
}

// CreateCache creates the blob cache based on configuration
func (cfg *Config) CreateCache(log *slog.Logger) (cache.Cache, error) {
	switch cfg.Cache {
	case "none", "":
		return cache.NewNoOpCache(), nil
	case "memory":
		return cache.NewMemoryCache(cfg.CacheTTL, log), nil
	case "redis":
		rdb, err := cfg.RedisClient()
		if err != nil {
			return nil, err
		}
		return cache.NewRedisCache(rdb, cfg.CacheTTL, log), nil
	default:
		return nil, fmt.Errorf("unknown cache type: %s", cfg.Cache)
	}
}

// CreateLedger creates the posted-ids ledger based on configuration
func (cfg *Config) CreateLedger() (ledger.Ledger, error) {
	switch cfg.Ledger {
	case "none":
		return ledger.NoOpLedger{}, nil
	case "memory":
		return ledger.NewMemoryLedger(), nil
	case "file", "":
		store, err := storage.NewFileStorage(storage.FileConfig{
			Name:     "state",
			BasePath: cfg.StateDir(),
		})
		if err != nil {
			return nil, err
		}
		return ledger.NewStorageLedger(store, ""), nil
	case "redis":
		rdb, err := cfg.RedisClient()
		if err != nil {
			return nil, err
		}
		return ledger.NewRedisLedger(rdb, ""), nil
	default:
		return nil, fmt.Errorf("unknown ledger type: %s", cfg.Ledger)
	}
}

// CreatePoster creates the social backend based on configuration
func (cfg *Config) CreatePoster() (social.Poster, error) {
	switch cfg.Social {
	case "mastodon", "":
		return social.NewMastodonPoster(social.MastodonConfig{
			Server:       cfg.MastodonServer,
			ClientID:     cfg.MastodonClientID,
			ClientSecret: cfg.MastodonClientSecret,
			AccessToken:  cfg.MastodonAccessToken,
		}, nil)
	case "slack":
		return social.NewSlackPoster(cfg.SlackWebhookURL)
	case "dry-run":
		return &social.RecordingPoster{}, nil
	default:
		return nil, fmt.Errorf("unknown social backend: %s", cfg.Social)
	}
}
