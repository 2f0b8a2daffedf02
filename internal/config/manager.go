package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SettingsKey is the Redis key holding shared settings
const SettingsKey = "odwatch.setting"

// Manager stores settings in Redis so several hosts running the same
// schedule share one storage/feed/social configuration
type Manager struct {
	rdb *redis.Client
	key string
}

// NewManager creates a new settings manager
func NewManager(rdb *redis.Client) *Manager {
	return &Manager{rdb: rdb, key: SettingsKey}
}

// Overlay reads the stored settings and applies the fields they set on
// top of cfg. A missing key leaves cfg unchanged.
func (m *Manager) Overlay(ctx context.Context, cfg *Config) error {
	data, err := m.rdb.Get(ctx, m.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s from Redis: %w", m.key, err)
	}

	// Unmarshal onto the existing struct: absent JSON fields keep their value
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", m.key, err)
	}
	return cfg.Validate()
}

// Save writes cfg to Redis
func (m *Manager) Save(ctx context.Context, cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := m.rdb.Set(ctx, m.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save config to Redis: %w", err)
	}
	return nil
}
