// Package ledger remembers which datasets have already been announced so
// that re-running publish-social never posts the same dataset twice.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/hkloudou/odwatch/internal/model"
	"github.com/hkloudou/odwatch/internal/storage"
	"github.com/redis/go-redis/v9"
)

// Ledger records announced dataset ids
type Ledger interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

// NoOpLedger never remembers anything
type NoOpLedger struct{}

func (NoOpLedger) Seen(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (NoOpLedger) Mark(ctx context.Context, id string) error {
	return nil
}

// MemoryLedger keeps ids for the life of the process
type MemoryLedger struct {
	mu  sync.Mutex
	ids model.Set
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{ids: make(model.Set)}
}

func (l *MemoryLedger) Seen(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ids.Has(id), nil
}

func (l *MemoryLedger) Mark(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids.Add(id)
	return nil
}

// RedisLedger stores ids in a Redis set
type RedisLedger struct {
	client *redis.Client
	key    string
}

func NewRedisLedger(client *redis.Client, key string) *RedisLedger {
	if key == "" {
		key = "odwatch:posted"
	}
	return &RedisLedger{client: client, key: key}
}

func (l *RedisLedger) Seen(ctx context.Context, id string) (bool, error) {
	ok, err := l.client.SIsMember(ctx, l.key, id).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check ledger: %w", err)
	}
	return ok, nil
}

func (l *RedisLedger) Mark(ctx context.Context, id string) error {
	if err := l.client.SAdd(ctx, l.key, id).Err(); err != nil {
		return fmt.Errorf("failed to update ledger: %w", err)
	}
	return nil
}

// StorageLedger persists ids as a sorted JSON array under one blob key,
// rewriting the blob on every Mark.
type StorageLedger struct {
	mu     sync.Mutex
	store  storage.Storage
	key    string
	ids    model.Set
	loaded bool
}

func NewStorageLedger(store storage.Storage, key string) *StorageLedger {
	if key == "" {
		key = "posted.json.gz"
	}
	return &StorageLedger{store: store, key: key}
}

func (l *StorageLedger) load(ctx context.Context) error {
	if l.loaded {
		return nil
	}
	l.ids = make(model.Set)

	data, err := l.store.Get(ctx, l.key)
	if errors.Is(err, storage.ErrNotFound) {
		l.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return fmt.Errorf("failed to decode ledger: %w", err)
	}
	for _, id := range ids {
		l.ids.Add(id)
	}
	l.loaded = true
	return nil
}

func (l *StorageLedger) Seen(ctx context.Context, id string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(ctx); err != nil {
		return false, err
	}
	return l.ids.Has(id), nil
}

func (l *StorageLedger) Mark(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.load(ctx); err != nil {
		return err
	}
	if l.ids.Has(id) {
		return nil
	}
	l.ids.Add(id)

	data, err := json.Marshal(l.ids.Sorted())
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}
	if err := l.store.Put(ctx, l.key, data); err != nil {
		return fmt.Errorf("failed to save ledger: %w", err)
	}
	return nil
}
