package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

// Storage is the interface for blob storage (local directory, OSS, memory).
// Keys are flat, slash-separated paths relative to the storage root.
// Backends that persist to disk or object storage compress (and optionally
// encrypt) on Put and reverse it on Get; callers always see plain bytes.
type Storage interface {
	// Put stores data with the given key, replacing any previous value
	Put(ctx context.Context, key string, data []byte) error

	// Get retrieves data by key; wraps ErrNotFound for missing keys
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes data by key
	Delete(ctx context.Context, key string) error

	// Exists checks if key exists
	Exists(ctx context.Context, key string) (bool, error)

	// List lists all keys with the given prefix (unordered)
	List(ctx context.Context, prefix string) ([]string, error)

	// Namespace identifies the backend instance, used to scope cache keys
	Namespace() string
}
