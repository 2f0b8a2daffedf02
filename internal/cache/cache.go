// Package cache fronts blob reads. Snapshot blobs never change once
// written, so any successful load can be kept until its TTL expires.
package cache

import "context"

// Cache is a read-through cache for []byte blobs.
type Cache interface {
	// Take returns the value cached under namespace+key. On a miss it calls
	// loader, caches the result and returns it. Loader errors are never cached.
	Take(ctx context.Context, namespace, key string, loader func() ([]byte, error)) ([]byte, error)
}

// NoOpCache always calls the loader
type NoOpCache struct{}

// NewNoOpCache creates a new no-op cache
func NewNoOpCache() *NoOpCache {
	return &NoOpCache{}
}

// Take always calls the loader (no caching)
func (c *NoOpCache) Take(ctx context.Context, namespace, key string, loader func() ([]byte, error)) ([]byte, error) {
	return loader()
}

func cacheKey(namespace, key string) string {
	return namespace + ":" + key
}
