package cache

import (
	"context"
)

// Store defines the interface for cache implementations used by the
// destination engine. The key type K must be comparable; the engine uses its
// composite cache key, tests may use plain strings.
//
// Implementations must be safe for concurrent use. The engine layers its own
// per-key locking on top for fetch deduplication; reads and writes here are
// expected to be lock-free.
type Store[K comparable, V any] interface {
	// Get retrieves a value from the cache.
	// Returns the value, whether it was found, and any error.
	Get(ctx context.Context, key K) (V, bool, error)

	// Set stores a value in the cache.
	Set(ctx context.Context, key K, value V) error

	// Invalidate removes a value from the cache.
	Invalidate(ctx context.Context, key K) error

	// Close releases any resources held by the cache.
	Close() error
}
