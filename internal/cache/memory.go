package cache

import (
	"context"
	"time"

	"github.com/maypok86/otter/v2"
	"github.com/maypok86/otter/v2/stats"
)

// MemoryOptions controls construction of an in-memory cache.
type MemoryOptions struct {
	// MaxSize limits the number of entries held. Zero means unbounded.
	MaxSize int

	// TTL is the entry lifetime. Zero means entries never expire.
	TTL time.Duration

	// ExpireOnAccess resets an entry's lifetime on every read, instead of
	// counting from the time the entry was created.
	ExpireOnAccess bool
}

// Memory is an in-memory cache implementation using otter.
type Memory[K comparable, V any] struct {
	cache   *otter.Cache[K, V]
	counter *stats.Counter
}

// NewMemory creates a new in-memory cache with the supplied bounds.
func NewMemory[K comparable, V any](opts MemoryOptions) (*Memory[K, V], error) {
	counter := stats.NewCounter()

	options := &otter.Options[K, V]{
		StatsRecorder: counter,
	}
	if opts.MaxSize > 0 {
		options.MaximumSize = opts.MaxSize
	}
	if opts.TTL > 0 {
		if opts.ExpireOnAccess {
			options.ExpiryCalculator = otter.ExpiryAccessing[K, V](opts.TTL)
		} else {
			options.ExpiryCalculator = otter.ExpiryCreating[K, V](opts.TTL)
		}
	}

	cache := otter.Must(options)

	return &Memory[K, V]{
		cache:   cache,
		counter: counter,
	}, nil
}

// Get retrieves a value from the cache.
// Returns the value, whether it was found, and any error.
func (m *Memory[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	entry, ok := m.cache.GetEntry(key)
	if !ok {
		var zero V
		return zero, false, nil
	}

	return entry.Value, true, nil
}

// Set stores a value in the cache.
func (m *Memory[K, V]) Set(ctx context.Context, key K, value V) error {
	m.cache.Set(key, value)
	return nil
}

// Invalidate removes a value from the cache.
func (m *Memory[K, V]) Invalidate(ctx context.Context, key K) error {
	m.cache.Invalidate(key)
	return nil
}

// Close releases any resources held by the cache.
func (m *Memory[K, V]) Close() error {
	return nil
}
