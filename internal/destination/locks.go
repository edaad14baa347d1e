package destination

import (
	"sync"
	"time"
)

const (
	// lockIdleExpiry is how long an unused lock entry stays registered. It
	// bounds memory growth of stale entries only; expiry is never needed
	// for correctness, since a missing lock simply means a fresh one is
	// created.
	lockIdleExpiry = 30 * time.Minute

	lockSweepInterval = time.Minute
)

type lockEntry struct {
	mu      sync.Mutex
	lastUse time.Time
}

// lockRegistry hands out one mutex per cache key, used to serialize cache
// population ("single-flight"). Entries are pruned after lockIdleExpiry of
// inactivity, independently of the data cache's own expiry. All concurrent
// callers of a key must receive the same mutex instance, so entries are
// created with compute-if-absent semantics under the registry's own lock.
type lockRegistry struct {
	mu        sync.Mutex
	entries   map[CacheKey]*lockEntry
	lastSweep time.Time

	now func() time.Time
}

func newLockRegistry() *lockRegistry {
	return &lockRegistry{
		entries: make(map[CacheKey]*lockEntry),
		now:     time.Now,
	}
}

// acquire returns the lock for the given key, creating it if absent. All
// concurrent callers of the same key receive the same mutex instance. The
// caller locks and unlocks the returned mutex itself.
func (r *lockRegistry) acquire(key CacheKey) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweep(now)

	entry, ok := r.entries[key]
	if !ok {
		entry = &lockEntry{}
		r.entries[key] = entry
	}
	entry.lastUse = now

	return &entry.mu
}

// sweep drops entries idle for longer than lockIdleExpiry. Called with r.mu
// held; rate-limited so acquire stays cheap.
func (r *lockRegistry) sweep(now time.Time) {
	if now.Sub(r.lastSweep) < lockSweepInterval {
		return
	}
	r.lastSweep = now

	for key, entry := range r.entries {
		if now.Sub(entry.lastUse) >= lockIdleExpiry {
			delete(r.entries, key)
		}
	}
}

// size reports the number of registered locks.
func (r *lockRegistry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
