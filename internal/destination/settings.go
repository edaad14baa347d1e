package destination

import (
	"fmt"
	"time"
)

// ExpirationStrategy selects how cached destinations age out.
type ExpirationStrategy string

const (
	// ExpireWhenCreated counts an entry's lifetime from the moment it was
	// written. This is the default.
	ExpireWhenCreated ExpirationStrategy = "when_created"

	// ExpireWhenAccessed resets an entry's lifetime on every read.
	ExpireWhenAccessed ExpirationStrategy = "when_accessed"
)

// ParseExpirationStrategy converts a string into an ExpirationStrategy.
func ParseExpirationStrategy(s string) (ExpirationStrategy, error) {
	switch ExpirationStrategy(s) {
	case ExpireWhenCreated, ExpireWhenAccessed:
		return ExpirationStrategy(s), nil
	case "":
		return ExpireWhenCreated, nil
	}
	return "", fmt.Errorf("unknown expiration strategy %q", s)
}

// CacheSettings are the process-wide cache policy of the engine. They are
// applied when the service is constructed and through the administrative
// setters on Service; every change rebuilds the caches and discards all
// entries.
type CacheSettings struct {
	// Enabled turns caching off entirely when false: every request goes to
	// the configuration service.
	Enabled bool

	// SizeLimit bounds the number of cached destinations. Zero means
	// unbounded.
	SizeLimit int

	// Expiration is the lifetime of a cached entry. Zero means entries
	// never expire.
	Expiration time.Duration

	// Strategy selects whether Expiration counts from write or from last
	// access.
	Strategy ExpirationStrategy

	// ChangeDetection cross-checks cached single destinations against the
	// bulk listing, detecting backend-side edits before full expiry.
	ChangeDetection bool
}

// DefaultCacheSettings returns the settings applied when nothing is
// configured.
func DefaultCacheSettings() CacheSettings {
	return CacheSettings{
		Enabled:    true,
		SizeLimit:  1000,
		Expiration: 5 * time.Minute,
		Strategy:   ExpireWhenCreated,
	}
}
