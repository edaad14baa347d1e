package destination

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tenantgrid/destination-bridge/internal/cache"
)

// Client is the wire-level collaborator retrieving destinations from the
// configuration service. Implementations own transport, serialization and
// resilience (timeouts, circuit breaking, retries); the engine imposes no
// timeout of its own and propagates whatever error the client raises.
//
// FetchDestination may return *NotFoundError or *AccessError. The listing
// calls return properties-only destinations (no tokens or certificates).
type Client interface {
	FetchDestination(ctx context.Context, name string, strategy FetchStrategy, opts Options) (*Destination, error)
	FetchSubaccountDestinations(ctx context.Context, behalf OnBehalfOf) ([]*Destination, error)
	FetchInstanceDestinations(ctx context.Context, behalf OnBehalfOf) ([]*Destination, error)
}

// Service resolves and caches destinations. It is safe for concurrent use by
// request handlers; the administrative setters are not, and belong to
// startup.
type Service struct {
	client         Client
	providerTenant string

	settings CacheSettings
	locks    *lockRegistry

	// destinations caches individually retrieved destinations; listings
	// caches the bulk listing per tenant. Both are nil while caching is
	// disabled.
	destinations cache.Store[CacheKey, *Destination]
	listings     cache.Store[CacheKey, []*Destination]

	now func() time.Time
}

// NewService creates a destination resolution service backed by the given
// client. providerTenantID identifies the provider tenant for strategy
// validation.
func NewService(client Client, providerTenantID string, settings CacheSettings) (*Service, error) {
	s := &Service{
		client:         client,
		providerTenant: providerTenantID,
		locks:          newLockRegistry(),
		now:            time.Now,
	}
	if err := s.applySettings(settings); err != nil {
		return nil, err
	}
	return s, nil
}

// applySettings swaps in freshly created caches for the given settings,
// discarding all existing entries.
func (s *Service) applySettings(settings CacheSettings) error {
	if _, err := ParseExpirationStrategy(string(settings.Strategy)); err != nil {
		return err
	}
	if settings.Strategy == "" {
		settings.Strategy = ExpireWhenCreated
	}

	s.closeCaches()
	s.settings = settings

	if !settings.Enabled {
		s.destinations = nil
		s.listings = nil
		log.Info().Msg("destination cache disabled; all requests go to the configuration service")
		return nil
	}

	opts := cache.MemoryOptions{
		MaxSize:        settings.SizeLimit,
		TTL:            settings.Expiration,
		ExpireOnAccess: settings.Strategy == ExpireWhenAccessed,
	}

	destinations, err := cache.NewMemory[CacheKey, *Destination](opts)
	if err != nil {
		return err
	}
	listings, err := cache.NewMemory[CacheKey, []*Destination](opts)
	if err != nil {
		return err
	}

	s.destinations = cache.NewInstrumented[CacheKey, *Destination](destinations, "destination")
	s.listings = cache.NewInstrumented[CacheKey, []*Destination](listings, "destination-listing")

	log.Info().
		Int("sizeLimit", settings.SizeLimit).
		Dur("expiration", settings.Expiration).
		Str("strategy", string(settings.Strategy)).
		Bool("changeDetection", settings.ChangeDetection).
		Msg("destination cache created")

	return nil
}

func (s *Service) closeCaches() {
	if s.destinations != nil {
		_ = s.destinations.Close()
	}
	if s.listings != nil {
		_ = s.listings.Close()
	}
}

func (s *Service) cachingEnabled() bool {
	return s.settings.Enabled && s.destinations != nil
}

// SetCacheSizeLimit changes the cache size bound. All cached entries are
// discarded. Not safe to call concurrently with active traffic.
func (s *Service) SetCacheSizeLimit(limit int) error {
	settings := s.settings
	settings.SizeLimit = limit
	return s.applySettings(settings)
}

// SetCacheExpiration changes entry lifetime and expiration strategy. All
// cached entries are discarded. Not safe to call concurrently with active
// traffic.
func (s *Service) SetCacheExpiration(ttl time.Duration, strategy ExpirationStrategy) error {
	settings := s.settings
	settings.Expiration = ttl
	settings.Strategy = strategy
	return s.applySettings(settings)
}

// SetCacheEnabled turns caching on or off. All cached entries are discarded.
// Not safe to call concurrently with active traffic.
func (s *Service) SetCacheEnabled(enabled bool) error {
	settings := s.settings
	settings.Enabled = enabled
	return s.applySettings(settings)
}

// SetChangeDetection toggles bulk-listing cross-checks of cached entries.
// All cached entries are discarded. Not safe to call concurrently with
// active traffic.
func (s *Service) SetChangeDetection(enabled bool) error {
	settings := s.settings
	settings.ChangeDetection = enabled
	return s.applySettings(settings)
}

// Close releases the caches.
func (s *Service) Close() error {
	s.closeCaches()
	return nil
}
