package destination

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/tenantgrid/destination-bridge/internal/audit"
)

// GetDestination resolves a single destination by name, serving it from the
// cache when possible.
//
// The hot path is lock-free: an optimistic cache read plus staleness check.
// Only a miss enters the per-key critical section, where the cache is checked
// once more before the fetch is issued, so that N concurrent requests for a
// cold key produce exactly one backend call.
func (s *Service) GetDestination(ctx context.Context, name string, opts Options) (*Destination, error) {
	opts = opts.normalized()

	if err := s.validateStrategies(ctx, opts); err != nil {
		return nil, err
	}

	if !s.cachingEnabled() {
		return s.fetch(ctx, name, opts)
	}

	discriminator := opts.discriminator(name)

	// Key selection: ExchangeOnly results are user-specific and must be
	// isolated per tenant and principal, failing when that context is
	// missing. The remaining strategies read through a tenant-scoped key;
	// the exchange-capable ones additionally consult a user-scoped
	// secondary key, which is where exchanged results are written.
	var primary CacheKey
	secondary, hasSecondary := CacheKey{}, false

	switch opts.Exchange {
	case ExchangeOnly:
		key, err := tenantPrincipalKey(ctx, discriminator)
		if err != nil {
			return nil, err
		}
		primary = key
	case LookupOnly:
		primary = tenantKey(ctx, discriminator)
	default: // LookupThenExchange, ForwardUserToken
		primary = tenantKey(ctx, discriminator)
		secondary, hasSecondary = tenantPrincipalKeyOptional(ctx, discriminator)
	}

	if d, ok := s.cachedFresh(ctx, opts, primary, secondary, hasSecondary); ok {
		audit.Log(ctx).CacheHit = true
		return d, nil
	}

	mu := s.locks.acquire(primary)
	mu.Lock()
	defer mu.Unlock()

	// Double-checked locking: a racing request may have populated the
	// cache while this one waited for the lock.
	if d, ok := s.cachedFresh(ctx, opts, primary, secondary, hasSecondary); ok {
		audit.Log(ctx).CacheHit = true
		return d, nil
	}

	d, err := s.fetch(ctx, name, opts)
	if err != nil {
		return nil, err
	}

	if err := s.store(ctx, opts, d, primary, secondary, hasSecondary); err != nil {
		return nil, err
	}

	return d, nil
}

// cachedFresh reads the destination from the primary key, then the secondary
// key if one exists, and subjects any hit to the staleness check.
func (s *Service) cachedFresh(ctx context.Context, opts Options, primary, secondary CacheKey, hasSecondary bool) (*Destination, bool) {
	keys := []CacheKey{primary}
	if hasSecondary {
		keys = append(keys, secondary)
	}

	for _, key := range keys {
		d, found, err := s.destinations.Get(ctx, key)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Stringer("key", key).
				Msg("destination cache read failed; treating as miss")
			continue
		}
		if !found {
			continue
		}
		if s.isStale(ctx, d, opts) {
			continue
		}
		return d, true
	}

	return nil, false
}

// fetch retrieves the destination from the configuration service, handling
// the two-phase LookupThenExchange flow. The authentication type of a
// destination is only known after the first round trip, so the legacy
// strategy first performs a plain lookup and only then decides whether a
// second, user-specific retrieval is needed.
func (s *Service) fetch(ctx context.Context, name string, opts Options) (*Destination, error) {
	if opts.Exchange != LookupThenExchange || opts.RefreshToken != "" {
		return s.client.FetchDestination(ctx, name, s.resolveFetchStrategy(ctx, opts), opts)
	}

	lookupOpts := opts
	lookupOpts.Exchange = LookupOnly

	d, err := s.client.FetchDestination(ctx, name, s.resolveFetchStrategy(ctx, lookupOpts), opts)
	if err != nil {
		return nil, err
	}

	if !d.Authentication().RequiresUserTokenExchange() {
		return d, nil
	}

	if opts.Retrieval == AlwaysProvider && !s.onProviderTenant(ctx) {
		return nil, accessErrorf("destination %q requires a token exchange, which cannot target the provider tenant from a subscriber tenant", name)
	}

	return s.client.FetchDestination(ctx, name, FetchStrategy{Behalf: NamedUserCurrentTenant}, opts)
}

// store decides which key the fetched destination is cached under, based on
// the exchange strategy and the authentication type the fetch revealed.
func (s *Service) store(ctx context.Context, opts Options, d *Destination, primary, secondary CacheKey, hasSecondary bool) error {
	requiresExchange := d.Authentication().RequiresUserTokenExchange()

	switch opts.Exchange {
	case LookupOnly, ExchangeOnly:
		// A mismatch between the requested strategy and the destination's
		// authentication type indicates a misconfiguration, but the result
		// is still served and cached under the strategy's key.
		if opts.Exchange == LookupOnly && requiresExchange {
			log.Ctx(ctx).Warn().Str("destination", d.Name()).
				Str("authenticationType", string(d.Authentication())).
				Msg("destination requires a user token exchange but was retrieved with LookupOnly")
		}
		if opts.Exchange == ExchangeOnly && !requiresExchange {
			log.Ctx(ctx).Warn().Str("destination", d.Name()).
				Str("authenticationType", string(d.Authentication())).
				Msg("destination does not require a user token exchange but was retrieved with ExchangeOnly")
		}
		return s.setCached(ctx, primary, d)

	default: // LookupThenExchange, ForwardUserToken
		if !requiresExchange {
			// Safe to share with every caller of the tenant.
			return s.setCached(ctx, primary, d)
		}
		if !hasSecondary {
			// The result is user-specific; without a resolvable principal
			// there is no safe key, and caching under the tenant key would
			// leak user credentials across the tenant.
			return accessErrorf("destination %q requires a token exchange but no principal is available in the current context", d.Name())
		}
		return s.setCached(ctx, secondary, d)
	}
}

func (s *Service) setCached(ctx context.Context, key CacheKey, d *Destination) error {
	if err := s.destinations.Set(ctx, key, d); err != nil {
		log.Ctx(ctx).Warn().Err(err).Stringer("key", key).
			Msg("destination cache write failed; serving uncached result")
	}
	return nil
}
