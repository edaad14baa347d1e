package destination

import (
	"context"

	"github.com/rs/zerolog/log"
)

// GetAllDestinations returns the bulk destination listing for the current
// tenant: the merge of the instance-level and subaccount-level listings,
// with instance-level entries winning on name collision.
//
// The listing is cached under a tenant-scoped key with the same
// double-checked locking discipline as single destinations. Besides its use
// as a public API, it serves as the staleness oracle for change detection.
func (s *Service) GetAllDestinations(ctx context.Context, opts Options) ([]*Destination, error) {
	opts = opts.normalized()

	if err := s.validateStrategies(ctx, opts); err != nil {
		return nil, err
	}

	if !s.cachingEnabled() {
		return s.fetchAll(ctx, opts)
	}

	key := tenantKey(ctx, opts.discriminator("\x00all"))

	if listing, found, err := s.listings.Get(ctx, key); err == nil && found {
		return listing, nil
	} else if err != nil {
		log.Ctx(ctx).Warn().Err(err).Stringer("key", key).
			Msg("listing cache read failed; treating as miss")
	}

	mu := s.locks.acquire(key)
	mu.Lock()
	defer mu.Unlock()

	if listing, found, err := s.listings.Get(ctx, key); err == nil && found {
		return listing, nil
	}

	listing, err := s.fetchAll(ctx, opts)
	if err != nil {
		return nil, err
	}

	if err := s.listings.Set(ctx, key, listing); err != nil {
		log.Ctx(ctx).Warn().Err(err).Stringer("key", key).
			Msg("listing cache write failed; serving uncached result")
	}

	return listing, nil
}

// fetchAll retrieves and merges the two backend listings.
func (s *Service) fetchAll(ctx context.Context, opts Options) ([]*Destination, error) {
	behalf := behalfFor(opts.Retrieval)

	instance, err := s.client.FetchInstanceDestinations(ctx, behalf)
	if err != nil {
		return nil, err
	}
	subaccount, err := s.client.FetchSubaccountDestinations(ctx, behalf)
	if err != nil {
		return nil, err
	}

	merged := make([]*Destination, 0, len(instance)+len(subaccount))
	seen := make(map[string]struct{}, len(instance))

	for _, d := range instance {
		merged = append(merged, d)
		seen[d.Name()] = struct{}{}
	}
	for _, d := range subaccount {
		if _, dup := seen[d.Name()]; dup {
			continue
		}
		merged = append(merged, d)
	}

	return merged, nil
}
