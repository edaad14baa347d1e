package destination

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// expiryBuffer is the safety margin applied to token and certificate
// expiries: an entry whose credentials expire within this window is treated
// as a miss, so callers never receive credentials that die mid-request.
const expiryBuffer = 10 * time.Second

// isStale decides whether a cached destination can still be served. A stale
// entry is simply treated as a cache miss; it is replaced by the fetch that
// follows, never served.
func (s *Service) isStale(ctx context.Context, d *Destination, opts Options) bool {
	if d.hasTokenError() {
		log.Ctx(ctx).Debug().Str("destination", d.Name()).
			Msg("cached destination carries a token error; refetching")
		return true
	}

	if expiry, ok := d.NearestExpiry(); ok {
		if !expiry.After(s.now().Add(expiryBuffer)) {
			log.Ctx(ctx).Debug().Str("destination", d.Name()).Time("expiry", expiry).
				Msg("cached destination credentials at or near expiry; refetching")
			return true
		}
	}

	if s.settings.ChangeDetection && s.changedInBackend(ctx, d, opts) {
		log.Ctx(ctx).Info().Str("destination", d.Name()).
			Msg("cached destination differs from the bulk listing; refetching")
		return true
	}

	return false
}

// changedInBackend cross-checks a cached destination against the (cached)
// bulk listing. When the listing cannot be obtained the entry is assumed
// unchanged, so a listing outage never forces a refetch. Revoked backend
// credentials may then be served until the entry's own token or certificate
// expiry.
func (s *Service) changedInBackend(ctx context.Context, d *Destination, opts Options) bool {
	listing, err := s.GetAllDestinations(ctx, Options{Retrieval: opts.Retrieval})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("destination", d.Name()).
			Msg("bulk listing unavailable for change detection; assuming unchanged")
		return false
	}

	return changed(d, listing)
}

// changed implements the change-detection comparison. The comparison is
// asymmetric: the bulk listing omits auth-flow specific properties, so
// properties present only on the cached side are ignored unless the
// destination watches them explicitly.
func changed(cached *Destination, listing []*Destination) bool {
	var fresh *Destination
	for _, d := range listing {
		if d.Name() == cached.Name() {
			fresh = d
			break
		}
	}
	if fresh == nil {
		return true
	}

	for name, value := range fresh.Properties() {
		if cachedValue, _ := cached.Property(name); cachedValue != value {
			return true
		}
	}

	for _, name := range cached.ChangeDetectionProperties() {
		cachedValue, _ := cached.Property(name)
		freshValue, _ := fresh.Property(name)
		if cachedValue != freshValue {
			return true
		}
	}

	return false
}
