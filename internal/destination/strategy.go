package destination

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/tenantgrid/destination-bridge/internal/tenancy"
)

// OnBehalfOf is the identity a retrieval call executes as against the
// configuration service.
type OnBehalfOf string

const (
	// TechnicalUserProvider calls as the technical user of the provider
	// tenant.
	TechnicalUserProvider OnBehalfOf = "technicalUserProvider"

	// TechnicalUserCurrentTenant calls as the technical user of the tenant
	// the request executes for.
	TechnicalUserCurrentTenant OnBehalfOf = "technicalUserCurrentTenant"

	// NamedUserCurrentTenant calls as the named end user of the current
	// tenant, for token exchange flows.
	NamedUserCurrentTenant OnBehalfOf = "namedUserCurrentTenant"
)

// FetchStrategy is the resolved "on behalf of whom" for a single retrieval
// call, plus the token material attached to it. It is handed to the Client
// unchanged.
type FetchStrategy struct {
	Behalf OnBehalfOf

	// UserToken is the caller's bearer token, forwarded verbatim. Empty
	// when the call carries no user identity.
	UserToken string

	// RefreshToken, when set, replaces any user token.
	RefreshToken string
}

func behalfFor(retrieval RetrievalStrategy) OnBehalfOf {
	if retrieval == AlwaysProvider {
		return TechnicalUserProvider
	}
	return TechnicalUserCurrentTenant
}

// onProviderTenant reports whether the current context executes on the
// provider tenant. A request with no tenant context belongs to the provider:
// only the provider's own workloads run outside a subscriber context.
func (s *Service) onProviderTenant(ctx context.Context) bool {
	tenant, ok := tenancy.TenantFromContext(ctx)
	if !ok {
		return true
	}
	return tenant.ID == s.providerTenant
}

// validateStrategies rejects strategy combinations that cannot be served,
// before any key derivation or network traffic happens.
func (s *Service) validateStrategies(ctx context.Context, opts Options) error {
	onProvider := s.onProviderTenant(ctx)

	if opts.Retrieval == OnlySubscriber && onProvider {
		return accessErrorf("OnlySubscriber requested while executing on the provider tenant")
	}

	if opts.Retrieval == AlwaysProvider && !onProvider {
		if opts.Exchange == ExchangeOnly {
			return accessErrorf("cannot exchange a token on the provider tenant while executing on a subscriber tenant")
		}
		if opts.Exchange != LookupOnly {
			log.Ctx(ctx).Warn().
				Str("retrievalStrategy", string(opts.Retrieval)).
				Str("tokenExchangeStrategy", string(opts.Exchange)).
				Msg("retrieving provider destinations from a subscriber tenant; user token flows will target the provider")
		}
	}

	return nil
}

// resolveFetchStrategy derives the identity and token attachment of a single
// retrieval call. LookupThenExchange never reaches this function: its two
// phases are decomposed by the single-destination command before strategy
// resolution, so hitting that branch is a programming error.
func (s *Service) resolveFetchStrategy(ctx context.Context, opts Options) FetchStrategy {
	behalf := behalfFor(opts.Retrieval)

	if opts.RefreshToken != "" {
		return FetchStrategy{Behalf: behalf, RefreshToken: opts.RefreshToken}
	}

	switch opts.Exchange {
	case ForwardUserToken:
		if token, ok := tenancy.TokenFromContext(ctx); ok {
			return FetchStrategy{Behalf: behalf, UserToken: token}
		}
		log.Ctx(ctx).Warn().
			Msg("no user token in the current context; falling back to technical user lookup")
		return FetchStrategy{Behalf: behalf}

	case LookupOnly:
		return FetchStrategy{Behalf: behalf}

	case ExchangeOnly:
		// Exchange flows must run against the current tenant's identity
		// service, overriding the retrieval strategy's tenant choice.
		return FetchStrategy{Behalf: NamedUserCurrentTenant}

	case LookupThenExchange:
		panic("LookupThenExchange must be decomposed before strategy resolution")

	default:
		panic("unknown token exchange strategy " + string(opts.Exchange))
	}
}
