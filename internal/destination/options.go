package destination

import (
	"fmt"
	"sort"
	"strings"
)

// RetrievalStrategy selects whose destinations a request queries.
type RetrievalStrategy string

const (
	// AlwaysProvider queries the provider tenant's destinations regardless
	// of the tenant the request executes for.
	AlwaysProvider RetrievalStrategy = "AlwaysProvider"

	// CurrentTenant queries the destinations of the tenant the request
	// executes for. This is the default.
	CurrentTenant RetrievalStrategy = "CurrentTenant"

	// OnlySubscriber queries the current tenant's destinations and rejects
	// requests executing on the provider tenant.
	OnlySubscriber RetrievalStrategy = "OnlySubscriber"
)

// ParseRetrievalStrategy converts a string into a RetrievalStrategy.
func ParseRetrievalStrategy(s string) (RetrievalStrategy, error) {
	switch RetrievalStrategy(s) {
	case AlwaysProvider, CurrentTenant, OnlySubscriber:
		return RetrievalStrategy(s), nil
	case "":
		return CurrentTenant, nil
	}
	return "", fmt.Errorf("unknown retrieval strategy %q", s)
}

// TokenExchangeStrategy selects whether and how the caller's bearer token
// participates in destination retrieval.
type TokenExchangeStrategy string

const (
	// ForwardUserToken attaches the caller's bearer token to the retrieval
	// call, letting the configuration service perform any required exchange
	// in a single round trip.
	ForwardUserToken TokenExchangeStrategy = "ForwardUserToken"

	// LookupThenExchange first retrieves the destination without a user
	// token, then repeats the retrieval with a user-specific identity if the
	// destination's authentication type turns out to require an exchange.
	//
	// Deprecated: use ForwardUserToken. Retained as the default for
	// backward compatibility.
	LookupThenExchange TokenExchangeStrategy = "LookupThenExchange"

	// LookupOnly retrieves the destination without ever attaching a user
	// token.
	//
	// Deprecated: use ForwardUserToken.
	LookupOnly TokenExchangeStrategy = "LookupOnly"

	// ExchangeOnly retrieves the destination on behalf of the named user of
	// the current tenant, unconditionally.
	//
	// Deprecated: use ForwardUserToken.
	ExchangeOnly TokenExchangeStrategy = "ExchangeOnly"
)

// ParseTokenExchangeStrategy converts a string into a TokenExchangeStrategy.
func ParseTokenExchangeStrategy(s string) (TokenExchangeStrategy, error) {
	switch TokenExchangeStrategy(s) {
	case ForwardUserToken, LookupThenExchange, LookupOnly, ExchangeOnly:
		return TokenExchangeStrategy(s), nil
	case "":
		return LookupThenExchange, nil
	}
	return "", fmt.Errorf("unknown token exchange strategy %q", s)
}

// Options carries the per-request parameters of a destination lookup.
// The zero value is valid and selects the default strategies.
type Options struct {
	// Retrieval selects whose destinations to query. Defaults to
	// CurrentTenant.
	Retrieval RetrievalStrategy

	// Exchange selects how the caller's bearer token participates in the
	// retrieval. Defaults to LookupThenExchange.
	Exchange TokenExchangeStrategy

	// RefreshToken, when set, takes precedence over any ambient bearer
	// token and over the Exchange strategy.
	RefreshToken string

	// Properties are additional retrieval parameters forwarded to the
	// configuration service. They participate in the cache key.
	Properties map[string]string
}

// normalized returns the options with defaults applied.
func (o Options) normalized() Options {
	if o.Retrieval == "" {
		o.Retrieval = CurrentTenant
	}
	if o.Exchange == "" {
		o.Exchange = LookupThenExchange
	}
	return o
}

// discriminator renders the request-specific part of the cache key in a
// fixed, deterministic order. The exchange strategy is not part of it:
// strategies that may share results (LookupThenExchange and
// ForwardUserToken) share cache entries, and isolation between the others is
// carried by the key's tenant/principal component.
func (o Options) discriminator(name string) string {
	parts := []string{name, string(o.Retrieval)}

	if len(o.Properties) > 0 {
		keys := make([]string, 0, len(o.Properties))
		for k := range o.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, k+"="+o.Properties[k])
		}
	}

	return strings.Join(parts, "\x1f")
}
