package service

import (
	"context"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v5"
	"github.com/tenantgrid/destination-bridge/internal/config"
	"github.com/tenantgrid/destination-bridge/internal/destination"
	"github.com/tenantgrid/destination-bridge/internal/tenancy"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const tenantPlaceholder = "{tenant}"

// tokenSource issues technical user tokens for the destination service via
// the client credentials grant, one cached source per token endpoint. Token
// reuse until expiry is handled by oauth2; transient failures are retried
// with exponential backoff.
type tokenSource struct {
	cfg config.DestinationServiceConfig

	mu      sync.Mutex
	sources map[string]oauth2.TokenSource
}

func newTokenSource(cfg config.DestinationServiceConfig) *tokenSource {
	return &tokenSource{
		cfg:     cfg,
		sources: make(map[string]oauth2.TokenSource),
	}
}

// token returns a technical user access token for the tenant implied by the
// behalf identity: the provider tenant, or the tenant of the current
// context.
func (t *tokenSource) token(ctx context.Context, behalf destination.OnBehalfOf) (string, error) {
	source := t.source(t.endpoint(ctx, behalf))

	tok, err := backoff.Retry(ctx,
		func() (*oauth2.Token, error) { return source.Token() },
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
	)
	if err != nil {
		return "", err
	}

	return tok.AccessToken, nil
}

// endpoint resolves the token endpoint for the target tenant. Without a
// tenant placeholder in the configured URL, all tenants share one endpoint.
func (t *tokenSource) endpoint(ctx context.Context, behalf destination.OnBehalfOf) string {
	subdomain := t.cfg.ProviderSubdomain

	if behalf != destination.TechnicalUserProvider {
		if tenant, ok := tenancy.TenantFromContext(ctx); ok && tenant.Subdomain != "" {
			subdomain = tenant.Subdomain
		}
	}

	return strings.ReplaceAll(t.cfg.TokenServiceURL, tenantPlaceholder, subdomain)
}

func (t *tokenSource) source(endpoint string) oauth2.TokenSource {
	t.mu.Lock()
	defer t.mu.Unlock()

	if source, ok := t.sources[endpoint]; ok {
		return source
	}

	cc := &clientcredentials.Config{
		ClientID:     t.cfg.ClientID,
		ClientSecret: t.cfg.ClientSecret,
		TokenURL:     endpoint,
	}

	// The background context pins token requests to http.DefaultClient,
	// which carries the instrumented transport.
	source := cc.TokenSource(context.Background())
	t.sources[endpoint] = source

	return source
}
