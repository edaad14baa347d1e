package destination

import (
	"context"
	"sync"
	"time"

	"github.com/tenantgrid/destination-bridge/internal/tenancy"
)

// stubClient is a scriptable Client implementation recording every call.
type stubClient struct {
	mu sync.Mutex

	fetchFn      func(name string, strategy FetchStrategy, opts Options) (*Destination, error)
	instanceFn   func(behalf OnBehalfOf) ([]*Destination, error)
	subaccountFn func(behalf OnBehalfOf) ([]*Destination, error)

	fetchCalls   []fetchCall
	listingCalls int
}

type fetchCall struct {
	name     string
	strategy FetchStrategy
}

func (c *stubClient) FetchDestination(ctx context.Context, name string, strategy FetchStrategy, opts Options) (*Destination, error) {
	c.mu.Lock()
	c.fetchCalls = append(c.fetchCalls, fetchCall{name: name, strategy: strategy})
	fn := c.fetchFn
	c.mu.Unlock()

	if fn == nil {
		return basicDestination(name), nil
	}
	return fn(name, strategy, opts)
}

func (c *stubClient) FetchInstanceDestinations(ctx context.Context, behalf OnBehalfOf) ([]*Destination, error) {
	c.mu.Lock()
	c.listingCalls++
	fn := c.instanceFn
	c.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(behalf)
}

func (c *stubClient) FetchSubaccountDestinations(ctx context.Context, behalf OnBehalfOf) ([]*Destination, error) {
	c.mu.Lock()
	fn := c.subaccountFn
	c.mu.Unlock()

	if fn == nil {
		return nil, nil
	}
	return fn(behalf)
}

func (c *stubClient) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fetchCalls)
}

func (c *stubClient) lastFetch() fetchCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchCalls[len(c.fetchCalls)-1]
}

func basicDestination(name string) *Destination {
	return New(map[string]string{
		PropertyName:           name,
		PropertyURL:            "https://backend.example.com",
		PropertyAuthentication: string(BasicAuthentication),
	}, nil, nil)
}

func exchangeDestination(name string) *Destination {
	return New(map[string]string{
		PropertyName:           name,
		PropertyURL:            "https://backend.example.com",
		PropertyAuthentication: string(OAuth2UserTokenExchange),
	}, nil, nil)
}

func expiringDestination(name string, expiry time.Time) *Destination {
	return New(map[string]string{
		PropertyName:           name,
		PropertyURL:            "https://backend.example.com",
		PropertyAuthentication: string(OAuth2ClientCredentials),
	}, nil, []AuthToken{
		{Type: "bearer", Value: "opaque", Expiry: &expiry},
	})
}

func tenantContext(tenantID string) context.Context {
	return tenancy.WithTenant(context.Background(), tenancy.Tenant{ID: tenantID})
}

func principalContext(tenantID, principal string) context.Context {
	ctx := tenantContext(tenantID)
	return tenancy.WithPrincipal(ctx, tenancy.Principal{Name: principal})
}

func withToken(ctx context.Context, token string) context.Context {
	return tenancy.WithToken(ctx, token)
}

func newTestService(client Client, settings CacheSettings) *Service {
	s, err := NewService(client, "provider-tenant", settings)
	if err != nil {
		panic(err)
	}
	return s
}
