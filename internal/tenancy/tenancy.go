// Package tenancy carries the tenant, principal and bearer token of the
// current request through the context. The values are populated by the auth
// middleware; everything downstream treats them as optional.
package tenancy

import (
	"context"
)

// Tenant identifies the subaccount a request is executing for.
type Tenant struct {
	// ID is the unique identifier of the tenant (the "zone" of the issuing
	// identity provider).
	ID string

	// Subdomain is the tenant-specific subdomain used to address
	// tenant-aware platform services. May be empty.
	Subdomain string
}

// Principal identifies the end user behind a request, as distinct from the
// tenant the request executes for.
type Principal struct {
	// Name is the logon name of the user.
	Name string

	// Origin is the identity provider origin key, when known.
	Origin string
}

type tenantContextKey struct{}
type principalContextKey struct{}
type tokenContextKey struct{}

// WithTenant returns a context carrying the given tenant.
func WithTenant(ctx context.Context, t Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// TenantFromContext returns the current tenant, if one has been established
// for this request.
func TenantFromContext(ctx context.Context) (Tenant, bool) {
	t, ok := ctx.Value(tenantContextKey{}).(Tenant)
	return t, ok && t.ID != ""
}

// WithPrincipal returns a context carrying the given principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the current principal, if one has been
// established for this request. Technical (client credential) callers have no
// principal.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok && p.Name != ""
}

// WithToken returns a context carrying the raw bearer token of the inbound
// request.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the raw bearer token of the inbound request, if
// present.
func TokenFromContext(ctx context.Context) (string, bool) {
	t, ok := ctx.Value(tokenContextKey{}).(string)
	return t, ok && t != ""
}
