package destination

import (
	"context"
	"fmt"

	"github.com/tenantgrid/destination-bridge/internal/tenancy"
)

type isolation int

const (
	isolationTenant isolation = iota
	isolationTenantPrincipal
)

// noTenant is the sentinel tenant component used when a tenant-isolated key
// is derived outside any tenant context. It cannot collide with a real
// tenant: tenant IDs are never empty, and context access treats an empty ID
// as absent.
const noTenant = ""

// CacheKey is the composite, comparable key the engine caches under. It is
// built from an isolation component (tenant, or tenant plus principal) and a
// request discriminator (destination name, retrieval strategy, extra lookup
// parameters) appended in a fixed order.
//
// Two semantically identical requests always produce equal keys; requests
// differing in tenant or principal produce different keys whenever the
// isolation level requires it.
type CacheKey struct {
	scope         isolation
	tenantID      string
	principalName string
	discriminator string
}

// String renders the key for logs.
func (k CacheKey) String() string {
	tenant := k.tenantID
	if tenant == noTenant {
		tenant = "<none>"
	}
	if k.scope == isolationTenantPrincipal {
		return fmt.Sprintf("tenant=%s principal=%s %s", tenant, k.principalName, k.discriminator)
	}
	return fmt.Sprintf("tenant=%s %s", tenant, k.discriminator)
}

// tenantKey derives a tenant-isolated key. A missing tenant context degrades
// to a sentinel component rather than failing: destinations resolved outside
// a tenant context are shared in a process-wide scope.
func tenantKey(ctx context.Context, discriminator string) CacheKey {
	key := CacheKey{scope: isolationTenant, discriminator: discriminator}
	if tenant, ok := tenancy.TenantFromContext(ctx); ok {
		key.tenantID = tenant.ID
	} else {
		key.tenantID = noTenant
	}
	return key
}

// tenantPrincipalKey derives a tenant-plus-principal isolated key. Missing
// tenant or principal context is an error that must propagate: caching a
// user-specific destination under anything less specific would leak it
// across users.
func tenantPrincipalKey(ctx context.Context, discriminator string) (CacheKey, error) {
	tenant, ok := tenancy.TenantFromContext(ctx)
	if !ok {
		return CacheKey{}, accessErrorf("no tenant available in the current context")
	}
	principal, ok := tenancy.PrincipalFromContext(ctx)
	if !ok {
		return CacheKey{}, accessErrorf("no principal available in the current context")
	}

	return CacheKey{
		scope:         isolationTenantPrincipal,
		tenantID:      tenant.ID,
		principalName: principal.Name,
		discriminator: discriminator,
	}, nil
}

// tenantPrincipalKeyOptional is the degrading variant of tenantPrincipalKey:
// it reports whether a key could be derived instead of failing.
func tenantPrincipalKeyOptional(ctx context.Context, discriminator string) (CacheKey, bool) {
	key, err := tenantPrincipalKey(ctx, discriminator)
	return key, err == nil
}
