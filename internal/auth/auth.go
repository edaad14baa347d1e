// Package auth validates inbound platform JWTs and establishes the tenancy
// context (tenant, principal, bearer token) for request handling.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	jwtmiddleware "github.com/auth0/go-jwt-middleware/v2"
	"github.com/auth0/go-jwt-middleware/v2/jwks"
	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/justinas/alice"
	"github.com/rs/zerolog/log"
	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/tenantgrid/destination-bridge/internal/config"
	"github.com/tenantgrid/destination-bridge/internal/tenancy"
)

// Middleware returns HTTP middleware that verifies the JWT of an inbound
// request and populates the tenancy context from its claims. Downstream
// handlers read the tenant, principal and raw token through the tenancy
// accessors.
func Middleware(cfg config.AuthorizationConfig) (func(http.Handler) http.Handler, error) {
	// allow for static configuration when testing
	jwksConfig := remoteJWKS
	if cfg.ConfigurationStatic != "" {
		jwksConfig = staticJWKS
	}

	issuerURL, keyFunc, err := jwksConfig(cfg)
	if err != nil {
		return nil, err
	}

	jwtValidator, err := validator.New(
		keyFunc,
		validator.RS256,
		issuerURL.String(),
		[]string{cfg.Audience},
		validator.WithAllowedClockSkew(5*time.Second),
		validator.WithCustomClaims(func() validator.CustomClaims {
			return &PlatformClaims{}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set up the validator: %w", err)
	}

	middleware := jwtmiddleware.New(
		jwtValidator.ValidateToken,
		jwtmiddleware.WithErrorHandler(logErrorHandler()),
	)

	return alice.New(middleware.CheckJWT, tenancyMiddleware()).Then, nil
}

type claimsContextKey struct{}

// ContextWithClaims returns a context carrying validated claims. This is
// primarily for test usage.
func ContextWithClaims(ctx context.Context, claims *validator.ValidatedClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// ContextWithPlatformClaims creates a context with PlatformClaims for
// testing.
func ContextWithPlatformClaims(ctx context.Context, claims *PlatformClaims) context.Context {
	return ContextWithClaims(ctx, &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{},
		CustomClaims:     claims,
	})
}

// ClaimsFromContext returns the validated claims from the context as set by
// the JWT middleware, or nil when absent.
func ClaimsFromContext(ctx context.Context) *validator.ValidatedClaims {
	claims, ok := ctx.Value(jwtmiddleware.ContextKey{}).(*validator.ValidatedClaims)
	if ok {
		return claims
	}
	// Test fallback: local key injection
	claims, _ = ctx.Value(claimsContextKey{}).(*validator.ValidatedClaims)
	return claims
}

// PlatformClaimsFromContext returns the platform claims from the context, or
// nil when absent.
func PlatformClaimsFromContext(ctx context.Context) *PlatformClaims {
	claims := ClaimsFromContext(ctx)
	if claims == nil {
		return nil
	}

	platformClaims, _ := claims.CustomClaims.(*PlatformClaims)
	return platformClaims
}

// tenancyMiddleware translates validated claims into the tenancy context.
// Runs after CheckJWT, so claims are present for any request reaching it.
func tenancyMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			claims := PlatformClaimsFromContext(ctx)
			if claims == nil {
				log.Ctx(ctx).Error().Msg("platform claims missing from context; is the JWT middleware configured?")
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			ctx = tenancy.WithTenant(ctx, tenancy.Tenant{
				ID:        claims.ZoneID,
				Subdomain: claims.Subdomain,
			})
			if claims.HasUser() {
				ctx = tenancy.WithPrincipal(ctx, tenancy.Principal{
					Name:   claims.UserName,
					Origin: claims.Origin,
				})
			}
			if token := bearerToken(r); token != "" {
				ctx = tenancy.WithToken(ctx, token)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}
	return ""
}

func logErrorHandler() jwtmiddleware.ErrorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		log.Ctx(r.Context()).Info().Err(err).Msg("JWT authorization failure")

		// The default error handler writes the appropriate response status.
		jwtmiddleware.DefaultErrorHandler(w, r, err)
	}
}

type keyFunc = func(ctx context.Context) (any, error)

func remoteJWKS(cfg config.AuthorizationConfig) (url.URL, keyFunc, error) {
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return url.URL{}, nil, fmt.Errorf("failed to parse the issuer URL: %w", err)
	}

	provider := jwks.NewCachingProvider(issuerURL, 5*time.Minute)

	return *issuerURL, provider.KeyFunc, nil
}

func staticJWKS(cfg config.AuthorizationConfig) (url.URL, keyFunc, error) {
	issuerURL, err := url.Parse(cfg.IssuerURL)
	if err != nil {
		return url.URL{}, nil, fmt.Errorf("failed to parse the issuer URL: %w", err)
	}

	var keySet jose.JSONWebKeySet
	if err := json.Unmarshal([]byte(cfg.ConfigurationStatic), &keySet); err != nil {
		return url.URL{}, nil, fmt.Errorf("could not decode jwks: %w", err)
	}

	fn := func(_ context.Context) (any, error) { return &keySet, nil }

	return *issuerURL, fn, nil
}
