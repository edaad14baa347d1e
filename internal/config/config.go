package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Authorization AuthorizationConfig
	Cache         CacheConfig
	Destination   DestinationServiceConfig
	Observe       ObserveConfig
	Server        ServerConfig
}

type ServerConfig struct {
	Port                   int `env:"SERVER_PORT, default=8080"`
	ShutdownTimeoutSeconds int `env:"SERVER_SHUTDOWN_TIMEOUT_SECS, default=25"`

	OutgoingHTTPMaxIdleConns    int `env:"SERVER_OUTGOING_MAX_IDLE_CONNS, default=100"`
	OutgoingHTTPMaxConnsPerHost int `env:"SERVER_OUTGOING_MAX_CONNS_PER_HOST, default=20"`
}

// AuthorizationConfig configures validation of inbound platform JWTs.
type AuthorizationConfig struct {
	Audience  string `env:"JWT_AUDIENCE, default=destination-bridge"`
	IssuerURL string `env:"JWT_ISSUER_URL, required"`

	// ConfigurationStatic supplies a static JWKS document instead of the
	// issuer's remote JWKS endpoint. Test and local use only.
	ConfigurationStatic string `env:"JWT_JWKS_STATIC"`
}

// DestinationServiceConfig configures access to the destination
// configuration service and its token service.
type DestinationServiceConfig struct {
	// ServiceURL is the base URL of the destination configuration service.
	ServiceURL string `env:"DESTINATION_SERVICE_URL, required"`

	// TokenServiceURL is the OAuth token endpoint used for technical user
	// tokens. A "{tenant}" placeholder, when present, is replaced with the
	// subdomain of the tenant a call executes for.
	TokenServiceURL string `env:"DESTINATION_TOKEN_SERVICE_URL, required"`

	ClientID     string `env:"DESTINATION_CLIENT_ID, required"`
	ClientSecret string `env:"DESTINATION_CLIENT_SECRET, required"`

	// ProviderTenantID identifies the provider tenant, for retrieval
	// strategy validation.
	ProviderTenantID string `env:"DESTINATION_PROVIDER_TENANT_ID, required"`

	// ProviderSubdomain is the provider tenant's subdomain, used with the
	// TokenServiceURL placeholder for provider-tenant calls.
	ProviderSubdomain string `env:"DESTINATION_PROVIDER_SUBDOMAIN"`

	TimeoutSeconds int `env:"DESTINATION_TIMEOUT_SECS, default=10"`
}

// CacheConfig specifies the destination cache policy applied at startup.
type CacheConfig struct {
	Enabled bool `env:"CACHE_ENABLED, default=true"`

	// SizeLimit bounds the number of cached destinations. 0 means
	// unbounded.
	SizeLimit int `env:"CACHE_SIZE_LIMIT, default=1000"`

	// ExpirationSeconds is the cached entry lifetime. 0 means entries
	// never expire.
	ExpirationSeconds int `env:"CACHE_EXPIRATION_SECS, default=300"`

	// ExpirationStrategy is either "when_created" or "when_accessed".
	ExpirationStrategy string `env:"CACHE_EXPIRATION_STRATEGY, default=when_created"`

	// ChangeDetection cross-checks cached destinations against the bulk
	// listing before serving them.
	ChangeDetection bool `env:"CACHE_CHANGE_DETECTION, default=false"`
}

type ObserveConfig struct {
	SDKLogLevel                string `env:"OBSERVE_OTEL_LOG_LEVEL, default=info"`
	Enabled                    bool   `env:"OBSERVE_ENABLED, default=false"`
	MetricsEnabled             bool   `env:"OBSERVE_METRICS_ENABLED, default=true"`
	Type                       string `env:"OBSERVE_TYPE, default=grpc"`
	ServiceName                string `env:"OBSERVE_SERVICE_NAME, default=destination-bridge"`
	TraceBatchTimeoutSeconds   int    `env:"OBSERVE_TRACE_BATCH_TIMEOUT_SECS, default=20"`
	MetricReadIntervalSeconds  int    `env:"OBSERVE_METRIC_READ_INTERVAL_SECS, default=60"`
	HTTPTransportEnabled       bool   `env:"OBSERVE_HTTP_TRANSPORT_ENABLED, default=true"`
	HTTPConnectionTraceEnabled bool   `env:"OBSERVE_CONNECTION_TRACE_ENABLED, default=true"`
}

func Load(ctx context.Context) (Config, error) {
	return load(ctx, nil) // load from OS environment
}

func load(ctx context.Context, lookup envconfig.Lookuper) (Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookup, // nil defaults to OS environment
	})
	if err != nil {
		return cfg, err
	}

	err = cfg.Cache.Validate()
	if err != nil {
		return cfg, fmt.Errorf("invalid cache configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the cache configuration is valid.
func (c *CacheConfig) Validate() error {
	switch c.ExpirationStrategy {
	case "when_created", "when_accessed":
	default:
		return fmt.Errorf("CACHE_EXPIRATION_STRATEGY must be \"when_created\" or \"when_accessed\", got %q", c.ExpirationStrategy)
	}

	if c.SizeLimit < 0 {
		return fmt.Errorf("CACHE_SIZE_LIMIT must not be negative")
	}
	if c.ExpirationSeconds < 0 {
		return fmt.Errorf("CACHE_EXPIRATION_SECS must not be negative")
	}

	return nil
}
