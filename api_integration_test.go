//go:build integration

package main

import (
	"crypto/rsa"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenantgrid/destination-bridge/internal/config"
	"github.com/tenantgrid/destination-bridge/internal/destination"
	"github.com/tenantgrid/destination-bridge/internal/service"
	"github.com/tenantgrid/destination-bridge/internal/testhelpers"
)

const (
	testIssuer   = "https://issuer.local.testing/"
	testAudience = "destination-bridge"
)

// apiHarness runs the complete service against mock platform endpoints: a
// token endpoint, a destination configuration backend, and a static JWKS for
// inbound token validation.
type apiHarness struct {
	Server  *httptest.Server
	Backend *httptest.Server

	key *rsa.PrivateKey

	fetches atomic.Int64
}

func setupHarness(t *testing.T) *apiHarness {
	t.Helper()
	testhelpers.SetupLogger(t)

	harness := &apiHarness{}

	key, jwks := testhelpers.GenerateKey(t)
	harness.key = key

	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testhelpers.WriteJSON(w, map[string]any{
			"access_token": "technical-user-token",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	t.Cleanup(tokenServer.Close)

	harness.Backend = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer technical-user-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch {
		case strings.HasPrefix(r.URL.Path, "/destination-configuration/v1/destinations/"):
			harness.fetches.Add(1)
			name := strings.TrimPrefix(r.URL.Path, "/destination-configuration/v1/destinations/")
			if name == "unknown" {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			testhelpers.WriteJSON(w, map[string]any{
				"destinationConfiguration": map[string]any{
					"Name":           name,
					"URL":            "https://" + name + ".backend.example.com",
					"Authentication": "BasicAuthentication",
				},
				"authTokens": []map[string]any{
					{"type": "Basic", "value": "dXNlcjpwYXNz", "expires_in": "3600"},
				},
			})

		case r.URL.Path == "/destination-configuration/v1/instanceDestinations":
			testhelpers.WriteJSON(w, []map[string]any{
				{"Name": "instance-only", "URL": "https://instance.example.com"},
			})

		case r.URL.Path == "/destination-configuration/v1/subaccountDestinations":
			testhelpers.WriteJSON(w, []map[string]any{
				{"Name": "backend-api", "URL": "https://backend-api.backend.example.com"},
				{"Name": "reporting", "URL": "https://reporting.backend.example.com"},
			})

		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(harness.Backend.Close)

	cfg := config.Config{
		Authorization: config.AuthorizationConfig{
			Audience:            testAudience,
			IssuerURL:           testIssuer,
			ConfigurationStatic: jwks,
		},
		Cache: config.CacheConfig{
			Enabled:            true,
			SizeLimit:          100,
			ExpirationSeconds:  300,
			ExpirationStrategy: "when_created",
		},
		Destination: config.DestinationServiceConfig{
			ServiceURL:       harness.Backend.URL,
			TokenServiceURL:  tokenServer.URL,
			ClientID:         "client-id",
			ClientSecret:     "client-secret",
			ProviderTenantID: "provider-tenant",
			TimeoutSeconds:   5,
		},
	}

	client, err := service.New(cfg.Destination)
	require.NoError(t, err)

	resolver, err := destination.NewService(client, cfg.Destination.ProviderTenantID, cacheSettings(cfg.Cache))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resolver.Close() })

	handler, err := configureServerRoutes(cfg, resolver)
	require.NoError(t, err)

	harness.Server = httptest.NewServer(handler)
	t.Cleanup(harness.Server.Close)

	return harness
}

// platformToken signs a token the way the platform identity service would.
func (h *apiHarness) platformToken(t *testing.T, extra map[string]any) string {
	t.Helper()

	now := time.Now()
	claims := map[string]any{
		"iss":        testIssuer,
		"aud":        []string{testAudience},
		"sub":        "caller",
		"iat":        now.Unix(),
		"exp":        now.Add(time.Hour).Unix(),
		"zid":        "tenant-1",
		"grant_type": "client_credentials",
		"ext_attr":   map[string]any{"zdn": "acme"},
	}
	for k, v := range extra {
		claims[k] = v
	}

	return testhelpers.SignToken(t, h.key, claims)
}

func (h *apiHarness) get(t *testing.T, path, token string) (*http.Response, []byte) {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, h.Server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestAPI_HealthCheck(t *testing.T) {
	harness := setupHarness(t)

	resp, body := harness.get(t, "/healthcheck", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestAPI_RequiresToken(t *testing.T) {
	harness := setupHarness(t)

	resp, _ := harness.get(t, "/destinations/backend-api", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_RejectsWrongAudience(t *testing.T) {
	harness := setupHarness(t)

	token := harness.platformToken(t, map[string]any{"aud": []string{"some-other-service"}})

	resp, _ := harness.get(t, "/destinations/backend-api", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_GetDestination(t *testing.T) {
	harness := setupHarness(t)
	token := harness.platformToken(t, nil)

	resp, body := harness.get(t, "/destinations/backend-api", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	configuration := payload["destinationConfiguration"].(map[string]any)
	assert.Equal(t, "backend-api", configuration["Name"])
	assert.Equal(t, "https://backend-api.backend.example.com", configuration["URL"])

	tokens := payload["authTokens"].([]any)
	require.Len(t, tokens, 1)

	// second request for the same tenant is a cache hit
	resp, _ = harness.get(t, "/destinations/backend-api", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int64(1), harness.fetches.Load())
}

func TestAPI_GetDestination_NotFound(t *testing.T) {
	harness := setupHarness(t)

	token := harness.platformToken(t, nil)
	resp, body := harness.get(t, "/destinations/unknown", token)

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var payload ErrorResponse
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "destination not found", payload.Error)
}

func TestAPI_GetAllDestinations(t *testing.T) {
	harness := setupHarness(t)
	token := harness.platformToken(t, nil)

	resp, body := harness.get(t, "/destinations", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload []map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))

	names := make([]string, 0, len(payload))
	for _, entry := range payload {
		configuration := entry["destinationConfiguration"].(map[string]any)
		names = append(names, configuration["Name"].(string))
	}
	assert.ElementsMatch(t, []string{"instance-only", "backend-api", "reporting"}, names)
}
