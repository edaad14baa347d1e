// Package testhelpers contains shared helpers for tests: logging setup, JSON
// responses for mock servers, and signed platform token generation.
package testhelpers

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-jose/go-jose/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

// SetupLogger routes the global zerolog logger to the test's log output for
// the duration of the test.
func SetupLogger(t *testing.T) {
	t.Helper()

	original := log.Logger
	log.Logger = zerolog.New(zerolog.NewTestWriter(t))
	zerolog.DefaultContextLogger = &log.Logger

	t.Cleanup(func() {
		log.Logger = original
		zerolog.DefaultContextLogger = &original
	})
}

// WriteJSON marshals the payload to the response with a JSON content type.
func WriteJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal JSON: %v", err), http.StatusInternalServerError)
		return
	}
	_, _ = w.Write(data)
}

// GenerateKey creates an RSA signing key with its public JWKS document,
// suitable for static JWKS configuration in tests.
func GenerateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()

	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err, "failed to generate private key")

	keySet := jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{{
			Key:       &privateKey.PublicKey,
			KeyID:     "test-kid",
			Algorithm: string(jose.RS256),
			Use:       "sig",
		}},
	}

	jwks, err := json.Marshal(keySet)
	require.NoError(t, err, "failed to marshal JWKS")

	return privateKey, string(jwks)
}

// SignToken signs the claims map as a compact JWT using the supplied key.
func SignToken(t *testing.T, key *rsa.PrivateKey, claims map[string]any) string {
	t.Helper()

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", "test-kid"),
	)
	require.NoError(t, err, "failed to create signer")

	payload, err := json.Marshal(claims)
	require.NoError(t, err, "failed to marshal claims")

	object, err := signer.Sign(payload)
	require.NoError(t, err, "failed to sign token")

	serialized, err := object.CompactSerialize()
	require.NoError(t, err, "failed to serialize token")

	return serialized
}
