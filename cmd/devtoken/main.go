// This command is only used for local testing: it signs a platform-style JWT
// with a local key so requests can be made against a locally running server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Audience  string `env:"UTIL_AUDIENCE, default=destination-bridge"`
	Issuer    string `env:"UTIL_ISSUER, default=https://local.testing"`
	TenantID  string `env:"UTIL_TENANT_ID, required"`
	Subdomain string `env:"UTIL_TENANT_SUBDOMAIN"`
	UserName  string `env:"UTIL_USER_NAME"`
	Origin    string `env:"UTIL_USER_ORIGIN, default=local"`
	KeyPath   string `env:"UTIL_KEY_PATH, default=.development/keys/jwk-sig-testing-priv.json"`
}

func main() {
	cfg := Config{}
	err := envconfig.Process(context.Background(), &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	keyBytes, err := os.ReadFile(cfg.KeyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading key: %v\n", err)
		os.Exit(1)
	}

	var key jose.JSONWebKey
	if err := json.Unmarshal(keyBytes, &key); err != nil {
		fmt.Fprintf(os.Stderr, "error loading key: %v\n", err)
		os.Exit(1)
	}

	token, err := createJWT(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating JWT: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
}

func createJWT(cfg Config, key jose.JSONWebKey) (string, error) {
	now := time.Now()

	claims := map[string]any{
		"aud":        []string{cfg.Audience},
		"iss":        cfg.Issuer,
		"sub":        cfg.TenantID,
		"iat":        now.Unix(),
		"nbf":        now.Unix(),
		"exp":        now.Add(time.Hour).Unix(),
		"zid":        cfg.TenantID,
		"grant_type": "client_credentials",
	}

	if cfg.UserName != "" {
		claims["user_name"] = cfg.UserName
		claims["origin"] = cfg.Origin
		claims["grant_type"] = "user_token"
	}
	if cfg.Subdomain != "" {
		claims["ext_attr"] = map[string]any{"zdn": cfg.Subdomain}
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("signer creation failed: %w", err)
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("claims serialization failed: %w", err)
	}

	object, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("signing failed: %w", err)
	}

	return object.CompactSerialize()
}
