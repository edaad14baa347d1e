package service

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tenantgrid/destination-bridge/internal/destination"
)

// destinationPayload is the response shape for a single destination: the
// configuration property bag, plus the tokens and certificates issued by the
// service for the resolved authentication flow.
type destinationPayload struct {
	Configuration map[string]any       `json:"destinationConfiguration"`
	AuthTokens    []authTokenPayload   `json:"authTokens"`
	Certificates  []certificatePayload `json:"certificates"`
}

type authTokenPayload struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Error     string `json:"error"`
	ExpiresIn string `json:"expires_in"`
}

type certificatePayload struct {
	Name      string `json:"Name"`
	Type      string `json:"Type"`
	Content   string `json:"Content"`
	ExpiresAt string `json:"ExpiresAt"`
}

func parseDestination(data []byte, now time.Time) (*destination.Destination, error) {
	var payload destinationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding destination: %w", err)
	}
	if payload.Configuration == nil {
		return nil, fmt.Errorf("destination response carries no configuration")
	}

	tokens := make([]destination.AuthToken, 0, len(payload.AuthTokens))
	for _, t := range payload.AuthTokens {
		token := destination.AuthToken{
			Type:  t.Type,
			Value: t.Value,
			Error: t.Error,
		}
		if t.ExpiresIn != "" {
			seconds, err := strconv.ParseInt(t.ExpiresIn, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid token expires_in %q: %w", t.ExpiresIn, err)
			}
			expiry := now.Add(time.Duration(seconds) * time.Second)
			token.Expiry = &expiry
		}
		tokens = append(tokens, token)
	}

	certificates := make([]destination.Certificate, 0, len(payload.Certificates))
	for _, c := range payload.Certificates {
		certificate := destination.Certificate{
			Name:    c.Name,
			Type:    c.Type,
			Content: c.Content,
		}
		if c.ExpiresAt != "" {
			expiry, err := time.Parse(time.RFC3339, c.ExpiresAt)
			if err != nil {
				return nil, fmt.Errorf("invalid certificate expiry %q: %w", c.ExpiresAt, err)
			}
			certificate.Expiry = &expiry
		}
		certificates = append(certificates, certificate)
	}

	return destination.New(properties(payload.Configuration), certificates, tokens), nil
}

// parseListing decodes a bulk listing: a flat array of configuration
// property bags, without tokens or certificates.
func parseListing(data []byte) ([]*destination.Destination, error) {
	var payload []map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decoding destination listing: %w", err)
	}

	listing := make([]*destination.Destination, 0, len(payload))
	for _, configuration := range payload {
		listing = append(listing, destination.New(properties(configuration), nil, nil))
	}

	return listing, nil
}

// properties flattens a decoded configuration object into the engine's
// string property bag. Non-string scalars are rendered the way they appear
// on the wire.
func properties(configuration map[string]any) map[string]string {
	props := make(map[string]string, len(configuration))
	for k, v := range configuration {
		switch value := v.(type) {
		case string:
			props[k] = value
		case json.Number:
			props[k] = value.String()
		case float64:
			props[k] = strconv.FormatFloat(value, 'f', -1, 64)
		case bool:
			props[k] = strconv.FormatBool(value)
		case nil:
			props[k] = ""
		default:
			raw, _ := json.Marshal(value)
			props[k] = string(raw)
		}
	}
	return props
}
