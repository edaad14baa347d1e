// Package destination implements the resolution and caching engine for
// remote-system connection descriptors retrieved from the multi-tenant
// destination configuration service.
//
// The engine decides, per request, which cache entry to consult, whether it
// is still trustworthy, and how to prevent duplicate concurrent fetches. The
// wire transport to the configuration service is behind the Client interface;
// this package owns keys, locks, staleness and strategy selection.
package destination

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
	"time"
)

// AuthenticationType is the authentication method a destination declares for
// calls to its target system.
type AuthenticationType string

const (
	NoAuthentication                AuthenticationType = "NoAuthentication"
	BasicAuthentication             AuthenticationType = "BasicAuthentication"
	ClientCertificateAuthentication AuthenticationType = "ClientCertificateAuthentication"
	OAuth2ClientCredentials         AuthenticationType = "OAuth2ClientCredentials"
	OAuth2Password                  AuthenticationType = "OAuth2Password"
	OAuth2UserTokenExchange         AuthenticationType = "OAuth2UserTokenExchange"
	OAuth2JWTBearer                 AuthenticationType = "OAuth2JWTBearer"
	OAuth2SAMLBearerAssertion       AuthenticationType = "OAuth2SAMLBearerAssertion"
	SAMLAssertion                   AuthenticationType = "SAMLAssertion"
	PrincipalPropagation            AuthenticationType = "PrincipalPropagation"
)

// RequiresUserTokenExchange reports whether the authentication type produces
// user-specific credentials. Destinations of these types must never be shared
// across principals, which drives the cache key selection of the engine.
func (t AuthenticationType) RequiresUserTokenExchange() bool {
	switch t {
	case OAuth2UserTokenExchange, OAuth2JWTBearer, OAuth2SAMLBearerAssertion,
		SAMLAssertion, PrincipalPropagation:
		return true
	}
	return false
}

// Well-known property names of a destination configuration.
const (
	PropertyName           = "Name"
	PropertyURL            = "URL"
	PropertyAuthentication = "Authentication"

	// PropertyChangeDetection holds a comma-separated list of property names
	// the destination owner wants cross-checked against the bulk listing
	// when change detection is active.
	PropertyChangeDetection = "cloudsdk.propertiesForChangeDetection"
)

// Certificate is a certificate blob attached to a destination. Keystore
// extraction is not performed here; only the expiry matters to the cache.
type Certificate struct {
	Name    string     `json:"Name,omitempty"`
	Type    string     `json:"Type,omitempty"`
	Content string     `json:"Content,omitempty"`
	Expiry  *time.Time `json:"ExpiresAt,omitempty"`
}

// AuthToken is an authentication token issued alongside a destination. A
// token may carry an error marker instead of a value when the issuing flow
// failed server-side.
type AuthToken struct {
	Type   string     `json:"type,omitempty"`
	Value  string     `json:"value,omitempty"`
	Error  string     `json:"error,omitempty"`
	Expiry *time.Time `json:"expiry,omitempty"`
}

// Destination is a resolved connection descriptor: an immutable property bag
// plus the certificates and auth tokens issued for it. Instances are
// constructed fresh on every backend fetch and replaced, never mutated, on
// re-fetch; this is what makes sharing them through the cache safe.
type Destination struct {
	properties   map[string]string
	certificates []Certificate
	tokens       []AuthToken
}

// New creates a destination from its configuration properties, certificates
// and auth tokens. The inputs are copied.
func New(properties map[string]string, certificates []Certificate, tokens []AuthToken) *Destination {
	return &Destination{
		properties:   maps.Clone(properties),
		certificates: slices.Clone(certificates),
		tokens:       slices.Clone(tokens),
	}
}

// Name returns the destination name.
func (d *Destination) Name() string {
	return d.properties[PropertyName]
}

// URL returns the target system URL.
func (d *Destination) URL() string {
	return d.properties[PropertyURL]
}

// Authentication returns the declared authentication type, defaulting to
// NoAuthentication when the property is absent.
func (d *Destination) Authentication() AuthenticationType {
	t, ok := d.properties[PropertyAuthentication]
	if !ok || t == "" {
		return NoAuthentication
	}
	return AuthenticationType(t)
}

// Property returns a configuration property by name.
func (d *Destination) Property(name string) (string, bool) {
	v, ok := d.properties[name]
	return v, ok
}

// Properties returns a copy of the configuration property bag.
func (d *Destination) Properties() map[string]string {
	return maps.Clone(d.properties)
}

// Certificates returns the certificates attached to the destination.
func (d *Destination) Certificates() []Certificate {
	return slices.Clone(d.certificates)
}

// AuthTokens returns the auth tokens issued for the destination.
func (d *Destination) AuthTokens() []AuthToken {
	return slices.Clone(d.tokens)
}

// hasTokenError reports whether any auth token carries an error marker
// instead of a usable value.
func (d *Destination) hasTokenError() bool {
	for i := range d.tokens {
		if d.tokens[i].Error != "" {
			return true
		}
	}
	return false
}

// ChangeDetectionProperties returns the property names the destination has
// marked as watched for change detection.
func (d *Destination) ChangeDetectionProperties() []string {
	raw, ok := d.properties[PropertyChangeDetection]
	if !ok || raw == "" {
		return nil
	}

	var names []string
	for _, name := range strings.Split(raw, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// NearestExpiry returns the earliest expiry among the destination's auth
// tokens and certificates, and whether any expiry is known at all.
func (d *Destination) NearestExpiry() (time.Time, bool) {
	var nearest time.Time
	found := false

	consider := func(t *time.Time) {
		if t == nil {
			return
		}
		if !found || t.Before(nearest) {
			nearest = *t
		}
		found = true
	}

	for i := range d.tokens {
		consider(d.tokens[i].Expiry)
	}
	for i := range d.certificates {
		consider(d.certificates[i].Expiry)
	}

	return nearest, found
}

// MarshalJSON renders the destination in the response shape of the
// configuration service: the property bag plus token and certificate lists.
func (d *Destination) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Configuration map[string]string `json:"destinationConfiguration"`
		AuthTokens    []AuthToken       `json:"authTokens,omitempty"`
		Certificates  []Certificate     `json:"certificates,omitempty"`
	}{
		Configuration: d.properties,
		AuthTokens:    d.tokens,
		Certificates:  d.certificates,
	})
}
