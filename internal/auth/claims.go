package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// PlatformClaims are the additional claims the platform identity service
// includes in the JWTs of inbound calls. The zone identifies the tenant; the
// user name is absent for technical (client credential) callers.
type PlatformClaims struct {
	ZoneID    string `json:"zid"`
	UserName  string `json:"user_name"`
	Origin    string `json:"origin"`
	GrantType string `json:"grant_type"`
	Email     string `json:"email"`

	// Subdomain is taken from the ext_attr.zdn extension attribute.
	Subdomain string `json:"-"`
}

// Validate ensures that the claims this service depends on are present.
func (c *PlatformClaims) Validate(ctx context.Context) error {
	missing := []string{}
	if c.ZoneID == "" {
		missing = append(missing, "zid")
	}
	if c.GrantType == "" {
		missing = append(missing, "grant_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing expected claim(s): %s", strings.Join(missing, ", "))
	}

	return nil
}

// UnmarshalJSON implements custom JSON unmarshaling to lift the nested
// ext_attr.zdn attribute into Subdomain.
func (c *PlatformClaims) UnmarshalJSON(data []byte) error {
	type plain PlatformClaims
	if err := json.Unmarshal(data, (*plain)(c)); err != nil {
		return err
	}

	var extended struct {
		ExtAttr struct {
			Subdomain string `json:"zdn"`
		} `json:"ext_attr"`
	}
	if err := json.Unmarshal(data, &extended); err != nil {
		return err
	}
	c.Subdomain = extended.ExtAttr.Subdomain

	return nil
}

// HasUser reports whether the token represents a named end user rather than
// a technical caller.
func (c *PlatformClaims) HasUser() bool {
	return c.UserName != ""
}
