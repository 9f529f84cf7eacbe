package core

import "time"

// Credentials is opaque key material for one source. Owned exclusively by the
// credential store; connectors hold only a transient reference refreshed on a
// schedule. Never logged.
type Credentials struct {
	APIKey    string            `json:"api_key"`
	APISecret string            `json:"api_secret,omitempty"`
	Token     string            `json:"token,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	ExpiresAt time.Time         `json:"expires_at,omitempty"`
}

// Expired reports whether the expiry hint has passed. A zero expiry means the
// provider gave no hint.
func (c *Credentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// String redacts key material so accidental formatting never leaks secrets
func (c *Credentials) String() string {
	return "credentials{api_key:[REDACTED]}"
}
