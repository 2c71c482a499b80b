package entity

import (
	"time"
)

// APIKeyStatus enumerates API-key lifecycle states.
type APIKeyStatus string

const (
	// APIKeyActive keys authenticate data-plane requests.
	APIKeyActive APIKeyStatus = "active"
	// APIKeyRevoked keys never authenticate again.
	APIKeyRevoked APIKeyStatus = "revoked"
)

// APIKey is an opaque caller credential identifying a specific agent on
// the data plane. Only the SHA-256 hash and a display prefix are stored;
// the raw key is shown once, at creation time.
type APIKey struct {
	ID       string `json:"id"`
	AgentID  string `json:"agent_id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`

	// KeyHash is the 64-char hex SHA-256 of the raw key, the lookup index.
	KeyHash string `json:"-"`
	// Prefix is the first 12 characters of the raw key, for display.
	Prefix string `json:"prefix"`

	Status    APIKeyStatus `json:"status"`
	RevokedAt *time.Time   `json:"revoked_at,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

// IsActive reports whether the key may authenticate.
func (k *APIKey) IsActive() bool { return k.Status == APIKeyActive }
