package models

import "time"

// APIKey represents an API key for programmatic authentication
type APIKey struct {
	ID         string
	UserID     string
	Name       string     // Friendly name (e.g., "sync script")
	KeyHash    string     // Bcrypt hash of the full key
	KeyPrefix  string     // First 10 chars for display and lookup (e.g., "gk_abc123")
	Scopes     []string   // ["groups:read", "keys:write", ...]
	ExpiresAt  *time.Time // Optional expiration
	LastUsedAt *time.Time
	CreatedAt  time.Time
	// Joined fields (not stored in api_keys table)
	Username string
}

// IsExpired returns true if the key has an expiry in the past
func (k *APIKey) IsExpired() bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(time.Now())
}
