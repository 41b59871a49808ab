package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey authenticates programmatic access. Only the SHA-256 hash of the
// key material is stored; the plaintext is shown once at creation.
type APIKey struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	KeyPrefix  string     `json:"key_prefix"` // first characters for display, e.g. "tl_3fa9"
	Scopes     []string   `json:"scopes"`
	ProjectID  *uuid.UUID `json:"project_id,omitempty"` // optional project scoping
	RateLimit  int        `json:"rate_limit"`           // requests per minute
	IsActive   bool       `json:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// APIUsageLog records one authenticated API request for rate limiting and
// usage stats.
type APIUsageLog struct {
	ID         uuid.UUID `json:"id"`
	APIKeyID   uuid.UUID `json:"api_key_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	CreatedAt  time.Time `json:"created_at"`
}
