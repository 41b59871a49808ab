package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/trackline/backend/internal/models"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

// ContextAPIKey is the key for the validated *models.APIKey in gin context.
const ContextAPIKey = "api_key"

// APIKeyValidator resolves a raw key to its stored record. Implementations
// return (nil, nil) for unknown, inactive or expired keys.
type APIKeyValidator interface {
	ValidateKey(ctx context.Context, rawKey string) (*models.APIKey, error)
}

// UsageRecorder logs one authenticated API request.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, keyID uuid.UUID, method, path string, status int) error
}

// RateLimiter enforces a fixed-window request budget. retryAfter is in
// seconds and only meaningful when allowed is false.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter int, err error)
}

// APIKey returns the identity resolver for the programmatic API surface.
// It accepts "Authorization: Bearer <key>" or a bare key, enforces the
// key's per-minute rate limit, sets the key owner as the request identity
// and records usage after the handler runs.
func APIKey(validator APIKeyValidator, limiter RateLimiter, usage UsageRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractAPIKey(c.GetHeader("Authorization"))
		if raw == "" {
			response.AbortError(c, apperror.Unauthenticated())
			return
		}
		key, err := validator.ValidateKey(c.Request.Context(), raw)
		if err != nil {
			response.AbortError(c, err)
			return
		}
		if key == nil {
			response.AbortError(c, apperror.Unauthenticated())
			return
		}

		allowed, retryAfter, err := limiter.Allow(c.Request.Context(), "apikey:"+key.ID.String(), key.RateLimit, time.Minute)
		if err != nil {
			response.AbortError(c, err)
			return
		}
		if !allowed {
			response.AbortError(c, apperror.RateLimited(retryAfter))
			return
		}

		c.Set(ContextUserID, key.UserID)
		c.Set(ContextAPIKey, key)
		c.Next()

		if usage != nil {
			_ = usage.RecordUsage(c.Request.Context(), key.ID, c.Request.Method, c.FullPath(), c.Writer.Status())
		}
	}
}

// RequireScope gates a route on an API key scope. Wildcards are honored:
// "*" grants everything, "issues:*" grants every issues scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, ok := c.Get(ContextAPIKey)
		if !ok {
			response.AbortError(c, apperror.Unauthenticated())
			return
		}
		key, _ := v.(*models.APIKey)
		if key == nil || !HasScope(key.Scopes, scope) {
			response.AbortError(c, apperror.Forbidden(""))
			return
		}
		c.Next()
	}
}

// HasScope reports whether granted scopes satisfy the required scope.
func HasScope(granted []string, required string) bool {
	resource, _, _ := strings.Cut(required, ":")
	for _, s := range granted {
		if s == "*" || s == required || s == resource+":*" {
			return true
		}
	}
	return false
}

func extractAPIKey(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	if len(parts) == 1 {
		return parts[0]
	}
	return ""
}
