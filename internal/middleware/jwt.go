package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trackline/backend/internal/auth"
	"github.com/trackline/backend/pkg/apperror"
	"github.com/trackline/backend/pkg/response"
)

const (
	// ContextUserID is the key for the authenticated user ID in gin context.
	ContextUserID = "user_id"
	// ContextUserEmail is the key for the user email in gin context.
	ContextUserEmail = "user_email"
)

// JWT returns the identity-resolving middleware: it validates the bearer
// token and sets the user ID in context. This is the universal first gate;
// every other check presupposes it.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.AbortError(c, apperror.Unauthenticated())
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.AbortError(c, apperror.Unauthenticated())
			return
		}
		claims, err := jwtService.Validate(parts[1])
		if err != nil {
			response.AbortError(c, apperror.Unauthenticated())
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}
