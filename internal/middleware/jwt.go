package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/civic-assembly/backend/internal/auth"
	"github.com/civic-assembly/backend/pkg/response"
)

const (
	// ContextUserID is the key for the authenticated user ID (uuid.UUID).
	ContextUserID = "user_id"
	// ContextUserRole is the key for the platform role (models.Role).
	ContextUserRole = "user_role"
	// ContextUserEmail is the key for the user's email.
	ContextUserEmail = "user_email"
)

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// JWT returns a middleware that validates the bearer token and sets the caller in context.
func JWT(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			response.Unauthorized(c, "missing or malformed bearer token")
			c.Abort()
			return
		}
		claims, err := tokens.Validate(strings.TrimSpace(token))
		if errors.Is(err, auth.ErrTokenExpired) {
			response.Unauthorized(c, "token expired")
			c.Abort()
			return
		}
		if err != nil {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Set(ContextUserEmail, claims.Email)
		c.Next()
	}
}
