package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/civic-assembly/backend/internal/models"
	"github.com/civic-assembly/backend/pkg/response"
)

// RequireRole admits only callers holding one of the given platform roles.
// Organization roles are checked by the services, not here.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		if r, _ := role.(models.Role); !hasRole(allowed, r) {
			response.Forbidden(c, "insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

func hasRole(allowed map[models.Role]struct{}, r models.Role) bool {
	_, ok := allowed[r]
	return ok
}
