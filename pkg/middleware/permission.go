package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HasPermission reports whether required is satisfied by the granted set.
// A bare "*" grant satisfies everything; suffix wildcards are expanded at
// mapping time, so matching here is exact.
func HasPermission(required string, granted []string) bool {
	for _, p := range granted {
		if p == "*" || p == required {
			return true
		}
	}
	return false
}

// RequirePermission gates a route on a single permission. Must run after
// AuthMiddleware; a request without an Identity is treated as unauthenticated.
func RequirePermission(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, ok := IdentityFrom(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !HasPermission(required, ident.Permissions) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}
