package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const identityKey = "identity"

// Identity is the authenticated caller attached to the request context:
// the subject plus the permissions resolved for it. Exactly what handlers
// need, nothing more.
type Identity struct {
	Sub         string
	JTI         string
	ExpiresAt   time.Time
	Permissions []string
}

// TokenVerifier parses and verifies a raw bearer token into claims.
type TokenVerifier func(raw string) (jwt.MapClaims, error)

// RevocationGate reports whether an access token's jti has been revoked.
// It runs before any permission check.
type RevocationGate interface {
	IsRevoked(ctx context.Context, jti string) bool
}

// PermissionResolver maps a subject to its granted permissions.
type PermissionResolver interface {
	PermissionsFor(ctx context.Context, sub string) []string
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens,
// rejects revoked ones, and attaches the caller's Identity. All rejection
// paths return the same shape; the reason stays in internal logs.
func AuthMiddleware(verify TokenVerifier, gate RevocationGate, perms PermissionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		// Expect 'Bearer <token>'
		var token string
		if n, _ := fmt.Sscanf(auth, "Bearer %s", &token); n != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}

		claims, err := verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		jti, _ := claims["jti"].(string)
		if jti == "" || gate.IsRevoked(c.Request.Context(), jti) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		sub, err := claims.GetSubject()
		if err != nil || sub == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ident := Identity{Sub: sub, JTI: jti}
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			ident.ExpiresAt = exp.Time
		}
		if perms != nil {
			ident.Permissions = perms.PermissionsFor(c.Request.Context(), sub)
		}

		c.Set(identityKey, ident)
		c.Next()
	}
}

// IdentityFrom returns the Identity set by AuthMiddleware.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	ident, ok := v.(Identity)
	return ident, ok
}
