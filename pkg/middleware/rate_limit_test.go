package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// injectIdentity pins the limiter key so tests don't share the global
// limiter store entry for the httptest client IP.
func injectIdentity(sub string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(identityKey, Identity{Sub: sub})
		c.Next()
	}
}

func newLimitedRouter(sub string, rps float64, burst int) *gin.Engine {
	g := gin.New()
	g.GET("/", injectIdentity(sub), RateLimitMiddleware(rps, burst), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return g
}

func hit(g *gin.Engine) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rw := httptest.NewRecorder()
	g.ServeHTTP(rw, req)
	return rw.Code
}

func TestRateLimitMiddleware_AllowsWithinBurst(t *testing.T) {
	g := newLimitedRouter("rl-user-a", 10, 3)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit(g))
	}
}

func TestRateLimitMiddleware_BlocksWhenExceeded(t *testing.T) {
	g := newLimitedRouter("rl-user-b", 0.5, 1)
	require.Equal(t, http.StatusOK, hit(g))
	require.Equal(t, http.StatusTooManyRequests, hit(g))
}

func TestRateLimitMiddleware_Replenishes(t *testing.T) {
	g := newLimitedRouter("rl-user-c", 2, 1)
	require.Equal(t, http.StatusOK, hit(g))
	require.Equal(t, http.StatusTooManyRequests, hit(g))

	time.Sleep(600 * time.Millisecond)
	require.Equal(t, http.StatusOK, hit(g))
}

func TestRateLimitMiddleware_KeysAreIndependent(t *testing.T) {
	a := newLimitedRouter("rl-user-d", 0.5, 1)
	b := newLimitedRouter("rl-user-e", 0.5, 1)

	require.Equal(t, http.StatusOK, hit(a))
	require.Equal(t, http.StatusTooManyRequests, hit(a))

	// a different subject has its own bucket
	require.Equal(t, http.StatusOK, hit(b))
}

func TestLimiterKey_FallsBackToClientIP(t *testing.T) {
	g := gin.New()
	var key string
	g.GET("/", func(c *gin.Context) {
		key = limiterKey(c)
		c.Status(http.StatusOK)
	})
	require.Equal(t, http.StatusOK, hit(g))
	require.Contains(t, key, "ip:")
}
