package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/deckhand/deckhand/backend/auth-service/internal/audit"
	"github.com/deckhand/deckhand/backend/auth-service/internal/config"
	"github.com/deckhand/deckhand/backend/auth-service/internal/oauth"
	"github.com/deckhand/deckhand/backend/auth-service/internal/sessions"
	"github.com/deckhand/deckhand/backend/auth-service/internal/tokens"
	"github.com/deckhand/deckhand/backend/auth-service/internal/users"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/logger"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/metrics"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/middleware"
)

// AuthHandler holds dependencies
type AuthHandler struct {
	cfg         *config.Config
	oauthClient *oauth.Client
	usersSvc    *users.Service
	sessionsSvc *sessions.Service
	blocklist   *sessions.Blocklist
	trail       *audit.Trail
}

func NewAuthHandler(cfg *config.Config, oc *oauth.Client, u *users.Service, s *sessions.Service, bl *sessions.Blocklist, tr *audit.Trail) *AuthHandler {
	return &AuthHandler{cfg: cfg, oauthClient: oc, usersSvc: u, sessionsSvc: s, blocklist: bl, trail: tr}
}

// Register routes under /auth. authed is the bearer-token middleware; routes
// above the comment line are public, the rest require a valid access token.
func (h *AuthHandler) Register(rg *gin.RouterGroup, authed gin.HandlerFunc) {
	a := rg.Group("/auth")
	a.GET("/login", h.Login)
	a.GET("/callback", h.Callback)
	a.POST("/refresh", h.Refresh)
	a.GET("/health", h.Health)

	a.POST("/logout", authed, h.Logout)
	a.GET("/me", authed, h.Me)
	a.GET("/permissions", authed, h.Permissions)
	a.GET("/introspect", authed, h.Introspect)
	a.POST("/admin/logout-all/:user_id", authed, middleware.RequirePermission("admin.sessions"), h.AdminLogoutAll)
}

// Login starts the authorization-code flow: stage PKCE state and redirect the
// browser to Discord's consent screen.
func (h *AuthHandler) Login(c *gin.Context) {
	authURL, _, err := h.oauthClient.BeginFlow(c.Request.Context())
	if err != nil {
		logger.Errorf("failed to begin oauth flow: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start login"})
		return
	}
	h.trail.Record(c.Request.Context(), audit.Entry{
		Action:        audit.ActionLoginInitiated,
		IPAddress:     c.ClientIP(),
		UserAgentHash: tokens.HashUserAgent(c.Request.UserAgent()),
		Success:       true,
	})
	c.Redirect(http.StatusFound, authURL)
}

// Callback completes the flow: code exchange, profile fetch, role resolution,
// user upsert, and token issuance. Every rejection returns the same 401 body;
// the distinction between a bad state, a bad code and a missing verifier is
// logged, not surfaced.
func (h *AuthHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code and state are required"})
		return
	}
	ctx := c.Request.Context()
	uaHash := tokens.HashUserAgent(c.Request.UserAgent())

	fail := func(status int, why string, err error) {
		logger.Warnf("login failed (%s): %v", why, err)
		metrics.LoginsTotal.WithLabelValues("failure").Inc()
		h.trail.Record(ctx, audit.Entry{
			Action:        audit.ActionLoginFailed,
			IPAddress:     c.ClientIP(),
			UserAgentHash: uaHash,
			Details:       map[string]interface{}{"reason": why},
		})
		c.JSON(status, gin.H{"error": "authentication failed"})
	}

	pt, err := h.oauthClient.ExchangeCode(ctx, code, state)
	if err != nil {
		switch {
		case errors.Is(err, oauth.ErrStateMismatch):
			fail(http.StatusBadRequest, "state_mismatch", err)
		case errors.Is(err, oauth.ErrPKCEMissing):
			fail(http.StatusBadRequest, "pkce_missing", err)
		case errors.Is(err, oauth.ErrExchangeFailed):
			fail(http.StatusUnauthorized, "exchange_failed", err)
		default:
			fail(http.StatusBadGateway, "exchange_error", err)
		}
		return
	}

	profile, err := h.oauthClient.FetchProfile(ctx, pt.AccessToken)
	if err != nil {
		fail(http.StatusBadGateway, "profile_fetch", err)
		return
	}

	roles := h.oauthClient.FetchGuildRoles(ctx, profile.ID)

	u, err := h.usersSvc.ResolveOrCreate(ctx, profile, roles)
	if err != nil {
		logger.Errorf("user upsert error: %v", err)
		fail(http.StatusInternalServerError, "user_upsert", err)
		return
	}

	access, _, err := tokens.IssueAccessToken(h.cfg, u.UserID, uaHash)
	if err != nil {
		fail(http.StatusInternalServerError, "issue_access", err)
		return
	}
	refresh, err := tokens.IssueRefreshToken(h.cfg, u.UserID, uaHash)
	if err != nil {
		fail(http.StatusInternalServerError, "issue_refresh", err)
		return
	}
	if err := h.sessionsSvc.StoreRefreshToken(ctx, u.UserID, refresh); err != nil {
		fail(http.StatusInternalServerError, "store_refresh", err)
		return
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	h.trail.Record(ctx, audit.Entry{
		UserID:        u.UserID,
		Action:        audit.ActionLoginSuccess,
		IPAddress:     c.ClientIP(),
		UserAgentHash: uaHash,
		Success:       true,
	})

	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": refresh,
		"token_type":    "Bearer",
		"expires_in":    int(h.cfg.JWT.AccessTokenTTL.Seconds()),
		"user":          u,
	})
}

// Refresh rotates a refresh token and returns a fresh token pair.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	ctx := c.Request.Context()
	uaHash := tokens.HashUserAgent(c.Request.UserAgent())

	sub, next, err := h.sessionsSvc.Rotate(ctx, req.RefreshToken, uaHash)
	if err != nil {
		if errors.Is(err, sessions.ErrInvalidRefresh) {
			h.trail.Record(ctx, audit.Entry{
				Action:        audit.ActionRefreshRejected,
				IPAddress:     c.ClientIP(),
				UserAgentHash: uaHash,
			})
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		logger.Errorf("refresh rotation error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}

	access, _, err := tokens.IssueAccessToken(h.cfg, sub, uaHash)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"refresh_token": next,
		"token_type":    "Bearer",
		"expires_in":    int(h.cfg.JWT.AccessTokenTTL.Seconds()),
	})
}

// Logout revokes the presented access token and invalidates the caller's
// whole refresh family. Idempotent: logging out twice is still a 200.
func (h *AuthHandler) Logout(c *gin.Context) {
	ident, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	ctx := c.Request.Context()

	remaining := time.Until(ident.ExpiresAt)
	if err := h.blocklist.Revoke(ctx, ident.JTI, remaining); err != nil {
		logger.Errorf("access token revocation failed for sub=%s: %v", ident.Sub, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	if err := h.sessionsSvc.LogoutAll(ctx, ident.Sub); err != nil {
		logger.Errorf("refresh family invalidation failed for sub=%s: %v", ident.Sub, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}

	h.trail.Record(ctx, audit.Entry{
		UserID:        ident.Sub,
		Action:        audit.ActionLogout,
		IPAddress:     c.ClientIP(),
		UserAgentHash: tokens.HashUserAgent(c.Request.UserAgent()),
		Success:       true,
	})
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the caller's user record.
func (h *AuthHandler) Me(c *gin.Context) {
	ident, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	u, err := h.usersSvc.GetBySubject(c.Request.Context(), ident.Sub)
	if err != nil {
		logger.Errorf("user lookup failed for sub=%s: %v", ident.Sub, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "user lookup failed"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}

	active, err := h.sessionsSvc.SessionActive(c.Request.Context(), ident.Sub)
	if err != nil {
		logger.Warnf("session state lookup failed for sub=%s: %v", ident.Sub, err)
	}
	perms := ident.Permissions
	if perms == nil {
		perms = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "permissions": perms, "session_active": active})
}

// Permissions returns the permission set resolved for the caller.
func (h *AuthHandler) Permissions(c *gin.Context) {
	ident, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	perms := ident.Permissions
	if perms == nil {
		perms = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"permissions": perms})
}

// Introspect reports the state of the presented access token. Reaching this
// handler already means the token verified and is not revoked.
func (h *AuthHandler) Introspect(c *gin.Context) {
	ident, ok := middleware.IdentityFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"active": true,
		"sub":    ident.Sub,
		"jti":    ident.JTI,
		"exp":    ident.ExpiresAt.Unix(),
	})
}

// AdminLogoutAll force-invalidates another user's refresh family. Gated on
// the admin.sessions permission at route registration.
func (h *AuthHandler) AdminLogoutAll(c *gin.Context) {
	target := c.Param("user_id")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}
	ctx := c.Request.Context()
	if err := h.sessionsSvc.LogoutAll(ctx, target); err != nil {
		logger.Errorf("forced logout failed for sub=%s: %v", target, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "forced logout failed"})
		return
	}

	ident, _ := middleware.IdentityFrom(c)
	h.trail.Record(ctx, audit.Entry{
		UserID:        target,
		Action:        audit.ActionForcedLogout,
		IPAddress:     c.ClientIP(),
		UserAgentHash: tokens.HashUserAgent(c.Request.UserAgent()),
		Success:       true,
		Details:       map[string]interface{}{"actor": ident.Sub},
	})
	c.JSON(http.StatusOK, gin.H{"message": "sessions invalidated", "user_id": target})
}

// Health is a liveness probe for the auth routes themselves.
func (h *AuthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auth-service"})
}
