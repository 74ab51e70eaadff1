package sessions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/deckhand/deckhand/backend/auth-service/internal/config"
	"github.com/deckhand/deckhand/backend/auth-service/internal/store"
	"github.com/deckhand/deckhand/backend/auth-service/internal/tokens"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/logger"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/metrics"
)

// Refresh-token family bookkeeping, keyed per subject in the token store:
//
//	jwt:rf:<sub>:latest     hash of the newest refresh token
//	jwt:rf:<sub>:ok:<hash>  token hash valid for exactly one redemption
//	jwt:rf:<sub>:bl:<hash>  token hash already consumed
//	jwt:rf:<sub>:logout_all kill-switch for the whole family
//
// Raw refresh tokens are never stored; only their SHA-256 hex hash. Every key
// carries TTL = refresh-token lifetime, so expiry is the only cleanup.

// ErrInvalidRefresh covers unknown, expired, logged-out and reused refresh
// tokens uniformly. The distinction is logged internally; handing it to the
// client would give an attacker a reuse-detection oracle.
var ErrInvalidRefresh = errors.New("invalid refresh token")

// Service is the refresh rotation and reuse-detection engine.
type Service struct {
	store store.Store
	cfg   *config.Config
}

func NewService(st store.Store, cfg *config.Config) *Service {
	return &Service{store: st, cfg: cfg}
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func familyKey(sub, suffix string) string {
	return "jwt:rf:" + sub + ":" + suffix
}

// StoreRefreshToken registers a freshly issued refresh token as the subject's
// active one. The previous `latest` hash (if any) is consumed, so a new login
// supersedes the prior session's refresh token. A fresh login also clears any
// standing logout_all kill-switch: re-authentication starts a new family.
// Call this exactly once per login; Rotate handles the refresh path itself.
func (s *Service) StoreRefreshToken(ctx context.Context, sub, rawToken string) error {
	ttl := s.cfg.JWT.RefreshTokenTTL
	hash := hashToken(rawToken)

	if _, _, err := s.store.GetDel(ctx, familyKey(sub, "logout_all")); err != nil {
		return fmt.Errorf("clear logout_all: %w", err)
	}

	if last, ok, err := s.store.Get(ctx, familyKey(sub, "latest")); err != nil {
		return fmt.Errorf("read latest: %w", err)
	} else if ok {
		if err := s.store.SetEx(ctx, familyKey(sub, "bl:"+last), ttl, "1"); err != nil {
			return fmt.Errorf("blocklist previous: %w", err)
		}
	}

	if err := s.store.SetEx(ctx, familyKey(sub, "latest"), ttl, hash); err != nil {
		return fmt.Errorf("set latest: %w", err)
	}
	if err := s.store.SetEx(ctx, familyKey(sub, "ok:"+hash), ttl, "1"); err != nil {
		return fmt.Errorf("set ok: %w", err)
	}
	return nil
}

// Rotate redeems a refresh token: verify, detect reuse, consume, and mint the
// replacement. Check order is a correctness invariant: logout_all first (a
// dead family must not leak reuse information), then the consumed set, then
// the single-redemption move. The OK entry is consumed with one atomic GetDel
// so two concurrent redemptions of the same token can never both succeed.
func (s *Service) Rotate(ctx context.Context, rawToken, uaHash string) (string, string, error) {
	cl, err := tokens.Parse(s.cfg, rawToken)
	if err != nil {
		return "", "", ErrInvalidRefresh
	}
	sub, err := tokens.Subject(cl)
	if err != nil {
		return "", "", ErrInvalidRefresh
	}
	hash := hashToken(rawToken)

	loggedOut, err := s.store.Exists(ctx, familyKey(sub, "logout_all"))
	if err != nil {
		return "", "", fmt.Errorf("check logout_all: %w", err)
	}
	if loggedOut {
		return "", "", ErrInvalidRefresh
	}

	consumed, err := s.store.Exists(ctx, familyKey(sub, "bl:"+hash))
	if err != nil {
		return "", "", fmt.Errorf("check consumed: %w", err)
	}
	if consumed {
		// Reuse event: a consumed token reappearing means it was captured
		// before rotation or the client is out of sync. Kill the family and
		// force re-authentication.
		logger.Warnf("refresh token reuse detected for sub=%s; invalidating family", sub)
		metrics.RefreshReuseDetected.Inc()
		if err := s.LogoutAll(ctx, sub); err != nil {
			logger.Errorf("failed to invalidate family for sub=%s: %v", sub, err)
		}
		return "", "", ErrInvalidRefresh
	}

	_, ok, err := s.store.GetDel(ctx, familyKey(sub, "ok:"+hash))
	if err != nil {
		return "", "", fmt.Errorf("consume refresh: %w", err)
	}
	if !ok {
		return "", "", ErrInvalidRefresh
	}

	ttl := s.cfg.JWT.RefreshTokenTTL
	if err := s.store.SetEx(ctx, familyKey(sub, "bl:"+hash), ttl, "1"); err != nil {
		return "", "", fmt.Errorf("blocklist consumed: %w", err)
	}

	next, err := tokens.IssueRefreshToken(s.cfg, sub, uaHash)
	if err != nil {
		return "", "", fmt.Errorf("issue replacement: %w", err)
	}
	nextHash := hashToken(next)
	if err := s.store.SetEx(ctx, familyKey(sub, "latest"), ttl, nextHash); err != nil {
		return "", "", fmt.Errorf("set latest: %w", err)
	}
	if err := s.store.SetEx(ctx, familyKey(sub, "ok:"+nextHash), ttl, "1"); err != nil {
		return "", "", fmt.Errorf("set ok: %w", err)
	}

	metrics.RefreshRotations.Inc()
	return sub, next, nil
}

// SessionActive reports whether the subject currently has a live refresh
// family: a latest entry present and no standing kill-switch.
func (s *Service) SessionActive(ctx context.Context, sub string) (bool, error) {
	loggedOut, err := s.store.Exists(ctx, familyKey(sub, "logout_all"))
	if err != nil {
		return false, fmt.Errorf("check logout_all: %w", err)
	}
	if loggedOut {
		return false, nil
	}
	active, err := s.store.Exists(ctx, familyKey(sub, "latest"))
	if err != nil {
		return false, fmt.Errorf("check latest: %w", err)
	}
	return active, nil
}

// LogoutAll invalidates every refresh token in the subject's family. The
// kill-switch outlives any token in the family (TTL = refresh lifetime) and
// stays in effect until the next fresh login.
func (s *Service) LogoutAll(ctx context.Context, sub string) error {
	return s.store.SetEx(ctx, familyKey(sub, "logout_all"), s.cfg.JWT.RefreshTokenTTL, "1")
}
