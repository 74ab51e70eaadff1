package sessions

import (
	"context"
	"time"

	"github.com/deckhand/deckhand/backend/auth-service/internal/store"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/logger"
	"github.com/deckhand/deckhand/backend/auth-service/pkg/metrics"
)

const blocklistPrefix = "jwt:blocklist:"

// Blocklist is the access-token revocation gate. Entries are keyed by jti
// with TTL equal to the token's remaining lifetime; an entry never needs to
// outlive the token it blocks.
type Blocklist struct {
	store      store.Store
	failClosed bool
}

// NewBlocklist creates the gate. failClosed selects the behavior when the
// token store is unreachable: false treats tokens as not-revoked
// (availability over strict revocation), true rejects them.
func NewBlocklist(st store.Store, failClosed bool) *Blocklist {
	return &Blocklist{store: st, failClosed: failClosed}
}

// Revoke blocklists an access token by jti for the remaining lifetime.
// A zero or negative remainder still produces an entry with a 1s floor,
// erring toward revocation over a silent no-op.
func (b *Blocklist) Revoke(ctx context.Context, jti string, remaining time.Duration) error {
	if remaining < time.Second {
		remaining = time.Second
	}
	if err := b.store.SetEx(ctx, blocklistPrefix+jti, remaining, "1"); err != nil {
		return err
	}
	metrics.TokensRevoked.Inc()
	return nil
}

// IsRevoked reports whether the jti has been blocklisted. Runs on every
// authenticated request, before any permission check. Store errors degrade
// per the configured fail-open/fail-closed policy and are logged at warn
// level every time.
func (b *Blocklist) IsRevoked(ctx context.Context, jti string) bool {
	revoked, err := b.store.Exists(ctx, blocklistPrefix+jti)
	if err != nil {
		metrics.RevocationFailOpen.Inc()
		logger.Warnf("revocation check unavailable (fail-%s): %v",
			map[bool]string{true: "closed", false: "open"}[b.failClosed], err)
		return b.failClosed
	}
	return revoked
}
