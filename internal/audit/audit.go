package audit

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"github.com/deckhand/deckhand/backend/auth-service/pkg/logger"
)

// Auth-event audit trail. Writes are best-effort: an unavailable audit store
// must never fail a login or logout. Only hashed user agents are recorded.

const (
	ActionLoginInitiated  = "auth.login_initiated"
	ActionLoginSuccess    = "auth.login_success"
	ActionLoginFailed     = "auth.login_failed"
	ActionLogout          = "auth.logout"
	ActionRefreshRejected = "auth.refresh_rejected"
	ActionForcedLogout    = "auth.forced_logout"
)

// Entry is one recorded auth event.
type Entry struct {
	UserID        string                 `bson:"userId,omitempty"`
	Action        string                 `bson:"action"`
	IPAddress     string                 `bson:"ipAddress,omitempty"`
	UserAgentHash string                 `bson:"userAgentHash,omitempty"`
	Success       bool                   `bson:"success"`
	Details       map[string]interface{} `bson:"details,omitempty"`
	CreatedAt     time.Time              `bson:"createdAt"`
}

// Trail records auth events into a Mongo collection. A nil *Trail is a valid
// no-op recorder, so callers don't need to branch on whether Mongo is up.
type Trail struct {
	col *mongo.Collection
}

func NewTrail(col *mongo.Collection) *Trail {
	return &Trail{col: col}
}

// Record persists the entry. Failures are logged and swallowed.
func (t *Trail) Record(ctx context.Context, e Entry) {
	if t == nil || t.col == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if _, err := t.col.InsertOne(ctx, e); err != nil {
		logger.Warnf("audit write failed (action=%s): %v", e.Action, err)
	}
}
