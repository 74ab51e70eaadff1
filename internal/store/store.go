package store

import (
	"context"
	"time"
)

// Store is the narrow key-value boundary the token lifecycle is written
// against: get / setex / exists, plus an atomic single-use read (GetDel) used
// for the one-redemption guarantee on refresh tokens and for consuming staged
// OAuth flows. TTL is the only garbage-collection mechanism; nothing sweeps.
type Store interface {
	// Get returns the value for key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// SetEx stores value under key with the given TTL.
	SetEx(ctx context.Context, key string, ttl time.Duration, value string) error
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// GetDel atomically reads and removes key. Under concurrent callers at
	// most one observes ok=true.
	GetDel(ctx context.Context, key string) (value string, ok bool, err error)
}
