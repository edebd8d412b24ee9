// Package store defines the shared counter/block state the guard runs
// against. The guard holds no mutable state of its own: every counter and
// block must be visible to all request-handling workers, so production
// deployments use the Redis store and the in-memory store is an explicitly
// configured single-process fallback.
package store

import (
	"context"
	"time"

	"stayguard/internal/guard/models"
)

// CounterStore is a shared key-value counter with per-key expiry.
//
// IncrementAndGet must be atomic across concurrent callers (single round
// trip, not read-then-write): two concurrent increments on the same key must
// both be reflected in the returned counts. The window TTL is set when the
// key is created and left untouched on subsequent increments, giving
// fixed-window semantics over the half-open interval
// [window_start, window_start+window).
type CounterStore interface {
	// IncrementAndGet increments the counter for key, creating it with the
	// window TTL on first use, and returns the post-increment count together
	// with the TTL remaining on the window.
	IncrementAndGet(ctx context.Context, key string, window time.Duration) (count int64, ttlRemaining time.Duration, err error)

	// Peek returns the current count without mutating it. Used by staff
	// inspection; returns 0 for absent keys.
	Peek(ctx context.Context, key string) (int64, error)

	// Clear removes the counter for key.
	Clear(ctx context.Context, key string) error
}

// BlockStore is a shared block list with lazy expiry.
type BlockStore interface {
	// GetBlock returns the block entry for key, or nil when no live block
	// exists. Implementations may leave expired entries in place; callers
	// treat them as absent.
	GetBlock(ctx context.Context, key string) (*models.BlockEntry, error)

	// SetBlock records a block for key lasting the given duration.
	SetBlock(ctx context.Context, key string, duration time.Duration, reason models.DenyReason) error

	// ClearBlock removes any block for key.
	ClearBlock(ctx context.Context, key string) error
}

// Store combines the counter and block contracts; both guard backends
// implement it.
type Store interface {
	CounterStore
	BlockStore
}
