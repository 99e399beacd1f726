// Package ports defines shared interfaces for the ratelimit module.
// Interfaces live here when they are consumed by multiple services.
package ports

import (
	"context"
	"time"
)

// CounterStore is an abstract key→counter store with per-key expiry. Both
// implementations (Redis and the in-process fallback) are safe under
// concurrent callers incrementing the same key; operations carry
// at-least-once semantics under partition.
type CounterStore interface {
	// Increment atomically adds one to the key's counter. The first
	// increment of a window sets the key's expiry to the given window and
	// anchors the reset time. Returns the post-increment count and the
	// absolute time the counter resets.
	Increment(ctx context.Context, key string, window time.Duration) (hits int64, resetAt time.Time, err error)

	// Decrement atomically subtracts one, clamping the returned value at
	// zero. Used to hand back a reservation that was not consumed.
	Decrement(ctx context.Context, key string) (int64, error)

	// Get returns the current count and reset time without mutating the
	// counter. A missing or expired key reads as zero.
	Get(ctx context.Context, key string) (hits int64, resetAt time.Time, err error)

	// Reset deletes the key outright; the next increment starts a fresh
	// window as if no prior requests occurred.
	Reset(ctx context.Context, key string) error
}
