// Package cache provides the generic time-windowed result cache shared by the
// client's resource families: a keyed entry store, the freshness policy and the
// request coordinator that drives the load state machine.
package cache

import (
	"context"
	"time"
)

// Entry is the last successfully fetched payload for one partition key.
// It is replaced wholesale on every successful fetch and never mutated in place.
type Entry[P any] struct {
	Payload   P         `json:"payload"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Store holds one Entry per partition key.
// Implementations must be safe for concurrent use and must never read the
// wall clock: FetchedAt is always the now passed to Put.
type Store[K comparable, P any] interface {
	// Get returns the entry for key, or nil and no error when none exists.
	Get(ctx context.Context, key K) (*Entry[P], error)
	// Put replaces the entry for key.
	Put(ctx context.Context, key K, payload P, now time.Time) error
	// Clear removes every partition.
	Clear(ctx context.Context) error
}

// Clock supplies the current time to the coordinator.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }
