// Package idempotency caches the response of a completed logical request so
// that repeated calls bearing the same tenant-scoped key return the original
// response without re-executing side effects.
//
// Concurrent duplicates are resolved by an atomic claim: the first caller
// wins the processing slot, the loser awaits the winner's cached result. If
// the winner dies without storing a result the claim lapses and the loser
// proceeds itself.
package idempotency

import (
	"context"
	"time"
)

// DefaultTTL is how long a cached response stays authoritative.
const DefaultTTL = 24 * time.Hour

// Store is the tenant-scoped idempotent-response cache. Expired records are
// authoritative absent: Lookup must never return them.
type Store interface {
	// Lookup returns the cached response for (tenantID, key), or false if
	// the key is absent, expired, or still being processed.
	Lookup(ctx context.Context, tenantID, key string) ([]byte, bool, error)

	// Claim atomically takes the processing slot for (tenantID, key).
	// It returns true if this caller won the slot.
	Claim(ctx context.Context, tenantID, key string) (bool, error)

	// Await blocks until the claim winner stores a response, the claim
	// lapses (returns found=false), or the context is cancelled.
	Await(ctx context.Context, tenantID, key string) ([]byte, bool, error)

	// Store caches the response, replacing any processing claim.
	Store(ctx context.Context, tenantID, key string, response []byte, ttl time.Duration) error

	// Release frees a claim whose holder failed before producing a response.
	Release(ctx context.Context, tenantID, key string) error
}
