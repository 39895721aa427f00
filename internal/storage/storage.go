// Package storage defines the key-value contract the OAuth handler persists
// state and tokens through, plus the reference adapters (in-memory and
// Redis). The handler assumes read-after-write consistency for its own
// writes; cross-client atomicity is not part of the contract.
package storage

import (
	"context"
	"time"
)

// Store is a key-value store with optional per-key TTL. A key written with a
// positive TTL becomes unreadable once the TTL elapses; enforcement is the
// adapter's concern. A zero TTL means no expiry.
type Store interface {
	// Get returns the stored value and whether the key exists
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set writes a value, replacing any existing one
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes a key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
	// Has reports whether the key exists and has not expired
	Has(ctx context.Context, key string) (bool, error)
}
