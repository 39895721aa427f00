package storage

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore is an in-process Store backed by patrickmn/go-cache. Expired
// entries are swept periodically by the cache's janitor goroutine.
type MemoryStore struct {
	cache *gocache.Cache
}

// NewMemoryStore creates a memory store sweeping expired keys every
// cleanupInterval. A zero interval disables the sweep; expired keys are
// still invisible to reads, they just linger until overwritten.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, cleanupInterval),
	}
}

// Get returns the stored value and whether the key exists
func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, found := m.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	return value.([]byte), true, nil
}

// Set writes a value, replacing any existing one
func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	expiry := ttl
	if ttl <= 0 {
		expiry = gocache.NoExpiration
	}

	// Copy so later mutation of the caller's slice cannot corrupt the store.
	buf := make([]byte, len(value))
	copy(buf, value)

	m.cache.Set(key, buf, expiry)
	return nil
}

// Delete removes a key
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}

// Has reports whether the key exists and has not expired
func (m *MemoryStore) Has(ctx context.Context, key string) (bool, error) {
	_, found := m.cache.Get(key)
	return found, nil
}
