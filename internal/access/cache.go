package access

import (
	"context"
	"fmt"
	"sync"

	"github.com/wakti/backend/internal/models"
)

// SnapshotCache is the durable per-user store for subscription snapshots.
// Implementations must treat writes as last-writer-wins; staleness is bounded
// by the TTL check performed at read time, not by the store.
type SnapshotCache interface {
	Get(ctx context.Context, key string) (models.SubscriptionSnapshot, bool, error)
	Put(ctx context.Context, key string, snapshot models.SubscriptionSnapshot) error
}

// CacheKey builds the per-user cache key.
func CacheKey(namespace, userID string) string {
	return fmt.Sprintf("%s_%s", namespace, userID)
}

// NewMemorySnapshotCache returns a SnapshotCache backed by an in-memory map.
func NewMemorySnapshotCache() *MemorySnapshotCache {
	return &MemorySnapshotCache{items: make(map[string]models.SubscriptionSnapshot)}
}

// MemorySnapshotCache implements SnapshotCache for tests and single-process runs.
type MemorySnapshotCache struct {
	mu    sync.RWMutex
	items map[string]models.SubscriptionSnapshot
}

// Get returns the stored snapshot for the key, if any.
func (c *MemorySnapshotCache) Get(_ context.Context, key string) (models.SubscriptionSnapshot, bool, error) {
	c.mu.RLock()
	snapshot, ok := c.items[key]
	c.mu.RUnlock()
	return snapshot, ok, nil
}

// Put stores the snapshot under the key, replacing any previous value.
func (c *MemorySnapshotCache) Put(_ context.Context, key string, snapshot models.SubscriptionSnapshot) error {
	c.mu.Lock()
	c.items[key] = snapshot
	c.mu.Unlock()
	return nil
}
