package cache

import (
	"context"
	"sync"

	"titulaciones/internal/revocation"
)

// InMemoryStatusCache is the single-process fallback when Redis is not
// configured.
type InMemoryStatusCache struct {
	mu      sync.RWMutex
	revoked map[revocation.ContentHash]struct{}
}

func NewInMemoryStatusCache() *InMemoryStatusCache {
	return &InMemoryStatusCache{revoked: make(map[revocation.ContentHash]struct{})}
}

func (c *InMemoryStatusCache) MarkRevoked(_ context.Context, hash revocation.ContentHash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[hash] = struct{}{}
	return nil
}

func (c *InMemoryStatusCache) IsRevoked(_ context.Context, hash revocation.ContentHash) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.revoked[hash]
	return ok, nil
}
