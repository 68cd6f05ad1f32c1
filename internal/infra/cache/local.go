// Package cache holds the entity read caches used by display reads.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/totegamma/trustledger/internal/domain"
)

// LocalCache keeps entities in process memory. Entries are per process:
// replicas that must observe each other's commits should use MemcacheCache.
type LocalCache struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func NewLocalCache(ttl time.Duration) *LocalCache {
	return &LocalCache{
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *LocalCache) Get(ctx context.Context, id string) (domain.Entity, bool) {
	if cached, found := c.cache.Get(id); found {
		return cached.(domain.Entity), true
	}
	return domain.Entity{}, false
}

func (c *LocalCache) Set(ctx context.Context, entity domain.Entity) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, found := c.cache.Get(entity.ID); found && cached.(domain.Entity).Supersedes(entity) {
		return nil
	}
	c.cache.SetDefault(entity.ID, entity)
	return nil
}

func (c *LocalCache) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Delete(id)
	return nil
}
