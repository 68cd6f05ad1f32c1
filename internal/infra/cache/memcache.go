package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/zeebo/xxh3"

	"github.com/totegamma/trustledger/internal/domain"
)

const (
	keyPrefix = "trustledger:entity:"
	// memcached reads larger relative expirations as unix timestamps
	maxExpiration = 30 * 24 * time.Hour
	casAttempts   = 4
)

var errCacheContention = errors.New("memcache: entity entry kept changing during set")

// MemcacheCache shares cached entities between service replicas.
type MemcacheCache struct {
	client *memcache.Client
	ttl    time.Duration
}

func NewMemcacheCache(client *memcache.Client, ttl time.Duration) *MemcacheCache {
	return &MemcacheCache{client: client, ttl: ttl}
}

// entity ids are caller supplied; hashing keeps keys within memcached's
// length and character limits
func entityKey(id string) string {
	return keyPrefix + strconv.FormatUint(xxh3.HashString(id), 16)
}

// expirationSeconds rounds ttl up to whole seconds. Zero means "never" to
// memcached, so the result is at least one second.
func expirationSeconds(ttl time.Duration) int32 {
	if ttl > maxExpiration {
		ttl = maxExpiration
	}
	secs := (ttl + time.Second - 1) / time.Second
	if secs < 1 {
		secs = 1
	}
	return int32(secs)
}

func (c *MemcacheCache) Get(ctx context.Context, id string) (domain.Entity, bool) {
	item, err := c.client.Get(entityKey(id))
	if err != nil {
		return domain.Entity{}, false
	}

	entity, ok := decodeEntity(item, id)
	return entity, ok
}

func decodeEntity(item *memcache.Item, id string) (domain.Entity, bool) {
	var entity domain.Entity
	if err := json.Unmarshal(item.Value, &entity); err != nil {
		return domain.Entity{}, false
	}
	// guard against hash collisions
	if entity.ID != id {
		return domain.Entity{}, false
	}
	return entity, true
}

// Set writes with add or compare-and-swap, so an entry is only replaced by
// a standing at least as new, even when replicas write concurrently.
func (c *MemcacheCache) Set(ctx context.Context, entity domain.Entity) error {
	value, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	key := entityKey(entity.ID)
	expiration := expirationSeconds(c.ttl)

	for attempt := 0; attempt < casAttempts; attempt++ {
		item, err := c.client.Get(key)
		if errors.Is(err, memcache.ErrCacheMiss) {
			err = c.client.Add(&memcache.Item{Key: key, Value: value, Expiration: expiration})
			if errors.Is(err, memcache.ErrNotStored) {
				continue
			}
			return err
		}
		if err != nil {
			return err
		}

		if cached, ok := decodeEntity(item, entity.ID); ok && cached.Supersedes(entity) {
			return nil
		}
		item.Value = value
		item.Expiration = expiration
		err = c.client.CompareAndSwap(item)
		if errors.Is(err, memcache.ErrCASConflict) || errors.Is(err, memcache.ErrNotStored) {
			continue
		}
		return err
	}
	return errCacheContention
}

func (c *MemcacheCache) Invalidate(ctx context.Context, id string) error {
	err := c.client.Delete(entityKey(id))
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil
	}
	return err
}
