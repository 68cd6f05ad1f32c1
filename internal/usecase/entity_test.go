package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/trustledger/internal/domain"
	"github.com/totegamma/trustledger/internal/infra/cache"
	"github.com/totegamma/trustledger/internal/infra/memory"
	"github.com/totegamma/trustledger/internal/usecase"
)

type mapCache struct {
	entries map[string]domain.Entity
	hits    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string]domain.Entity{}}
}

func (c *mapCache) Get(ctx context.Context, id string) (domain.Entity, bool) {
	e, ok := c.entries[id]
	if ok {
		c.hits++
	}
	return e, ok
}

func (c *mapCache) Set(ctx context.Context, entity domain.Entity) error {
	c.entries[entity.ID] = entity
	return nil
}

func (c *mapCache) Invalidate(ctx context.Context, id string) error {
	delete(c.entries, id)
	return nil
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	uc := usecase.NewEntityUsecase(memory.NewStore(), nil, zerolog.Nop())

	e, err := uc.Register(ctx, " shop-1 ")
	require.NoError(t, err)
	assert.Equal(t, "shop-1", e.ID)
	assert.Equal(t, int64(0), e.TrustScore)
	assert.Equal(t, domain.TierUnverified, e.Tier)
	assert.False(t, e.IsVerified)

	_, err = uc.Register(ctx, "shop-1")
	assert.ErrorIs(t, err, domain.ErrEntityExists)

	_, err = uc.Register(ctx, "  ")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestGetReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	cache := newMapCache()
	entities := usecase.NewEntityUsecase(store, cache, zerolog.Nop())
	vouches := usecase.NewVouchUsecase(store, domain.DefaultEconomy(), usecase.WithCache(cache))

	_, err := entities.Register(ctx, "A")
	require.NoError(t, err)
	_, err = entities.Register(ctx, "B")
	require.NoError(t, err)

	b, err := entities.Get(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(0), b.TrustScore)
	assert.Equal(t, 0, cache.hits)

	_, err = entities.Get(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	_, err = vouches.Cast(ctx, "A", "B")
	require.NoError(t, err)

	b, err = entities.Get(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.TrustScore, "commit must replace the cached receiver")

	_, err = entities.Get(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
	_, cached := cache.entries["ghost"]
	assert.False(t, cached)
}

func TestGetNormalizesID(t *testing.T) {
	ctx := context.Background()
	uc := usecase.NewEntityUsecase(memory.NewStore(), newMapCache(), zerolog.Nop())

	_, err := uc.Register(ctx, "B")
	require.NoError(t, err)

	e, err := uc.Get(ctx, " B ")
	require.NoError(t, err)
	assert.Equal(t, "B", e.ID)
}

// pausingStore holds the first read of one entity between loading the row
// and returning it, so a commit can land in that window.
type pausingStore struct {
	*memory.Store
	id      string
	loaded  chan struct{}
	release chan struct{}
}

func (s *pausingStore) Entities() usecase.EntityRepository {
	return &pausingEntities{EntityRepository: s.Store.Entities(), store: s}
}

type pausingEntities struct {
	usecase.EntityRepository
	store *pausingStore
}

func (r *pausingEntities) Get(ctx context.Context, id string) (domain.Entity, error) {
	e, err := r.EntityRepository.Get(ctx, id)
	if id == r.store.id && r.store.loaded != nil {
		close(r.store.loaded)
		r.store.loaded = nil
		<-r.store.release
	}
	return e, err
}

func TestGetDoesNotCacheStandingOlderThanCommit(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	for _, id := range []string{"A", "B"} {
		_, err := mem.Entities().Create(ctx, domain.NewEntity(id))
		require.NoError(t, err)
	}

	slow := &pausingStore{Store: mem, id: "B", loaded: make(chan struct{}), release: make(chan struct{})}
	loaded := slow.loaded
	shared := cache.NewLocalCache(time.Minute)
	entities := usecase.NewEntityUsecase(slow, shared, zerolog.Nop())
	vouches := usecase.NewVouchUsecase(mem, domain.DefaultEconomy(), usecase.WithCache(shared))

	type read struct {
		entity domain.Entity
		err    error
	}
	stale := make(chan read, 1)
	go func() {
		e, err := entities.Get(ctx, "B")
		stale <- read{e, err}
	}()

	select {
	case <-loaded:
	case <-time.After(5 * time.Second):
		t.Fatal("reader never loaded B")
	}

	res, err := vouches.Cast(ctx, "A", "B")
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Score)

	close(slow.release)
	first := <-stale
	require.NoError(t, first.err)
	assert.Equal(t, int64(0), first.entity.TrustScore, "reader loaded the row before the commit")

	got, err := entities.Get(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.TrustScore, "cache must keep the committed standing")
}
