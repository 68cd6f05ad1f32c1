package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/trustledger/internal/domain"
	"github.com/totegamma/trustledger/internal/infra/memory"
	"github.com/totegamma/trustledger/internal/usecase"
)

var fastRetry = usecase.RetryPolicy{
	MaxRetries:     3,
	InitialBackoff: time.Millisecond,
	MaxBackoff:     2 * time.Millisecond,
}

func setup(t *testing.T, ids ...string) (*memory.Store, *usecase.VouchUsecase) {
	t.Helper()
	store := memory.NewStore()
	for _, id := range ids {
		_, err := store.Entities().Create(context.Background(), domain.NewEntity(id))
		require.NoError(t, err)
	}
	uc := usecase.NewVouchUsecase(store, domain.DefaultEconomy(), usecase.WithRetryPolicy(fastRetry))
	return store, uc
}

func getEntity(t *testing.T, store usecase.Store, id string) domain.Entity {
	t.Helper()
	e, err := store.Entities().Get(context.Background(), id)
	require.NoError(t, err)
	return e
}

func TestCastScenarioReachesBronze(t *testing.T) {
	ctx := context.Background()
	store, uc := setup(t, "A", "B", "C")
	require.NoError(t, store.Entities().Promote(ctx, "C", domain.TierSilver, true))

	res, err := uc.Cast(ctx, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Score)
	assert.Equal(t, domain.TierUnverified, res.Tier)
	assert.Equal(t, 1, res.Vouch.Weight)

	res, err = uc.Cast(ctx, "C", "B")
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Score)
	assert.Equal(t, 3, res.Vouch.Weight)

	for i := 0; i < 10; i++ {
		voucher := fmt.Sprintf("U%d", i)
		_, err := store.Entities().Create(ctx, domain.NewEntity(voucher))
		require.NoError(t, err)
		res, err = uc.Cast(ctx, voucher, "B")
		require.NoError(t, err)
	}

	assert.Equal(t, int64(14), res.Score)
	assert.Equal(t, domain.TierBronze, res.Tier)
	assert.True(t, res.IsVerified)

	b := getEntity(t, store, "B")
	assert.Equal(t, int64(14), b.TrustScore)
	assert.Equal(t, domain.TierBronze, b.Tier)
	assert.True(t, b.IsVerified)
}

func TestCastPromotionFlagOnlyOnCrossing(t *testing.T) {
	ctx := context.Background()
	store, uc := setup(t, "R")

	var promotions []int
	for i := 0; i < 12; i++ {
		voucher := fmt.Sprintf("V%d", i)
		_, err := store.Entities().Create(ctx, domain.NewEntity(voucher))
		require.NoError(t, err)
		res, err := uc.Cast(ctx, voucher, "R")
		require.NoError(t, err)
		if res.Promoted {
			promotions = append(promotions, i)
		}
	}
	// score 11 is the first to exceed 10
	assert.Equal(t, []int{10}, promotions)
}

func TestCastDuplicateLeavesScoreUnchanged(t *testing.T) {
	ctx := context.Background()
	store, uc := setup(t, "A", "B")

	_, err := uc.Cast(ctx, "A", "B")
	require.NoError(t, err)

	_, err = uc.Cast(ctx, "A", "B")
	assert.ErrorIs(t, err, domain.ErrDuplicateVouch)

	assert.Equal(t, int64(1), getEntity(t, store, "B").TrustScore)
}

func TestCastSelfVouchNeverMutates(t *testing.T) {
	ctx := context.Background()
	store, uc := setup(t, "A")

	_, err := uc.Cast(ctx, "A", "A")
	assert.ErrorIs(t, err, domain.ErrSelfVouch)

	_, err = uc.Cast(ctx, " A", "A ")
	assert.ErrorIs(t, err, domain.ErrSelfVouch)

	a := getEntity(t, store, "A")
	assert.Equal(t, int64(0), a.TrustScore)
	has, err := store.Vouches().HasVouched(ctx, "A", "A")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCastRejectsUnknownAndEmptyIDs(t *testing.T) {
	ctx := context.Background()
	store, uc := setup(t, "A")

	_, err := uc.Cast(ctx, "ghost", "A")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	_, err = uc.Cast(ctx, "A", "ghost")
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	_, err = uc.Cast(ctx, "", "A")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	has, err := store.Vouches().HasVouched(ctx, "A", "ghost")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestCastCycleResolvesWeightsAtCallTime(t *testing.T) {
	ctx := context.Background()
	store, uc := setup(t, "A", "B")
	require.NoError(t, store.Entities().Promote(ctx, "A", domain.TierGold, true))

	ab, err := uc.Cast(ctx, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, 5, ab.Vouch.Weight)

	ba, err := uc.Cast(ctx, "B", "A")
	require.NoError(t, err)
	assert.Equal(t, 1, ba.Vouch.Weight, "B was still unverified when it vouched")

	assert.Equal(t, int64(5), getEntity(t, store, "B").TrustScore)
	assert.Equal(t, int64(1), getEntity(t, store, "A").TrustScore)
}

func TestCastWeightSnapshotSurvivesVoucherPromotion(t *testing.T) {
	ctx := context.Background()
	store, uc := setup(t, "V", "R1", "R2")

	first, err := uc.Cast(ctx, "V", "R1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Vouch.Weight)

	require.NoError(t, store.Entities().Promote(ctx, "V", domain.TierGold, true))

	second, err := uc.Cast(ctx, "V", "R2")
	require.NoError(t, err)
	assert.Equal(t, 5, second.Vouch.Weight)

	received, err := store.Vouches().ListReceived(ctx, "R1", 10)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, 1, received[0].Weight)
	assert.Equal(t, int64(1), getEntity(t, store, "R1").TrustScore)
}

func TestCastConcurrentVouchesNoLostUpdates(t *testing.T) {
	ctx := context.Background()
	store, uc := setup(t, "R")

	const n = 50
	tiers := []domain.Tier{domain.TierUnverified, domain.TierBronze, domain.TierSilver, domain.TierGold}
	economy := domain.DefaultEconomy()
	expected := int64(0)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("V%d", i)
		_, err := store.Entities().Create(ctx, domain.NewEntity(id))
		require.NoError(t, err)
		tier := tiers[i%len(tiers)]
		if tier != domain.TierUnverified {
			require.NoError(t, store.Entities().Promote(ctx, id, tier, true))
		}
		expected += int64(economy.ResolveWeight(tier))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := uc.Cast(ctx, fmt.Sprintf("V%d", i), "R")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	r := getEntity(t, store, "R")
	assert.Equal(t, expected, r.TrustScore)
	assert.Equal(t, economy.TierForScore(expected), r.Tier)
}

func TestCastConcurrentSamePairExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store, uc := setup(t, "A", "B")

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.Cast(ctx, "A", "B")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes, duplicates := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, domain.ErrDuplicateVouch):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, n-1, duplicates)
	assert.Equal(t, int64(1), getEntity(t, store, "B").TrustScore)
}

func TestCastScoreAndTierMonotonic(t *testing.T) {
	ctx := context.Background()
	const size = 12
	ids := make([]string, size)
	for i := range ids {
		ids[i] = fmt.Sprintf("E%d", i)
	}
	store, uc := setup(t, ids...)

	rng := rand.New(rand.NewSource(7))
	last := map[string]domain.Entity{}
	for step := 0; step < 400; step++ {
		v, r := ids[rng.Intn(size)], ids[rng.Intn(size)]
		_, err := uc.Cast(ctx, v, r)
		if err != nil {
			require.True(t, errors.Is(err, domain.ErrSelfVouch) || errors.Is(err, domain.ErrDuplicateVouch), "unexpected error: %v", err)
		}

		for _, id := range ids {
			now := getEntity(t, store, id)
			prev := last[id]
			require.GreaterOrEqual(t, now.TrustScore, prev.TrustScore)
			require.GreaterOrEqual(t, now.Tier, prev.Tier)
			if prev.IsVerified {
				require.True(t, now.IsVerified)
			}
			last[id] = now
		}
	}
}

// conflictingStore fails the first failures transactions with a conflict.
type conflictingStore struct {
	usecase.Store
	failures int
	calls    int
}

func (s *conflictingStore) Transaction(ctx context.Context, fn func(tx usecase.Store) error) error {
	s.calls++
	if s.calls <= s.failures {
		return fmt.Errorf("%w: simulated serialization failure", domain.ErrTransactionConflict)
	}
	return s.Store.Transaction(ctx, fn)
}

func TestCastRetriesTransactionConflicts(t *testing.T) {
	ctx := context.Background()
	base, _ := setup(t, "A", "B")
	store := &conflictingStore{Store: base, failures: 2}
	uc := usecase.NewVouchUsecase(store, domain.DefaultEconomy(), usecase.WithRetryPolicy(fastRetry))

	res, err := uc.Cast(ctx, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Score)
	assert.Equal(t, 3, store.calls)
}

func TestCastGivesUpAfterBoundedRetries(t *testing.T) {
	ctx := context.Background()
	base, _ := setup(t, "A", "B")
	store := &conflictingStore{Store: base, failures: 100}
	uc := usecase.NewVouchUsecase(store, domain.DefaultEconomy(), usecase.WithRetryPolicy(fastRetry))

	_, err := uc.Cast(ctx, "A", "B")
	assert.ErrorIs(t, err, domain.ErrTransactionConflict)
	assert.Equal(t, fastRetry.MaxRetries+1, store.calls)
	assert.Equal(t, int64(0), getEntity(t, base, "B").TrustScore)
}

func TestCastDoesNotRetryDuplicates(t *testing.T) {
	ctx := context.Background()
	base, _ := setup(t, "A", "B")
	store := &conflictingStore{Store: base}
	uc := usecase.NewVouchUsecase(store, domain.DefaultEconomy(), usecase.WithRetryPolicy(fastRetry))

	_, err := uc.Cast(ctx, "A", "B")
	require.NoError(t, err)
	_, err = uc.Cast(ctx, "A", "B")
	assert.ErrorIs(t, err, domain.ErrDuplicateVouch)
	assert.Equal(t, 2, store.calls)
}

type recordingCache struct {
	mu          sync.Mutex
	stored      []domain.Entity
	invalidated []string
	setErr      error
}

func (c *recordingCache) Get(context.Context, string) (domain.Entity, bool) { return domain.Entity{}, false }

func (c *recordingCache) Set(ctx context.Context, entity domain.Entity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stored = append(c.stored, entity)
	return c.setErr
}

func (c *recordingCache) Invalidate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.VouchEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.VouchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func TestCastCachesCommittedEntityAndPublishes(t *testing.T) {
	ctx := context.Background()
	store, _ := setup(t, "A", "B")
	require.NoError(t, store.Entities().Promote(ctx, "A", domain.TierGold, true))
	_, err := store.Entities().AddScore(ctx, "B", 8)
	require.NoError(t, err)

	cache := &recordingCache{}
	publisher := &recordingPublisher{err: errors.New("redis down")}
	uc := usecase.NewVouchUsecase(store, domain.DefaultEconomy(),
		usecase.WithCache(cache),
		usecase.WithPublisher(publisher),
		usecase.WithRetryPolicy(fastRetry),
	)

	res, err := uc.Cast(ctx, "A", "B")
	require.NoError(t, err, "publish failures must not fail the vouch")
	assert.Equal(t, int64(13), res.Score)
	assert.True(t, res.Promoted)

	require.Len(t, cache.stored, 1)
	assert.Equal(t, "B", cache.stored[0].ID)
	assert.Equal(t, int64(13), cache.stored[0].TrustScore)
	assert.Equal(t, domain.TierBronze, cache.stored[0].Tier)
	assert.True(t, cache.stored[0].IsVerified)
	assert.Empty(t, cache.invalidated)
	require.Len(t, publisher.events, 2)
	assert.Equal(t, domain.EventVouchCommitted, publisher.events[0].Type)
	assert.Equal(t, domain.EventTierPromoted, publisher.events[1].Type)
	assert.Equal(t, "B", publisher.events[1].EntityID)
	assert.Equal(t, domain.TierBronze, publisher.events[1].Tier)
}

func TestCastFailureSkipsSideEffects(t *testing.T) {
	ctx := context.Background()
	store, _ := setup(t, "A", "B")
	cache := &recordingCache{}
	publisher := &recordingPublisher{}
	uc := usecase.NewVouchUsecase(store, domain.DefaultEconomy(), usecase.WithCache(cache), usecase.WithPublisher(publisher))

	_, err := uc.Cast(ctx, "A", "A")
	require.Error(t, err)
	assert.Empty(t, cache.stored)
	assert.Empty(t, cache.invalidated)
	assert.Empty(t, publisher.events)
}

func TestCastInvalidatesWhenCacheWriteFails(t *testing.T) {
	ctx := context.Background()
	store, _ := setup(t, "A", "B")
	cache := &recordingCache{setErr: errors.New("memcache down")}
	uc := usecase.NewVouchUsecase(store, domain.DefaultEconomy(), usecase.WithCache(cache))

	_, err := uc.Cast(ctx, "A", "B")
	require.NoError(t, err)
	assert.Equal(t, []string{"B"}, cache.invalidated)
}

func TestListVouches(t *testing.T) {
	ctx := context.Background()
	_, uc := setup(t, "A", "B", "C")

	_, err := uc.Cast(ctx, "A", "C")
	require.NoError(t, err)
	_, err = uc.Cast(ctx, "B", "C")
	require.NoError(t, err)
	_, err = uc.Cast(ctx, "A", "B")
	require.NoError(t, err)

	received, err := uc.ListReceived(ctx, "C", 0)
	require.NoError(t, err)
	assert.Len(t, received, 2)

	given, err := uc.ListGiven(ctx, "A", 1)
	require.NoError(t, err)
	require.Len(t, given, 1)
	assert.Equal(t, "B", given[0].ReceiverID)

	_, err = uc.ListReceived(ctx, "ghost", 5)
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	has, err := uc.HasVouched(ctx, "B", "C")
	require.NoError(t, err)
	assert.True(t, has)
}

func TestReadsNormalizeIDs(t *testing.T) {
	ctx := context.Background()
	_, uc := setup(t, "A", "B")

	_, err := uc.Cast(ctx, " A", "B ")
	require.NoError(t, err)

	received, err := uc.ListReceived(ctx, " B ", 0)
	require.NoError(t, err)
	require.Len(t, received, 1)
	assert.Equal(t, "A", received[0].VoucherID)

	given, err := uc.ListGiven(ctx, "A\t", 0)
	require.NoError(t, err)
	assert.Len(t, given, 1)

	has, err := uc.HasVouched(ctx, " A", "B ")
	require.NoError(t, err)
	assert.True(t, has)
}
