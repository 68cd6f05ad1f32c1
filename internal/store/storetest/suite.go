// Package storetest is a compliance suite for usecase.Store implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/trustledger/internal/domain"
	"github.com/totegamma/trustledger/internal/usecase"
)

// Run exercises the store contract. makeStore may return a shared store;
// every test uses fresh identifiers.
func Run(t *testing.T, makeStore func(t *testing.T) usecase.Store) {
	t.Helper()

	t.Run("EntityLifecycle", func(t *testing.T) { testEntityLifecycle(t, makeStore(t)) })
	t.Run("RecordVouch", func(t *testing.T) { testRecordVouch(t, makeStore(t)) })
	t.Run("PromoteNeverLowers", func(t *testing.T) { testPromoteNeverLowers(t, makeStore(t)) })
	t.Run("TransactionRollback", func(t *testing.T) { testTransactionRollback(t, makeStore(t)) })
	t.Run("ListAndSum", func(t *testing.T) { testListAndSum(t, makeStore(t)) })
	t.Run("ConcurrentIncrements", func(t *testing.T) { testConcurrentIncrements(t, makeStore(t)) })
	t.Run("ConcurrentDuplicatePair", func(t *testing.T) { testConcurrentDuplicatePair(t, makeStore(t)) })
	t.Run("SnapshotIsStable", func(t *testing.T) { testSnapshotIsStable(t, makeStore(t)) })
	t.Run("SnapshotDoesNotWrite", func(t *testing.T) { testSnapshotDoesNotWrite(t, makeStore(t)) })
}

func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

func mustCreate(t *testing.T, s usecase.Store, id string) domain.Entity {
	t.Helper()
	e, err := s.Entities().Create(context.Background(), domain.NewEntity(id))
	require.NoError(t, err)
	return e
}

func testEntityLifecycle(t *testing.T, s usecase.Store) {
	ctx := context.Background()
	id := newID("entity")

	created := mustCreate(t, s, id)
	assert.Equal(t, id, created.ID)
	assert.Equal(t, int64(0), created.TrustScore)
	assert.Equal(t, domain.TierUnverified, created.Tier)
	assert.False(t, created.IsVerified)

	_, err := s.Entities().Create(ctx, domain.NewEntity(id))
	assert.ErrorIs(t, err, domain.ErrEntityExists)

	got, err := s.Entities().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	_, err = s.Entities().Get(ctx, newID("missing"))
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	updated, err := s.Entities().AddScore(ctx, id, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), updated.TrustScore)

	_, err = s.Entities().AddScore(ctx, newID("missing"), 1)
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)
}

func testRecordVouch(t *testing.T, s usecase.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, newID("a")).ID
	b := mustCreate(t, s, newID("b")).ID

	has, err := s.Vouches().HasVouched(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, has)

	v, err := s.Vouches().Record(ctx, a, b, 3)
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, a, v.VoucherID)
	assert.Equal(t, b, v.ReceiverID)
	assert.Equal(t, 3, v.Weight)
	assert.False(t, v.Timestamp.IsZero())

	has, err = s.Vouches().HasVouched(ctx, a, b)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = s.Vouches().HasVouched(ctx, b, a)
	require.NoError(t, err)
	assert.False(t, has, "vouches are directed")

	_, err = s.Vouches().Record(ctx, a, b, 1)
	assert.ErrorIs(t, err, domain.ErrDuplicateVouch)

	_, err = s.Vouches().Record(ctx, a, a, 1)
	assert.ErrorIs(t, err, domain.ErrSelfVouch)

	_, err = s.Vouches().Record(ctx, b, a, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = s.Vouches().Record(ctx, a, newID("missing"), 1)
	assert.ErrorIs(t, err, domain.ErrEntityNotFound)

	// the reverse edge is a different pair
	_, err = s.Vouches().Record(ctx, b, a, 1)
	assert.NoError(t, err)
}

func testPromoteNeverLowers(t *testing.T, s usecase.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, newID("promote")).ID

	require.NoError(t, s.Entities().Promote(ctx, id, domain.TierSilver, true))
	got, err := s.Entities().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierSilver, got.Tier)
	assert.True(t, got.IsVerified)

	require.NoError(t, s.Entities().Promote(ctx, id, domain.TierBronze, false))
	got, err = s.Entities().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TierSilver, got.Tier)
	assert.True(t, got.IsVerified)

	assert.ErrorIs(t, s.Entities().Promote(ctx, newID("missing"), domain.TierGold, true), domain.ErrEntityNotFound)
}

func testTransactionRollback(t *testing.T, s usecase.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, newID("a")).ID
	b := mustCreate(t, s, newID("b")).ID

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx usecase.Store) error {
		if _, err := tx.Vouches().Record(ctx, a, b, 5); err != nil {
			return err
		}
		if _, err := tx.Entities().AddScore(ctx, b, 5); err != nil {
			return err
		}
		if err := tx.Entities().Promote(ctx, b, domain.TierGold, true); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	has, err := s.Vouches().HasVouched(ctx, a, b)
	require.NoError(t, err)
	assert.False(t, has)

	got, err := s.Entities().Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TrustScore)
	assert.Equal(t, domain.TierUnverified, got.Tier)
	assert.False(t, got.IsVerified)

	// a rolled back pair can still be vouched
	_, err = s.Vouches().Record(ctx, a, b, 5)
	assert.NoError(t, err)
}

func testListAndSum(t *testing.T, s usecase.Store) {
	ctx := context.Background()
	receiver := mustCreate(t, s, newID("receiver")).ID

	var vouchers []string
	for i := 0; i < 4; i++ {
		voucher := mustCreate(t, s, newID(fmt.Sprintf("voucher%d", i))).ID
		vouchers = append(vouchers, voucher)
		_, err := s.Vouches().Record(ctx, voucher, receiver, i+1)
		require.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	received, err := s.Vouches().ListReceived(ctx, receiver, 10)
	require.NoError(t, err)
	require.Len(t, received, 4)
	assert.Equal(t, vouchers[3], received[0].VoucherID, "newest first")
	assert.Equal(t, vouchers[0], received[3].VoucherID)

	limited, err := s.Vouches().ListReceived(ctx, receiver, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, vouchers[3], limited[0].VoucherID)

	given, err := s.Vouches().ListGiven(ctx, vouchers[1], 10)
	require.NoError(t, err)
	require.Len(t, given, 1)
	assert.Equal(t, receiver, given[0].ReceiverID)
	assert.Equal(t, 2, given[0].Weight)

	sum, count, err := s.Vouches().SumReceived(ctx, receiver)
	require.NoError(t, err)
	assert.Equal(t, int64(1+2+3+4), sum)
	assert.Equal(t, int64(4), count)

	sum, count, err = s.Vouches().SumReceived(ctx, vouchers[0])
	require.NoError(t, err)
	assert.Zero(t, sum)
	assert.Zero(t, count)
}

func testConcurrentIncrements(t *testing.T, s usecase.Store) {
	ctx := context.Background()
	receiver := mustCreate(t, s, newID("receiver")).ID

	const n = 20
	vouchers := make([]string, n)
	for i := range vouchers {
		vouchers[i] = mustCreate(t, s, newID("voucher")).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(voucher string, weight int) {
			defer wg.Done()
			errs <- s.Transaction(ctx, func(tx usecase.Store) error {
				if _, err := tx.Vouches().Record(ctx, voucher, receiver, weight); err != nil {
					return err
				}
				_, err := tx.Entities().AddScore(ctx, receiver, weight)
				return err
			})
		}(vouchers[i], 3)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := s.Entities().Get(ctx, receiver)
	require.NoError(t, err)
	assert.Equal(t, int64(3*n), got.TrustScore)
}

func testConcurrentDuplicatePair(t *testing.T, s usecase.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, newID("a")).ID
	b := mustCreate(t, s, newID("b")).ID

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Transaction(ctx, func(tx usecase.Store) error {
				_, err := tx.Vouches().Record(ctx, a, b, 1)
				return err
			})
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
}

// A vouch committed while a snapshot is open must not appear half way
// through it: the entity row and the ledger sum come from the same state.
func testSnapshotIsStable(t *testing.T, s usecase.Store) {
	ctx := context.Background()
	a := mustCreate(t, s, newID("a")).ID
	b := mustCreate(t, s, newID("b")).ID

	var (
		stored domain.Entity
		sum    int64
	)
	writerDone := make(chan error, 1)
	err := s.Snapshot(ctx, func(tx usecase.Store) error {
		var err error
		stored, err = tx.Entities().Get(ctx, b)
		if err != nil {
			return err
		}

		go func() {
			writerDone <- s.Transaction(ctx, func(wtx usecase.Store) error {
				if _, err := wtx.Vouches().Record(ctx, a, b, 3); err != nil {
					return err
				}
				_, err := wtx.Entities().AddScore(ctx, b, 3)
				return err
			})
		}()
		// stores that hold writers back until the snapshot ends time out here
		select {
		case err := <-writerDone:
			writerDone <- err
		case <-time.After(200 * time.Millisecond):
		}

		sum, _, err = tx.Vouches().SumReceived(ctx, b)
		return err
	})
	require.NoError(t, err)
	require.NoError(t, <-writerDone)

	assert.Equal(t, stored.TrustScore, sum, "entity and ledger read from different states")

	after, err := s.Entities().Get(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(3), after.TrustScore)
}

func testSnapshotDoesNotWrite(t *testing.T, s usecase.Store) {
	ctx := context.Background()
	id := mustCreate(t, s, newID("readonly")).ID

	// read-only stores reject the write, others discard it
	_ = s.Snapshot(ctx, func(tx usecase.Store) error {
		_, err := tx.Entities().AddScore(ctx, id, 5)
		return err
	})

	got, err := s.Entities().Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.TrustScore)
}
