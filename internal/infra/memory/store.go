// Package memory provides an in-process Store. Transactions are serialized
// behind one lock and applied to a staged copy of the state, which replaces
// the live state only when the transaction function succeeds.
package memory

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/totegamma/trustledger/internal/domain"
	"github.com/totegamma/trustledger/internal/usecase"
)

type pairKey struct {
	voucher  string
	receiver string
}

type state struct {
	entities map[string]domain.Entity
	vouches  []domain.Vouch
	pairs    map[pairKey]struct{}
}

func (s *state) clone() *state {
	return &state{
		entities: maps.Clone(s.entities),
		// append-only: capping the slice makes staged appends copy
		vouches: s.vouches[:len(s.vouches):len(s.vouches)],
		pairs:   maps.Clone(s.pairs),
	}
}

type Store struct {
	mu    sync.Mutex
	state *state
	now   func() time.Time
}

func NewStore() *Store {
	return &Store{
		state: &state{
			entities: map[string]domain.Entity{},
			pairs:    map[pairKey]struct{}{},
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Entities() usecase.EntityRepository {
	return &entityRepository{view: s.view}
}

func (s *Store) Vouches() usecase.VouchRepository {
	return &vouchRepository{view: s.view, now: s.now}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx usecase.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.state.clone()
	tx := &txStore{state: staged, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.state = staged
	return nil
}

// Snapshot hands fn a private copy of the state under the store lock.
// Anything fn writes is discarded.
func (s *Store) Snapshot(ctx context.Context, fn func(tx usecase.Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(&txStore{state: s.state.clone(), now: s.now})
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// view runs fn against the live state under the store lock.
func (s *Store) view(fn func(st *state) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.state)
}

// txStore is the Store handed to a transaction function. The outer lock is
// already held, so its repositories touch the staged state directly.
type txStore struct {
	state *state
	now   func() time.Time
}

func (t *txStore) view(fn func(st *state) error) error {
	return fn(t.state)
}

func (t *txStore) Entities() usecase.EntityRepository {
	return &entityRepository{view: t.view}
}

func (t *txStore) Vouches() usecase.VouchRepository {
	return &vouchRepository{view: t.view, now: t.now}
}

func (t *txStore) Transaction(ctx context.Context, fn func(tx usecase.Store) error) error {
	return fn(t)
}

func (t *txStore) Snapshot(ctx context.Context, fn func(tx usecase.Store) error) error {
	return fn(t)
}

func (t *txStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

type entityRepository struct {
	view func(fn func(st *state) error) error
}

func (r *entityRepository) Create(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	err := r.view(func(st *state) error {
		if _, ok := st.entities[entity.ID]; ok {
			return domain.ErrEntityExists
		}
		now := time.Now().UTC()
		entity.CDate = now
		entity.MDate = now
		st.entities[entity.ID] = entity
		return nil
	})
	return entity, err
}

func (r *entityRepository) Get(ctx context.Context, id string) (domain.Entity, error) {
	var entity domain.Entity
	err := r.view(func(st *state) error {
		e, ok := st.entities[id]
		if !ok {
			return domain.ErrEntityNotFound
		}
		entity = e
		return nil
	})
	return entity, err
}

func (r *entityRepository) AddScore(ctx context.Context, id string, delta int) (domain.Entity, error) {
	var entity domain.Entity
	err := r.view(func(st *state) error {
		e, ok := st.entities[id]
		if !ok {
			return domain.ErrEntityNotFound
		}
		e.TrustScore += int64(delta)
		e.MDate = time.Now().UTC()
		st.entities[id] = e
		entity = e
		return nil
	})
	return entity, err
}

func (r *entityRepository) Promote(ctx context.Context, id string, tier domain.Tier, verified bool) error {
	return r.view(func(st *state) error {
		e, ok := st.entities[id]
		if !ok {
			return domain.ErrEntityNotFound
		}
		if tier > e.Tier {
			e.Tier = tier
		}
		e.IsVerified = e.IsVerified || verified
		e.MDate = time.Now().UTC()
		st.entities[id] = e
		return nil
	})
}

type vouchRepository struct {
	view func(fn func(st *state) error) error
	now  func() time.Time
}

func (r *vouchRepository) Record(ctx context.Context, voucherID, receiverID string, weight int) (domain.Vouch, error) {
	var vouch domain.Vouch
	err := r.view(func(st *state) error {
		if voucherID == receiverID {
			return domain.ErrSelfVouch
		}
		if weight < 1 {
			return domain.ErrInvalidArgument
		}
		if _, ok := st.entities[voucherID]; !ok {
			return domain.ErrEntityNotFound
		}
		if _, ok := st.entities[receiverID]; !ok {
			return domain.ErrEntityNotFound
		}
		key := pairKey{voucher: voucherID, receiver: receiverID}
		if _, ok := st.pairs[key]; ok {
			return domain.ErrDuplicateVouch
		}

		vouch = domain.Vouch{
			ID:         uuid.NewString(),
			VoucherID:  voucherID,
			ReceiverID: receiverID,
			Weight:     weight,
			Timestamp:  r.now(),
		}
		st.pairs[key] = struct{}{}
		st.vouches = append(st.vouches, vouch)
		return nil
	})
	return vouch, err
}

func (r *vouchRepository) HasVouched(ctx context.Context, voucherID, receiverID string) (bool, error) {
	var found bool
	err := r.view(func(st *state) error {
		_, found = st.pairs[pairKey{voucher: voucherID, receiver: receiverID}]
		return nil
	})
	return found, err
}

func (r *vouchRepository) ListReceived(ctx context.Context, receiverID string, limit int) ([]domain.Vouch, error) {
	return r.list(limit, func(v domain.Vouch) bool { return v.ReceiverID == receiverID })
}

func (r *vouchRepository) ListGiven(ctx context.Context, voucherID string, limit int) ([]domain.Vouch, error) {
	return r.list(limit, func(v domain.Vouch) bool { return v.VoucherID == voucherID })
}

func (r *vouchRepository) list(limit int, match func(domain.Vouch) bool) ([]domain.Vouch, error) {
	result := []domain.Vouch{}
	err := r.view(func(st *state) error {
		for i := len(st.vouches) - 1; i >= 0; i-- {
			if match(st.vouches[i]) {
				result = append(result, st.vouches[i])
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// newest first; ledger order breaks timestamp ties
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *vouchRepository) SumReceived(ctx context.Context, receiverID string) (int64, int64, error) {
	var sum, count int64
	err := r.view(func(st *state) error {
		for _, v := range st.vouches {
			if v.ReceiverID == receiverID {
				sum += int64(v.Weight)
				count++
			}
		}
		return nil
	})
	return sum, count, err
}
