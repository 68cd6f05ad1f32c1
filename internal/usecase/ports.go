package usecase

import (
	"context"

	"github.com/totegamma/trustledger/internal/domain"
)

// EntityRepository is the entity store. Only the scoring engine calls the
// mutating methods.
type EntityRepository interface {
	Create(ctx context.Context, entity domain.Entity) (domain.Entity, error)
	Get(ctx context.Context, id string) (domain.Entity, error)
	// AddScore atomically adds delta to the entity's trust score and returns
	// the entity as it stands after the increment.
	AddScore(ctx context.Context, id string, delta int) (domain.Entity, error)
	// Promote raises the entity's tier to at least tier and sets the verified
	// flag when verified is true. It never lowers either.
	Promote(ctx context.Context, id string, tier domain.Tier, verified bool) error
}

// VouchRepository is the append-only vouch ledger.
type VouchRepository interface {
	// Record appends a vouch. The pair uniqueness check and the write are a
	// single atomic step; a second vouch for the same pair fails with
	// domain.ErrDuplicateVouch.
	Record(ctx context.Context, voucherID, receiverID string, weight int) (domain.Vouch, error)
	HasVouched(ctx context.Context, voucherID, receiverID string) (bool, error)
	ListReceived(ctx context.Context, receiverID string, limit int) ([]domain.Vouch, error)
	ListGiven(ctx context.Context, voucherID string, limit int) ([]domain.Vouch, error)
	// SumReceived returns the total weight and number of vouches received.
	SumReceived(ctx context.Context, receiverID string) (int64, int64, error)
}

// Store groups the repositories and provides transactions spanning them.
type Store interface {
	Entities() EntityRepository
	Vouches() VouchRepository
	// Transaction runs fn against a transactional view of the store. All
	// writes made through tx commit together or not at all.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	// Snapshot runs fn against a read-only view in which every read sees
	// the same committed state.
	Snapshot(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

// EntityCache is a read-through cache for entity display reads.
type EntityCache interface {
	Get(ctx context.Context, id string) (domain.Entity, bool)
	// Set stores entity unless the cache already holds a standing that
	// supersedes it, so a slow reader cannot replace a fresher entry.
	Set(ctx context.Context, entity domain.Entity) error
	Invalidate(ctx context.Context, id string) error
}

// EventPublisher fans committed vouches out to listeners.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.VouchEvent) error
}

type nopCache struct{}

func (nopCache) Get(context.Context, string) (domain.Entity, bool) { return domain.Entity{}, false }
func (nopCache) Set(context.Context, domain.Entity) error            { return nil }
func (nopCache) Invalidate(context.Context, string) error            { return nil }

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.VouchEvent) error { return nil }
