package usecase

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/trustledger/internal/domain"
)

// AuditUsecase checks stored standings against the vouch ledger.
type AuditUsecase struct {
	store   Store
	economy domain.Economy
}

func NewAuditUsecase(store Store, economy domain.Economy) *AuditUsecase {
	return &AuditUsecase{store: store, economy: economy}
}

// Audit recomputes the entity's score from its received vouches and the
// tier that score implies. It never writes.
func (uc *AuditUsecase) Audit(ctx context.Context, id string) (domain.AuditReport, error) {
	ctx, span := tracer.Start(ctx, "Audit.Usecase.Audit")
	defer span.End()

	id = domain.NormalizeID(id)
	span.SetAttributes(attribute.String("EntityId", id))

	var (
		entity domain.Entity
		sum    int64
		count  int64
	)
	// both reads must see the same commit, or a vouch landing between them
	// shows up as drift
	err := uc.store.Snapshot(ctx, func(tx Store) error {
		var err error
		entity, err = tx.Entities().Get(ctx, id)
		if err != nil {
			return err
		}
		sum, count, err = tx.Vouches().SumReceived(ctx, id)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return domain.AuditReport{}, err
	}

	expected := uc.economy.Promote(domain.TierUnverified, sum)
	report := domain.AuditReport{
		EntityID:     id,
		StoredScore:  entity.TrustScore,
		LedgerScore:  sum,
		VouchCount:   count,
		StoredTier:   entity.Tier,
		ExpectedTier: expected,
		Verified:     entity.IsVerified,
	}
	report.Consistent = report.StoredScore == report.LedgerScore &&
		report.StoredTier == report.ExpectedTier &&
		report.Verified == uc.economy.IsVerified(expected)

	span.SetAttributes(attribute.Bool("Consistent", report.Consistent))
	return report, nil
}
