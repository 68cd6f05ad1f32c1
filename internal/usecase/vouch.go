package usecase

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/trustledger/internal/domain"
)

var tracer = otel.Tracer("usecase")

const (
	defaultListLimit = 5
	maxListLimit     = 100
)

// RetryPolicy bounds the automatic retries of a vouch commit that lost a
// transaction conflict.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     500 * time.Millisecond,
	}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialBackoff
	exp.MaxInterval = p.MaxBackoff
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := p.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)
}

type VouchOption func(*VouchUsecase)

func WithCache(cache EntityCache) VouchOption {
	return func(uc *VouchUsecase) {
		if cache != nil {
			uc.cache = cache
		}
	}
}

func WithPublisher(publisher EventPublisher) VouchOption {
	return func(uc *VouchUsecase) {
		if publisher != nil {
			uc.publisher = publisher
		}
	}
}

func WithRetryPolicy(policy RetryPolicy) VouchOption {
	return func(uc *VouchUsecase) {
		uc.retry = policy
	}
}

func WithLogger(logger zerolog.Logger) VouchOption {
	return func(uc *VouchUsecase) {
		uc.logger = logger
	}
}

// VouchUsecase is the scoring engine. It is the only writer of trust
// scores and tiers.
type VouchUsecase struct {
	store     Store
	economy   domain.Economy
	cache     EntityCache
	publisher EventPublisher
	retry     RetryPolicy
	logger    zerolog.Logger
}

func NewVouchUsecase(store Store, economy domain.Economy, opts ...VouchOption) *VouchUsecase {
	uc := &VouchUsecase{
		store:     store,
		economy:   economy,
		cache:     nopCache{},
		publisher: nopPublisher{},
		retry:     DefaultRetryPolicy(),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// Cast records a vouch from voucherID for receiverID and returns the
// receiver's standing after the commit. The caller must have authenticated
// voucherID already.
func (uc *VouchUsecase) Cast(ctx context.Context, voucherID, receiverID string) (domain.VouchResult, error) {
	ctx, span := tracer.Start(ctx, "Vouch.Usecase.Cast")
	defer span.End()

	voucherID = domain.NormalizeID(voucherID)
	receiverID = domain.NormalizeID(receiverID)
	span.SetAttributes(
		attribute.String("VoucherId", voucherID),
		attribute.String("ReceiverId", receiverID),
	)

	if voucherID == "" || receiverID == "" {
		return domain.VouchResult{}, errors.Wrap(domain.ErrInvalidArgument, "voucher and receiver ids are required")
	}
	if voucherID == receiverID {
		uc.logger.Debug().Str("voucher", voucherID).Msg("rejected self vouch")
		return domain.VouchResult{}, domain.ErrSelfVouch
	}

	// The weight is a snapshot of the voucher's tier right now. Later changes
	// to the voucher never reach back into this vouch.
	voucher, err := uc.store.Entities().Get(ctx, voucherID)
	if err != nil {
		span.RecordError(err)
		return domain.VouchResult{}, errors.Wrap(err, "voucher")
	}
	weight := uc.economy.ResolveWeight(voucher.Tier)
	span.SetAttributes(attribute.Int("Weight", weight))

	var (
		result   domain.VouchResult
		receiver domain.Entity
	)
	attempt := 0
	operation := func() error {
		attempt++
		var err error
		result, receiver, err = uc.commit(ctx, voucherID, receiverID, weight)
		if err == nil {
			return nil
		}
		if domain.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		uc.logger.Warn().
			Err(err).
			Str("voucher", voucherID).
			Str("receiver", receiverID).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("vouch commit conflicted, retrying")
	}

	if err := backoff.RetryNotify(operation, uc.retry.backOff(ctx), notify); err != nil {
		span.RecordError(err)
		if errors.Is(err, domain.ErrDuplicateVouch) {
			uc.logger.Debug().Str("voucher", voucherID).Str("receiver", receiverID).Msg("rejected duplicate vouch")
		}
		return domain.VouchResult{}, err
	}

	uc.refreshCache(ctx, receiver)

	uc.logger.Info().
		Str("voucher", voucherID).
		Str("receiver", receiverID).
		Int("weight", weight).
		Int64("score", result.Score).
		Stringer("tier", result.Tier).
		Msg("vouch committed")

	uc.publish(ctx, domain.EventVouchCommitted, result)
	if result.Promoted {
		uc.logger.Info().Str("entity", receiverID).Stringer("tier", result.Tier).Msg("tier promoted")
		uc.publish(ctx, domain.EventTierPromoted, result)
	}

	span.SetAttributes(
		attribute.Int64("Score", result.Score),
		attribute.String("Tier", result.Tier.String()),
	)
	return result, nil
}

// refreshCache stores the committed standing. Writing it, rather than only
// evicting, keeps a reader that loaded the row before the commit from
// caching the older standing afterwards.
func (uc *VouchUsecase) refreshCache(ctx context.Context, receiver domain.Entity) {
	err := uc.cache.Set(ctx, receiver)
	if err == nil {
		return
	}
	uc.logger.Warn().Err(err).Str("entity", receiver.ID).Msg("failed to cache committed entity")
	if err := uc.cache.Invalidate(ctx, receiver.ID); err != nil {
		uc.logger.Warn().Err(err).Str("entity", receiver.ID).Msg("failed to invalidate cached entity")
	}
}

// commit runs the ledger append, the score increment and the tier promotion
// as one transaction. It returns the receiver as committed.
func (uc *VouchUsecase) commit(ctx context.Context, voucherID, receiverID string, weight int) (domain.VouchResult, domain.Entity, error) {
	var (
		result  domain.VouchResult
		updated domain.Entity
	)
	err := uc.store.Transaction(ctx, func(tx Store) error {
		vouch, err := tx.Vouches().Record(ctx, voucherID, receiverID, weight)
		if err != nil {
			return err
		}

		receiver, err := tx.Entities().AddScore(ctx, receiverID, weight)
		if err != nil {
			return errors.Wrap(err, "receiver")
		}

		tier := uc.economy.Promote(receiver.Tier, receiver.TrustScore)
		verified := receiver.IsVerified || uc.economy.IsVerified(tier)
		promoted := tier != receiver.Tier
		if promoted || verified != receiver.IsVerified {
			if err := tx.Entities().Promote(ctx, receiverID, tier, verified); err != nil {
				return err
			}
		}

		updated = receiver
		updated.Tier = tier
		updated.IsVerified = verified
		result = domain.VouchResult{
			Vouch:      vouch,
			Score:      receiver.TrustScore,
			Tier:       tier,
			IsVerified: verified,
			Promoted:   promoted,
		}
		return nil
	})
	return result, updated, err
}

func (uc *VouchUsecase) publish(ctx context.Context, eventType string, result domain.VouchResult) {
	event := domain.VouchEvent{
		Type:       eventType,
		EntityID:   result.Vouch.ReceiverID,
		Vouch:      result.Vouch,
		Score:      result.Score,
		Tier:       result.Tier,
		IsVerified: result.IsVerified,
		Timestamp:  time.Now().UTC(),
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.logger.Warn().Err(err).Str("type", eventType).Str("entity", event.EntityID).Msg("failed to publish vouch event")
	}
}

func (uc *VouchUsecase) HasVouched(ctx context.Context, voucherID, receiverID string) (bool, error) {
	return uc.store.Vouches().HasVouched(ctx, domain.NormalizeID(voucherID), domain.NormalizeID(receiverID))
}

// ListReceived returns the newest vouches received by id.
func (uc *VouchUsecase) ListReceived(ctx context.Context, id string, limit int) ([]domain.Vouch, error) {
	ctx, span := tracer.Start(ctx, "Vouch.Usecase.ListReceived")
	defer span.End()

	id = domain.NormalizeID(id)
	if _, err := uc.store.Entities().Get(ctx, id); err != nil {
		return nil, err
	}
	return uc.store.Vouches().ListReceived(ctx, id, clampLimit(limit))
}

// ListGiven returns the newest vouches cast by id.
func (uc *VouchUsecase) ListGiven(ctx context.Context, id string, limit int) ([]domain.Vouch, error) {
	ctx, span := tracer.Start(ctx, "Vouch.Usecase.ListGiven")
	defer span.End()

	id = domain.NormalizeID(id)
	if _, err := uc.store.Entities().Get(ctx, id); err != nil {
		return nil, err
	}
	return uc.store.Vouches().ListGiven(ctx, id, clampLimit(limit))
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
