package usecase

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/totegamma/trustledger/internal/domain"
)

type EntityUsecase struct {
	store  Store
	cache  EntityCache
	logger zerolog.Logger
}

func NewEntityUsecase(store Store, cache EntityCache, logger zerolog.Logger) *EntityUsecase {
	if cache == nil {
		cache = nopCache{}
	}
	return &EntityUsecase{store: store, cache: cache, logger: logger}
}

// Register brings a new entity into the ledger at its initial standing.
func (uc *EntityUsecase) Register(ctx context.Context, id string) (domain.Entity, error) {
	ctx, span := tracer.Start(ctx, "Entity.Usecase.Register")
	defer span.End()

	id = domain.NormalizeID(id)
	if id == "" {
		return domain.Entity{}, errors.Wrap(domain.ErrInvalidArgument, "entity id is required")
	}
	span.SetAttributes(attribute.String("EntityId", id))

	entity, err := uc.store.Entities().Create(ctx, domain.NewEntity(id))
	if err != nil {
		span.RecordError(err)
		return domain.Entity{}, err
	}

	uc.logger.Info().Str("entity", id).Msg("entity registered")
	return entity, nil
}

// Get is the read accessor for display. It has no side effects beyond
// warming the cache.
func (uc *EntityUsecase) Get(ctx context.Context, id string) (domain.Entity, error) {
	ctx, span := tracer.Start(ctx, "Entity.Usecase.Get")
	defer span.End()

	id = domain.NormalizeID(id)

	if cached, ok := uc.cache.Get(ctx, id); ok {
		span.SetAttributes(attribute.Bool("CacheHit", true))
		return cached, nil
	}

	entity, err := uc.store.Entities().Get(ctx, id)
	if err != nil {
		span.RecordError(err)
		return domain.Entity{}, err
	}

	if err := uc.cache.Set(ctx, entity); err != nil {
		uc.logger.Warn().Err(err).Str("entity", id).Msg("failed to cache entity")
	}
	return entity, nil
}
