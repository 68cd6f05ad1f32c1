package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/trustledger/internal/domain"
	"github.com/totegamma/trustledger/internal/infra/database"
	"github.com/totegamma/trustledger/internal/infra/database/models"
)

type EntityRepository struct {
	db *gorm.DB
}

func NewEntityRepository(db *gorm.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

func (r *EntityRepository) Create(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	model := models.Entity{
		ID:         entity.ID,
		TrustScore: entity.TrustScore,
		Tier:       int16(entity.Tier),
		IsVerified: entity.IsVerified,
	}

	err := r.db.WithContext(ctx).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.Entity{}, fmt.Errorf("%w: %w", domain.ErrEntityExists, err)
	}
	if err != nil {
		return domain.Entity{}, database.TranslateError(err)
	}

	// CDate is filled by the database default
	if err := r.db.WithContext(ctx).Take(&model, "id = ?", entity.ID).Error; err != nil {
		return domain.Entity{}, database.TranslateError(err)
	}
	return toDomainEntity(model), nil
}

func (r *EntityRepository) Get(ctx context.Context, id string) (domain.Entity, error) {
	var model models.Entity
	err := r.db.WithContext(ctx).Take(&model, "id = ?", id).Error
	if err != nil {
		return domain.Entity{}, database.TranslateError(err)
	}
	return toDomainEntity(model), nil
}

// AddScore increments in a single UPDATE so that concurrent increments on
// the same row serialize on its row lock instead of racing.
func (r *EntityRepository) AddScore(ctx context.Context, id string, delta int) (domain.Entity, error) {
	var model models.Entity
	result := r.db.WithContext(ctx).
		Model(&model).
		Clauses(clause.Returning{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"trust_score": gorm.Expr("trust_score + ?", delta),
			"m_date":      time.Now(),
		})
	if result.Error != nil {
		return domain.Entity{}, database.TranslateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.Entity{}, domain.ErrEntityNotFound
	}
	return toDomainEntity(model), nil
}

// Promote uses GREATEST and OR so the row can only move up, whatever tier
// the caller passes.
func (r *EntityRepository) Promote(ctx context.Context, id string, tier domain.Tier, verified bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.Entity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"tier":        gorm.Expr("GREATEST(tier, ?)", int16(tier)),
			"is_verified": gorm.Expr("is_verified OR ?", verified),
			"m_date":      time.Now(),
		})
	if result.Error != nil {
		return database.TranslateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return domain.ErrEntityNotFound
	}
	return nil
}

func toDomainEntity(model models.Entity) domain.Entity {
	return domain.Entity{
		ID:         model.ID,
		TrustScore: model.TrustScore,
		Tier:       domain.Tier(model.Tier),
		IsVerified: model.IsVerified,
		CDate:      model.CDate,
		MDate:      model.MDate,
	}
}
