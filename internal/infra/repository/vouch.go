package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/trustledger/internal/domain"
	"github.com/totegamma/trustledger/internal/infra/database"
	"github.com/totegamma/trustledger/internal/infra/database/models"
)

type VouchRepository struct {
	db *gorm.DB
}

func NewVouchRepository(db *gorm.DB) *VouchRepository {
	return &VouchRepository{db: db}
}

// Record inserts the vouch row. There is no read before the insert: the
// unique index on (voucher_id, receiver_id) rejects the second of two
// concurrent inserts for the same pair.
func (r *VouchRepository) Record(ctx context.Context, voucherID, receiverID string, weight int) (domain.Vouch, error) {
	if voucherID == receiverID {
		return domain.Vouch{}, domain.ErrSelfVouch
	}
	if weight < 1 {
		return domain.Vouch{}, fmt.Errorf("%w: weight must be at least 1", domain.ErrInvalidArgument)
	}

	model := models.Vouch{
		ID:         uuid.NewString(),
		VoucherID:  voucherID,
		ReceiverID: receiverID,
		Weight:     weight,
		CDate:      time.Now().UTC(),
	}

	err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return domain.Vouch{}, fmt.Errorf("%w: %w", domain.ErrDuplicateVouch, err)
	}
	if err != nil {
		return domain.Vouch{}, database.TranslateError(err)
	}
	return toDomainVouch(model), nil
}

func (r *VouchRepository) HasVouched(ctx context.Context, voucherID, receiverID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Vouch{}).
		Where("voucher_id = ? AND receiver_id = ?", voucherID, receiverID).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, database.TranslateError(err)
	}
	return count > 0, nil
}

func (r *VouchRepository) ListReceived(ctx context.Context, receiverID string, limit int) ([]domain.Vouch, error) {
	return r.list(ctx, "receiver_id = ?", receiverID, limit)
}

func (r *VouchRepository) ListGiven(ctx context.Context, voucherID string, limit int) ([]domain.Vouch, error) {
	return r.list(ctx, "voucher_id = ?", voucherID, limit)
}

func (r *VouchRepository) list(ctx context.Context, where string, id string, limit int) ([]domain.Vouch, error) {
	var rows []models.Vouch
	query := r.db.WithContext(ctx).
		Where(where, id).
		Order("c_date DESC").
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, database.TranslateError(err)
	}

	vouches := make([]domain.Vouch, 0, len(rows))
	for _, row := range rows {
		vouches = append(vouches, toDomainVouch(row))
	}
	return vouches, nil
}

func (r *VouchRepository) SumReceived(ctx context.Context, receiverID string) (int64, int64, error) {
	var agg struct {
		Total int64
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Vouch{}).
		Select("COALESCE(SUM(weight), 0) AS total, COUNT(*) AS count").
		Where("receiver_id = ?", receiverID).
		Scan(&agg).Error
	if err != nil {
		return 0, 0, database.TranslateError(err)
	}
	return agg.Total, agg.Count, nil
}

func toDomainVouch(model models.Vouch) domain.Vouch {
	return domain.Vouch{
		ID:         model.ID,
		VoucherID:  model.VoucherID,
		ReceiverID: model.ReceiverID,
		Weight:     model.Weight,
		Timestamp:  model.CDate,
	}
}
