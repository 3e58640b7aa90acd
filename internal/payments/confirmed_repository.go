package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

const maxFulfillmentErrorLen = 1024

// ConfirmedRepository stores ConfirmedPayments. The unique external handle is
// what makes a replayed success a no-op.
type ConfirmedRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewConfirmedRepository(db *gorm.DB) *ConfirmedRepository {
	return &ConfirmedRepository{db: db, now: time.Now}
}

func (r *ConfirmedRepository) WithTx(tx *gorm.DB) *ConfirmedRepository {
	if tx == nil {
		return r
	}
	return &ConfirmedRepository{db: tx, now: r.now}
}

// InsertIfAbsent reports false when a row for the same handle already exists.
func (r *ConfirmedRepository) InsertIfAbsent(ctx context.Context, payment *models.ConfirmedPayment) (bool, error) {
	if payment == nil {
		return false, errors.New("confirmed payment is required")
	}
	if payment.ExternalHandle == "" {
		return false, errors.New("external handle is required")
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_handle"}},
			DoNothing: true,
		}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *ConfirmedRepository) FindByHandle(ctx context.Context, handle string) (*models.ConfirmedPayment, error) {
	var payment models.ConfirmedPayment
	err := r.db.WithContext(ctx).Where("external_handle = ?", handle).Take(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *ConfirmedRepository) SetStatus(ctx context.Context, id uuid.UUID, status enums.ConfirmedPaymentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.ConfirmedPayment{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *ConfirmedRepository) MarkFulfilled(ctx context.Context, id uuid.UUID, reference string) error {
	return r.db.WithContext(ctx).
		Model(&models.ConfirmedPayment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            enums.ConfirmedPaymentStatusFulfilled,
			"fulfillment_ref":   reference,
			"fulfillment_error": nil,
			"fulfilled_at":      r.now().UTC(),
		}).Error
}

func (r *ConfirmedRepository) MarkFulfillmentFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	if len(msg) > maxFulfillmentErrorLen {
		msg = msg[:maxFulfillmentErrorLen]
	}
	return r.db.WithContext(ctx).
		Model(&models.ConfirmedPayment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            enums.ConfirmedPaymentStatusFulfillmentFailed,
			"fulfillment_error": msg,
		}).Error
}

// ListUnfulfilled returns payments stuck outside fulfilled that were created before cutoff.
func (r *ConfirmedRepository) ListUnfulfilled(ctx context.Context, cutoff time.Time, limit int) ([]models.ConfirmedPayment, error) {
	if limit <= 0 {
		limit = 100
	}
	var payments []models.ConfirmedPayment
	err := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", enums.UnfulfilledConfirmedPaymentStatuses, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&payments).Error
	return payments, err
}
