package payments

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
)

// Repository stores PaymentIntentRecords. Rows are written once and never updated.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, record *models.PaymentIntentRecord) error {
	if record == nil {
		return errors.New("record is required")
	}
	return r.db.WithContext(ctx).Create(record).Error
}

// FindByHandle returns nil without error when no record exists.
func (r *Repository) FindByHandle(ctx context.Context, handle string) (*models.PaymentIntentRecord, error) {
	return r.findOne(ctx, "external_handle = ?", handle)
}

func (r *Repository) FindByCheckoutID(ctx context.Context, checkoutID uuid.UUID) (*models.PaymentIntentRecord, error) {
	return r.findOne(ctx, "checkout_id = ?", checkoutID)
}

func (r *Repository) findOne(ctx context.Context, query string, arg any) (*models.PaymentIntentRecord, error) {
	var record models.PaymentIntentRecord
	err := r.db.WithContext(ctx).Where(query, arg).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
