package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// PaymentIntentRecord links a processor payment handle to the snapshot lines it pays for.
type PaymentIntentRecord struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CheckoutID       uuid.UUID       `gorm:"column:checkout_id;type:uuid;not null;uniqueIndex:payment_intent_records_checkout_id_key"`
	ExternalHandle   string          `gorm:"column:external_handle;not null;uniqueIndex:payment_intent_records_external_handle_key"`
	UserID           int64           `gorm:"column:user_id;not null"`
	EventID          int64           `gorm:"column:event_id;not null"`
	CorrelationToken string          `gorm:"column:correlation_token;type:text;not null"`
	Currency         enums.Currency  `gorm:"column:currency;not null"`
	AmountMinor      int64           `gorm:"column:amount_minor;not null"`
	TaxTotal         decimal.Decimal `gorm:"column:tax_total;type:numeric(12,2);not null"`
	DiscountAmount   decimal.Decimal `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	SubTotal         decimal.Decimal `gorm:"column:sub_total;type:numeric(12,2);not null"`
	GrandTotal       decimal.Decimal `gorm:"column:grand_total;type:numeric(12,2);not null"`
	DiscountCode     *string         `gorm:"column:discount_code"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (r *PaymentIntentRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
