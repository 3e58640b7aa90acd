package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// ConfirmedPaymentHandleConstraint guards against a second row for the same processor handle.
const ConfirmedPaymentHandleConstraint = "confirmed_payments_external_handle_key"

// ConfirmedPayment exists once per processor handle whose success was reconciled.
type ConfirmedPayment struct {
	ID               uuid.UUID                    `gorm:"column:id;type:uuid;primaryKey"`
	ExternalHandle   string                       `gorm:"column:external_handle;not null;uniqueIndex:confirmed_payments_external_handle_key"`
	CheckoutID       uuid.UUID                    `gorm:"column:checkout_id;type:uuid;not null"`
	UserID           int64                        `gorm:"column:user_id;not null"`
	EventID          int64                        `gorm:"column:event_id;not null"`
	AmountMinor      int64                        `gorm:"column:amount_minor;not null"`
	Currency         enums.Currency               `gorm:"column:currency;not null"`
	Status           enums.ConfirmedPaymentStatus `gorm:"column:status;type:confirmed_payment_status_enum;not null;default:'confirmed'"`
	FulfillmentRef   *string                      `gorm:"column:fulfillment_ref"`
	FulfillmentError *string                      `gorm:"column:fulfillment_error"`
	FulfilledAt      *time.Time                   `gorm:"column:fulfilled_at"`
	CreatedAt        time.Time                    `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                    `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *ConfirmedPayment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
