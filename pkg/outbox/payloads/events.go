package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// LineRef summarizes one snapshot line inside an event.
type LineRef struct {
	SnapshotID int64          `json:"snapshot_id"`
	ItemType   enums.ItemType `json:"item_type"`
	ItemID     int64          `json:"item_id"`
	Quantity   int            `json:"quantity"`
}

// LineRefs summarizes snapshot lines in order.
func LineRefs(lines []models.SnapshotLine) []LineRef {
	refs := make([]LineRef, len(lines))
	for i, line := range lines {
		refs[i] = LineRef{
			SnapshotID: line.ID,
			ItemType:   line.ItemType,
			ItemID:     line.ItemID,
			Quantity:   line.Quantity,
		}
	}
	return refs
}

// CheckoutInitiatedEvent is emitted when units are reserved and lines captured.
type CheckoutInitiatedEvent struct {
	CheckoutID  uuid.UUID      `json:"checkout_id"`
	UserID      int64          `json:"user_id"`
	EventID     int64          `json:"event_id"`
	Currency    enums.Currency `json:"currency"`
	AmountMinor int64          `json:"amount_minor"`
	Lines       []LineRef      `json:"lines"`
}

// CheckoutExpiredEvent reports pending lines released by the stale checkout sweep.
type CheckoutExpiredEvent struct {
	CheckoutID     uuid.UUID `json:"checkout_id"`
	UserID         int64     `json:"user_id"`
	EventID        int64     `json:"event_id"`
	ExternalHandle string    `json:"external_handle,omitempty"`
	Lines          []LineRef `json:"lines"`
	ExpiredAt      time.Time `json:"expired_at"`
}

// PaymentConfirmedEvent is emitted once per processor handle that succeeded.
type PaymentConfirmedEvent struct {
	ConfirmedPaymentID uuid.UUID                    `json:"confirmed_payment_id"`
	CheckoutID         uuid.UUID                    `json:"checkout_id"`
	ExternalHandle     string                       `json:"external_handle"`
	UserID             int64                        `json:"user_id"`
	EventID            int64                        `json:"event_id"`
	AmountMinor        int64                        `json:"amount_minor"`
	Currency           enums.Currency               `json:"currency"`
	Status             enums.ConfirmedPaymentStatus `json:"status"`
	SnapshotIDs        []int64                      `json:"snapshot_ids"`
}

// PaymentFailedEvent reports lines moved to failed after a processor failure.
type PaymentFailedEvent struct {
	CheckoutID     uuid.UUID `json:"checkout_id"`
	ExternalHandle string    `json:"external_handle"`
	UserID         int64     `json:"user_id"`
	EventID        int64     `json:"event_id"`
	FailureCode    string    `json:"failure_code,omitempty"`
	FailureMessage string    `json:"failure_message,omitempty"`
	Lines          []LineRef `json:"lines"`
}

// PaymentOrphanedEvent flags a successful charge that maps to no snapshot lines.
type PaymentOrphanedEvent struct {
	ExternalHandle string         `json:"external_handle"`
	AmountMinor    int64          `json:"amount_minor"`
	Currency       enums.Currency `json:"currency,omitempty"`
	Reason         string         `json:"reason"`
}

// FulfillmentFailedEvent surfaces a paid but unfulfilled payment to operators.
type FulfillmentFailedEvent struct {
	ConfirmedPaymentID uuid.UUID `json:"confirmed_payment_id"`
	ExternalHandle     string    `json:"external_handle"`
	UserID             int64     `json:"user_id"`
	EventID            int64     `json:"event_id"`
	Error              string    `json:"error"`
}
