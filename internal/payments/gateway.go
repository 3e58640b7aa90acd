package payments

import (
	"context"

	"github.com/angelmondragon/eventpass-backend/pkg/enums"
)

// Processor side intent states this service cares about.
const (
	IntentStatusSucceeded  = "succeeded"
	IntentStatusProcessing = "processing"
	IntentStatusCanceled   = "canceled"
)

// IntentRequest is what the processor needs to open a payment.
type IntentRequest struct {
	AmountMinor    int64
	Currency       enums.Currency
	Metadata       map[string]string
	IdempotencyKey string
	Description    string
}

// Intent is the processor's answer: a handle for reconciliation and a secret
// the buyer's client uses to confirm the payment directly with the processor.
type Intent struct {
	Handle       string
	ClientSecret string
	Status       string
}

// CancelOutcome reports what happened to an intent we tried to cancel. When
// the intent moved on instead, AmountReceived and Currency are what the
// processor reports for it.
type CancelOutcome struct {
	Handle         string
	Status         string
	Cancelled      bool
	AmountReceived int64
	Currency       string
}

// Succeeded reports whether the processor already took the money.
func (o CancelOutcome) Succeeded() bool {
	return !o.Cancelled && o.Status == IntentStatusSucceeded
}

// MayStillCharge reports whether money can still arrive for the intent, in
// which case its lines belong to the webhook and must not be expired.
func (o CancelOutcome) MayStillCharge() bool {
	return !o.Cancelled && (o.Status == IntentStatusSucceeded || o.Status == IntentStatusProcessing)
}

// Gateway is the boundary to the external payment processor.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	CancelIntent(ctx context.Context, handle string) (*CancelOutcome, error)
}
