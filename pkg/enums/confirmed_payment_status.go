package enums

// ConfirmedPaymentStatus tracks what happened after money was confirmed taken.
type ConfirmedPaymentStatus string

const (
	// ConfirmedPaymentStatusConfirmed is the state between commit and the fulfillment call.
	ConfirmedPaymentStatusConfirmed         ConfirmedPaymentStatus = "confirmed"
	ConfirmedPaymentStatusFulfilled         ConfirmedPaymentStatus = "fulfilled"
	ConfirmedPaymentStatusFulfillmentFailed ConfirmedPaymentStatus = "fulfillment_failed"
	// ConfirmedPaymentStatusNeedsReview marks a payment whose lines were no longer pending.
	ConfirmedPaymentStatusNeedsReview ConfirmedPaymentStatus = "needs_review"
)

var confirmedPaymentStatuses = members[ConfirmedPaymentStatus]{
	ConfirmedPaymentStatusConfirmed,
	ConfirmedPaymentStatusFulfilled,
	ConfirmedPaymentStatusFulfillmentFailed,
	ConfirmedPaymentStatusNeedsReview,
}

// UnfulfilledConfirmedPaymentStatuses are the states an operator must eventually clear.
var UnfulfilledConfirmedPaymentStatuses = []ConfirmedPaymentStatus{
	ConfirmedPaymentStatusConfirmed,
	ConfirmedPaymentStatusFulfillmentFailed,
	ConfirmedPaymentStatusNeedsReview,
}

func (s ConfirmedPaymentStatus) String() string { return string(s) }

func (s ConfirmedPaymentStatus) IsValid() bool { return confirmedPaymentStatuses.has(s) }

func ParseConfirmedPaymentStatus(value string) (ConfirmedPaymentStatus, error) {
	return confirmedPaymentStatuses.parse("confirmed payment status", value)
}
