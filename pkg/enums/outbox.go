package enums

// OutboxAggregateType is the aggregate_type_enum column.
type OutboxAggregateType string

const (
	AggregateCheckout         OutboxAggregateType = "checkout"
	AggregateConfirmedPayment OutboxAggregateType = "confirmed_payment"
)

var aggregateTypes = members[OutboxAggregateType]{AggregateCheckout, AggregateConfirmedPayment}

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return aggregateTypes.parse("aggregate type", value)
}

// OutboxEventType is the event_type_enum column. It doubles as the Pub/Sub
// event_type attribute consumers route on.
type OutboxEventType string

const (
	EventCheckoutInitiated OutboxEventType = "checkout_initiated"
	EventCheckoutExpired   OutboxEventType = "checkout_expired"
	EventPaymentConfirmed  OutboxEventType = "payment_confirmed"
	EventPaymentFailed     OutboxEventType = "payment_failed"
	EventPaymentOrphaned   OutboxEventType = "payment_orphaned"
	EventFulfillmentFailed OutboxEventType = "fulfillment_failed"
)

var eventTypes = members[OutboxEventType]{
	EventCheckoutInitiated,
	EventCheckoutExpired,
	EventPaymentConfirmed,
	EventPaymentFailed,
	EventPaymentOrphaned,
	EventFulfillmentFailed,
}

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return eventTypes.parse("event type", value)
}

// OutboxDLQErrorReason records why the publisher stopped retrying a row.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

var dlqReasons = members[OutboxDLQErrorReason]{OutboxDLQReasonMaxAttempts, OutboxDLQReasonNonRetryable}

func (r OutboxDLQErrorReason) IsValid() bool { return dlqReasons.has(r) }
