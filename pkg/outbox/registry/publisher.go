// Package registry maps outbox event types to their topic and payload schema.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox/payloads"
)

// PermanentError marks a row that can never be published as stored.
// The publisher dead-letters it instead of retrying.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	if e.Err == nil {
		return "permanent publish failure"
	}
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	return &PermanentError{Err: err}
}

func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}

type decodeFunc func(json.RawMessage) (any, error)

func decodeAs[T any]() decodeFunc {
	return func(raw json.RawMessage) (any, error) {
		v := new(T)
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// EventDescriptor is the publishing contract of one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        decodeFunc
}

// ResolvedEvent is a validated outbox row with its typed payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

var catalog = []EventDescriptor{
	{EventType: enums.EventCheckoutInitiated, AggregateType: enums.AggregateCheckout, decode: decodeAs[payloads.CheckoutInitiatedEvent]()},
	{EventType: enums.EventCheckoutExpired, AggregateType: enums.AggregateCheckout, decode: decodeAs[payloads.CheckoutExpiredEvent]()},
	{EventType: enums.EventPaymentFailed, AggregateType: enums.AggregateCheckout, decode: decodeAs[payloads.PaymentFailedEvent]()},
	{EventType: enums.EventPaymentOrphaned, AggregateType: enums.AggregateCheckout, decode: decodeAs[payloads.PaymentOrphanedEvent]()},
	{EventType: enums.EventPaymentConfirmed, AggregateType: enums.AggregateConfirmedPayment, decode: decodeAs[payloads.PaymentConfirmedEvent]()},
	{EventType: enums.EventFulfillmentFailed, AggregateType: enums.AggregateConfirmedPayment, decode: decodeAs[payloads.FulfillmentFailedEvent]()},
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every checkout and payment event to the domain
// topic. The fulfillment topic is owned by the fulfillment trigger.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("registry: domain topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for _, desc := range catalog {
		desc.Topic = cfg.DomainTopic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure here is permanent: retrying the same bytes cannot succeed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, Permanent(fmt.Errorf("unsupported event type %s", event.EventType))
	case desc.AggregateType != event.AggregateType:
		return nil, Permanent(fmt.Errorf("%s belongs to %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, Permanent(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s envelope has no data", event.EventType))
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
