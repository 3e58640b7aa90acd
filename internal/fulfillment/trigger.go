package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

const (
	MessageType    = "fulfillment.requested"
	messageVersion = 1

	defaultPublishTimeout = 10 * time.Second
)

// Order is the downstream acknowledgement of a fulfillment request.
type Order struct {
	Reference   string
	RequestedAt time.Time
}

// Trigger materializes the order and entry credentials for a confirmed payment.
// Callers guarantee at most one call per ConfirmedPayment.
type Trigger interface {
	Fulfil(ctx context.Context, payment models.ConfirmedPayment, lines []models.SnapshotLine, metadata map[string]string) (*Order, error)
}

type Line struct {
	SnapshotID int64          `json:"snapshot_id"`
	ItemType   enums.ItemType `json:"item_type"`
	ItemID     int64          `json:"item_id"`
	ItemName   string         `json:"item_name"`
	Quantity   int            `json:"quantity"`
	UnitPrice  string         `json:"unit_price"`
}

// Request is the message body on the fulfillment topic.
type Request struct {
	Version            int               `json:"version"`
	ConfirmedPaymentID uuid.UUID         `json:"confirmed_payment_id"`
	CheckoutID         uuid.UUID         `json:"checkout_id"`
	ExternalHandle     string            `json:"external_handle"`
	UserID             int64             `json:"user_id"`
	EventID            int64             `json:"event_id"`
	AmountMinor        int64             `json:"amount_minor"`
	Currency           enums.Currency    `json:"currency"`
	Lines              []Line            `json:"lines"`
	Metadata           map[string]string `json:"metadata,omitempty"`
	RequestedAt        time.Time         `json:"requested_at"`
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type publisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func (p gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return p.pub.Publish(ctx, msg)
}

// PubSubTrigger hands the order off to the fulfillment service over Pub/Sub and
// waits for the server ack. The message id is the order reference.
type PubSubTrigger struct {
	pub     publisher
	logg    *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

func NewPubSubTrigger(pub *gcppubsub.Publisher, logg *logger.Logger) (*PubSubTrigger, error) {
	if pub == nil {
		return nil, errors.New("fulfillment publisher is required")
	}
	return newPubSubTrigger(gcpPublisher{pub: pub}, logg), nil
}

func newPubSubTrigger(pub publisher, logg *logger.Logger) *PubSubTrigger {
	return &PubSubTrigger{pub: pub, logg: logg, timeout: defaultPublishTimeout, now: time.Now}
}

func (t *PubSubTrigger) Fulfil(ctx context.Context, payment models.ConfirmedPayment, lines []models.SnapshotLine, metadata map[string]string) (*Order, error) {
	if payment.ID == uuid.Nil {
		return nil, errors.New("confirmed payment id is required")
	}
	if len(lines) == 0 {
		return nil, errors.New("no paid lines to fulfil")
	}

	requestedAt := t.now().UTC()
	body := Request{
		Version:            messageVersion,
		ConfirmedPaymentID: payment.ID,
		CheckoutID:         payment.CheckoutID,
		ExternalHandle:     payment.ExternalHandle,
		UserID:             payment.UserID,
		EventID:            payment.EventID,
		AmountMinor:        payment.AmountMinor,
		Currency:           payment.Currency,
		Lines:              make([]Line, len(lines)),
		Metadata:           metadata,
		RequestedAt:        requestedAt,
	}
	for i, line := range lines {
		body.Lines[i] = Line{
			SnapshotID: line.ID,
			ItemType:   line.ItemType,
			ItemID:     line.ItemID,
			ItemName:   line.ItemName,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice.StringFixed(2),
		}
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode fulfillment request: %w", err)
	}

	msg := &gcppubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"message_type":         MessageType,
			"confirmed_payment_id": payment.ID.String(),
			"external_handle":      payment.ExternalHandle,
			"event_id":             fmt.Sprintf("%d", payment.EventID),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	result := t.pub.Publish(publishCtx, msg)
	if result == nil {
		return nil, errors.New("fulfillment publisher returned no result")
	}
	id, err := result.Get(publishCtx)
	if err != nil {
		return nil, fmt.Errorf("publish fulfillment request: %w", err)
	}

	if t.logg != nil {
		logCtx := t.logg.WithPaymentHandle(ctx, payment.ExternalHandle)
		t.logg.Info(t.logg.WithField(logCtx, "message_id", id), "fulfillment requested")
	}
	return &Order{Reference: id, RequestedAt: requestedAt}, nil
}
