package main

import (
	"context"
	"errors"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox/registry"
)

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func(topic string) publisher

// buildMessage publishes the stored envelope as is. Consumers route on the
// attributes without decoding the body, and the aggregate id is the ordering
// key so one checkout's events arrive in write order.
func buildMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"event_version":  strconv.Itoa(resolved.Envelope.Version),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

// orderedPublisher wraps a Pub/Sub publisher with ordering enabled. After a
// failed publish Pub/Sub pauses the ordering key; the key is resumed so the
// retry on the next poll can go through.
type orderedPublisher struct {
	pub *gcppubsub.Publisher
}

func newOrderedPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return orderedPublisher{pub: p}
}

func (o orderedPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return orderedResult{pub: o.pub, res: o.pub.Publish(ctx, msg), key: msg.OrderingKey}
}

type orderedResult struct {
	pub *gcppubsub.Publisher
	res *gcppubsub.PublishResult
	key string
}

func (r orderedResult) Get(ctx context.Context) (string, error) {
	if r.res == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.res.Get(ctx)
	if err != nil && r.key != "" {
		r.pub.ResumePublish(r.key)
	}
	return id, err
}
