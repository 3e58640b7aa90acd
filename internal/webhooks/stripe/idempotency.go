package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/eventpass-backend/pkg/redis"
)

// DeliveryScope namespaces processor event ids in the idempotency keyspace.
const DeliveryScope = "stripe-webhook"

// maxInFlightTTL bounds how long a crashed handler can keep a delivery marked
// as in flight before the processor's retry is let through again.
const maxInFlightTTL = 2 * time.Minute

const (
	markerInFlight = "processing"
	markerDone     = "done"
)

// DeliveryState is what the guard knows about one processor event id.
type DeliveryState int

const (
	// DeliveryNew means the caller now owns the delivery and must Complete or Release it.
	DeliveryNew DeliveryState = iota
	// DeliveryInFlight means another delivery of the same event is being handled.
	DeliveryInFlight
	// DeliveryDone means an earlier delivery was handled successfully.
	DeliveryDone
)

var errEventIDRequired = errors.New("stripewebhook: event id is required")

// DeliveryGuard remembers processor event ids so an exact redelivery is
// acknowledged without touching the database. An event is only remembered as
// done after it was handled; while it is being handled a redelivery is told
// to come back later. It is a fast path only: the unique handle on
// confirmed_payments is what makes replays safe.
type DeliveryGuard struct {
	store       redis.IdempotencyStore
	ttl         time.Duration
	inFlightTTL time.Duration
	now         func() time.Time
}

func NewDeliveryGuard(store redis.IdempotencyStore, ttl time.Duration) (*DeliveryGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("stripewebhook: idempotency store is required")
	case ttl <= 0:
		return nil, fmt.Errorf("stripewebhook: delivery ttl must be positive, got %s", ttl)
	}
	return &DeliveryGuard{store: store, ttl: ttl, inFlightTTL: min(ttl, maxInFlightTTL), now: time.Now}, nil
}

func (g *DeliveryGuard) key(eventID string) (string, error) {
	if eventID == "" {
		return "", errEventIDRequired
	}
	return g.store.IdempotencyKey(DeliveryScope, eventID), nil
}

func (g *DeliveryGuard) marker(state string) string {
	return state + ":" + g.now().UTC().Format(time.RFC3339Nano)
}

// Claim marks eventID as in flight when nobody holds it yet. Otherwise it
// reports whether the earlier delivery finished or is still running.
func (g *DeliveryGuard) Claim(ctx context.Context, eventID string) (DeliveryState, error) {
	key, err := g.key(eventID)
	if err != nil {
		return DeliveryNew, err
	}
	first, err := g.store.SetNX(ctx, key, g.marker(markerInFlight), g.inFlightTTL)
	if err != nil {
		return DeliveryNew, fmt.Errorf("stripewebhook: claim %s: %w", eventID, err)
	}
	if first {
		return DeliveryNew, nil
	}

	current, err := g.store.Get(ctx, key)
	if err != nil && !errors.Is(err, goredis.Nil) {
		return DeliveryNew, fmt.Errorf("stripewebhook: read claim %s: %w", eventID, err)
	}
	if strings.HasPrefix(current, markerDone+":") {
		return DeliveryDone, nil
	}
	// The marker expired between the two calls or is still in flight. Either
	// way the processor retries later, which is the safe answer.
	return DeliveryInFlight, nil
}

// Complete records eventID as handled for the full ttl.
func (g *DeliveryGuard) Complete(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	if err := g.store.Set(ctx, key, g.marker(markerDone), g.ttl); err != nil {
		return fmt.Errorf("stripewebhook: complete %s: %w", eventID, err)
	}
	return nil
}

// Release forgets eventID so the processor's retry is handled again.
func (g *DeliveryGuard) Release(ctx context.Context, eventID string) error {
	key, err := g.key(eventID)
	if err != nil {
		return err
	}
	if err := g.store.Del(ctx, key); err != nil {
		return fmt.Errorf("stripewebhook: release %s: %w", eventID, err)
	}
	return nil
}
