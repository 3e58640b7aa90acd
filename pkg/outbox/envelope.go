package outbox

import (
	"encoding/json"
	"time"
)

// ActorRef identifies who caused the event. Webhook and cron driven events
// carry the buyer with the system source that acted for them.
type ActorRef struct {
	UserID int64  `json:"userId"`
	Source string `json:"source,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_events.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

const (
	ActorSourceCheckout = "checkout"
	ActorSourceWebhook  = "stripe_webhook"
	ActorSourceCron     = "cron"
)
