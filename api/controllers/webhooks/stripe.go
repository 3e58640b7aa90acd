package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/eventpass-backend/api/responses"
	stripewebhook "github.com/angelmondragon/eventpass-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
)

// MaxPayloadBytes caps the webhook body; processor events are far smaller.
const MaxPayloadBytes = 64 << 10

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type deliveryGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.DeliveryState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type signingSecretSource interface {
	SigningSecret() string
}

// StripeWebhook verifies the signature over the untouched request bytes before
// anything is decoded, then hands the event to the reconciler.
func StripeWebhook(svc StripeWebhookService, client signingSecretSource, guard deliveryGuard, m *metrics.PipelineMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || client == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxPayloadBytes))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payload too large"))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), client.SigningSecret())
		if err != nil {
			m.SignatureFailure()
			if logg != nil {
				logg.Error(logg.WithField(ctx, "remote_addr", r.RemoteAddr), "webhook.signature_invalid", err)
			}
			responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, err, "verify signature"))
			return
		}
		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{"stripe_event_id": event.ID, "stripe_event_type": string(event.Type)})
		}

		state, err := guard.Claim(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook delivery"))
			return
		}
		switch state {
		case stripewebhook.DeliveryDone:
			m.WebhookEvent(string(event.Type), metrics.OutcomeDuplicate)
			responses.WriteSuccess(w, map[string]any{"received": true, "duplicate": true})
			return
		case stripewebhook.DeliveryInFlight:
			// Non 2xx so the processor keeps retrying until the first delivery settles.
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeConflict, "event delivery already in progress"))
			return
		}

		if err := svc.HandleEvent(ctx, &event); err != nil {
			if releaseErr := guard.Release(ctx, event.ID); releaseErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", releaseErr.Error()), "webhook delivery release failed")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := guard.Complete(ctx, event.ID); err != nil && logg != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook delivery complete failed")
		}

		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, map[string]any{"received": true})
	}
}
