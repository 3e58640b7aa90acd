package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/eventpass-backend/pkg/stripe"
)

// intentAPI is the slice of the Stripe payment intent service we call.
type intentAPI interface {
	Create(ctx context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error)
	Cancel(ctx context.Context, id string, params *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error)
	Retrieve(ctx context.Context, id string, params *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error)
}

// StripeGateway implements Gateway with Stripe payment intents.
type StripeGateway struct {
	api intentAPI
}

// NewStripeGateway calls payment intents through the client's API key.
func NewStripeGateway(client *pkgstripe.Client) (*StripeGateway, error) {
	api := client.API()
	if api == nil || api.V1PaymentIntents == nil {
		return nil, errors.New("stripe client is required")
	}
	return &StripeGateway{api: api.V1PaymentIntents}, nil
}

func (g *StripeGateway) CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error) {
	if req.AmountMinor <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be greater than zero")
	}
	if !req.Currency.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported currency")
	}

	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency.ProcessorCode()),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: req.Metadata,
	}
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := g.api.Create(ctx, params)
	if err != nil {
		return nil, processorError(err, "create payment intent")
	}
	if pi == nil || pi.ID == "" || pi.ClientSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment processor returned an incomplete intent")
	}
	return &Intent{Handle: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

// CancelIntent cancels an abandoned intent. An intent that moved past the
// cancellable states is not an error: the outcome carries its current status.
func (g *StripeGateway) CancelIntent(ctx context.Context, handle string) (*CancelOutcome, error) {
	if handle == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment handle is required")
	}
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	pi, err := g.api.Cancel(ctx, handle, params)
	if err == nil {
		return &CancelOutcome{Handle: handle, Status: string(pi.Status), Cancelled: true}, nil
	}

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return nil, processorError(err, "cancel payment intent")
	}
	switch stripeErr.Code {
	case stripe.ErrorCodeResourceMissing:
		return &CancelOutcome{Handle: handle, Cancelled: true}, nil
	case stripe.ErrorCodePaymentIntentUnexpectedState:
		current, getErr := g.api.Retrieve(ctx, handle, &stripe.PaymentIntentRetrieveParams{})
		if getErr != nil {
			return nil, processorError(getErr, "load payment intent")
		}
		status := string(current.Status)
		return &CancelOutcome{
			Handle:         handle,
			Status:         status,
			Cancelled:      status == IntentStatusCanceled,
			AmountReceived: current.AmountReceived,
			Currency:       string(current.Currency),
		}, nil
	default:
		return nil, processorError(err, "cancel payment intent")
	}
}

func processorError(err error, action string) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err,
			fmt.Sprintf("%s: %s (%s)", action, stripeErr.Msg, stripeErr.Code))
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
