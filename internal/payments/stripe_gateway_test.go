package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/eventpass-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/eventpass-backend/pkg/stripe"
)

type fakeIntentAPI struct {
	created   *stripe.PaymentIntentCreateParams
	newResult *stripe.PaymentIntent
	newErr    error
	cancelErr error
	current   *stripe.PaymentIntent
}

func (f *fakeIntentAPI) Create(_ context.Context, params *stripe.PaymentIntentCreateParams) (*stripe.PaymentIntent, error) {
	f.created = params
	return f.newResult, f.newErr
}

func (f *fakeIntentAPI) Cancel(_ context.Context, id string, _ *stripe.PaymentIntentCancelParams) (*stripe.PaymentIntent, error) {
	if f.cancelErr != nil {
		return nil, f.cancelErr
	}
	return &stripe.PaymentIntent{ID: id, Status: stripe.PaymentIntentStatusCanceled}, nil
}

func (f *fakeIntentAPI) Retrieve(_ context.Context, _ string, _ *stripe.PaymentIntentRetrieveParams) (*stripe.PaymentIntent, error) {
	return f.current, nil
}

func TestNewStripeGatewayUsesClientService(t *testing.T) {
	client, err := pkgstripe.NewClient(context.Background(), config.StripeConfig{
		APIKey:        "sk_test_123",
		WebhookSecret: "whsec_abc",
	}, nil)
	require.NoError(t, err)

	gw, err := NewStripeGateway(client)
	require.NoError(t, err)
	assert.Same(t, client.API().V1PaymentIntents, gw.api)

	_, err = NewStripeGateway(nil)
	require.Error(t, err)
}

func TestStripeGatewayCreateIntent(t *testing.T) {
	api := &fakeIntentAPI{newResult: &stripe.PaymentIntent{
		ID:           "pi_123",
		ClientSecret: "pi_123_secret_abc",
		Status:       stripe.PaymentIntentStatusRequiresPaymentMethod,
	}}
	gw := &StripeGateway{api: api}

	intent, err := gw.CreateIntent(context.Background(), IntentRequest{
		AmountMinor:    1999,
		Currency:       enums.CurrencyUSD,
		Metadata:       map[string]string{MetaSnapshotIDs: "1,2"},
		IdempotencyKey: "checkout-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "pi_123", intent.Handle)
	assert.Equal(t, "pi_123_secret_abc", intent.ClientSecret)

	require.NotNil(t, api.created)
	assert.Equal(t, int64(1999), *api.created.Amount)
	assert.Equal(t, "usd", *api.created.Currency)
	assert.True(t, *api.created.AutomaticPaymentMethods.Enabled)
	assert.Equal(t, "1,2", api.created.Metadata[MetaSnapshotIDs])
	require.NotNil(t, api.created.IdempotencyKey)
	assert.Equal(t, "checkout-abc", *api.created.IdempotencyKey)
}

func TestStripeGatewayCreateIntentProcessorError(t *testing.T) {
	api := &fakeIntentAPI{newErr: &stripe.Error{Code: stripe.ErrorCodeAmountTooSmall, Msg: "too small"}}
	gw := &StripeGateway{api: api}

	_, err := gw.CreateIntent(context.Background(), IntentRequest{AmountMinor: 10, Currency: enums.CurrencyUSD})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Contains(t, pkgerrors.As(err).Message(), "too small")
}

func TestStripeGatewayCreateIntentValidates(t *testing.T) {
	gw := &StripeGateway{api: &fakeIntentAPI{}}
	_, err := gw.CreateIntent(context.Background(), IntentRequest{AmountMinor: 0, Currency: enums.CurrencyUSD})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = gw.CreateIntent(context.Background(), IntentRequest{AmountMinor: 5, Currency: "XYZ"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStripeGatewayCancelIntent(t *testing.T) {
	gw := &StripeGateway{api: &fakeIntentAPI{}}
	out, err := gw.CancelIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.True(t, out.Cancelled)
	assert.False(t, out.MayStillCharge())
}

func TestStripeGatewayCancelIntentAlreadySucceeded(t *testing.T) {
	gw := &StripeGateway{api: &fakeIntentAPI{
		cancelErr: &stripe.Error{Code: stripe.ErrorCodePaymentIntentUnexpectedState},
		current: &stripe.PaymentIntent{
			ID:             "pi_1",
			Status:         stripe.PaymentIntentStatusSucceeded,
			AmountReceived: 4200,
			Currency:       stripe.CurrencyUSD,
		},
	}}
	out, err := gw.CancelIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.False(t, out.Cancelled)
	assert.Equal(t, IntentStatusSucceeded, out.Status)
	assert.True(t, out.MayStillCharge())
	assert.True(t, out.Succeeded())
	assert.Equal(t, int64(4200), out.AmountReceived)
	assert.Equal(t, "usd", out.Currency)
}

func TestStripeGatewayCancelIntentAlreadyCanceled(t *testing.T) {
	gw := &StripeGateway{api: &fakeIntentAPI{
		cancelErr: &stripe.Error{Code: stripe.ErrorCodePaymentIntentUnexpectedState},
		current:   &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusCanceled},
	}}
	out, err := gw.CancelIntent(context.Background(), "pi_1")
	require.NoError(t, err)
	assert.True(t, out.Cancelled)
}

func TestStripeGatewayCancelIntentMissing(t *testing.T) {
	gw := &StripeGateway{api: &fakeIntentAPI{cancelErr: &stripe.Error{Code: stripe.ErrorCodeResourceMissing}}}
	out, err := gw.CancelIntent(context.Background(), "pi_gone")
	require.NoError(t, err)
	assert.True(t, out.Cancelled)
}

func TestStripeGatewayCancelIntentNetworkError(t *testing.T) {
	gw := &StripeGateway{api: &fakeIntentAPI{cancelErr: errors.New("connection reset")}}
	_, err := gw.CancelIntent(context.Background(), "pi_1")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
