package stripe

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

func TestNewClientTestEnvironment(t *testing.T) {
	c, err := NewClient(context.Background(), config.StripeConfig{
		APIKey:        "sk_test_123",
		WebhookSecret: " whsec_abc ",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", c.Environment())
	assert.Equal(t, "whsec_abc", c.SigningSecret())
	require.NotNil(t, c.API())
	assert.NotNil(t, c.API().V1PaymentIntents)
}

func TestNewClientAcceptsRestrictedLiveKey(t *testing.T) {
	c, err := NewClient(context.Background(), config.StripeConfig{
		APIKey:        "rk_live_abc",
		WebhookSecret: "whsec_abc",
		Env:           "LIVE",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "live", c.Environment())
}

func TestNewClientRejectsMismatchedKey(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{
		APIKey:        "sk_test_123",
		WebhookSecret: "whsec_abc",
		Env:           "live",
	}, nil)
	assert.ErrorContains(t, err, "sk_live")

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "pk_test_123", WebhookSecret: "whsec_abc"}, nil)
	assert.Error(t, err, "publishable keys are not secret keys")
}

func TestNewClientRequiresSecrets(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{WebhookSecret: "whsec_abc"}, nil)
	assert.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1"}, nil)
	assert.ErrorIs(t, err, errWebhookSecretRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1", WebhookSecret: "secret"}, nil)
	assert.Error(t, err)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_1", WebhookSecret: "whsec_1", Env: "staging"}, nil)
	assert.ErrorIs(t, err, errInvalidStripeEnv)
}

func TestModeOfKey(t *testing.T) {
	cases := map[string]struct {
		mode Mode
		ok   bool
	}{
		"sk_test_1": {ModeTest, true},
		"rk_live_1": {ModeLive, true},
		"sk_1":      {"", false},
		"whsec_1":   {"", false},
	}
	for key, want := range cases {
		mode, ok := modeOfKey(key)
		assert.Equal(t, want.ok, ok, key)
		assert.Equal(t, want.mode, mode, key)
	}
}

func TestSDKLoggerForwardsWarnings(t *testing.T) {
	var buf bytes.Buffer
	l := sdkLogger{ctx: context.Background(), logg: logger.New(logger.Options{Output: &buf})}
	l.Warnf("retrying request %d", 2)
	assert.Contains(t, buf.String(), "retrying request 2")
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	assert.Nil(t, c.API())
	assert.Empty(t, c.Environment())
	assert.Empty(t, c.SigningSecret())
}
