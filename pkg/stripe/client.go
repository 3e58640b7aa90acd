// Package stripe builds the keyed Stripe SDK client.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

// Mode is the Stripe account mode a key belongs to.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

var (
	errAPIKeyRequired        = errors.New("stripe: api key is required")
	errWebhookSecretRequired = errors.New("stripe: webhook signing secret is required")
	errInvalidStripeEnv      = fmt.Errorf("stripe: environment must be %q or %q", ModeTest, ModeLive)
)

// Client owns the API key used for payment intents and the secret used to
// verify webhook signatures.
type Client struct {
	api           *stripe.Client
	mode          Mode
	signingSecret string
}

// NewClient refuses a key whose mode does not match the configured
// environment, so a live key can never be used from a test deploy.
// SDK logs are routed through logg.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, err := parseMode(cfg.Environment())
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.WebhookSecret)
	switch {
	case secret == "":
		return nil, errWebhookSecretRequired
	case !strings.HasPrefix(secret, "whsec_"):
		return nil, errors.New("stripe: webhook secret must start with whsec_")
	}
	if keyMode, ok := modeOfKey(apiKey); !ok || keyMode != mode {
		return nil, fmt.Errorf("stripe: %s environment requires a sk_%s or rk_%s key", mode, mode, mode)
	}

	stripe.SetAppInfo(&stripe.AppInfo{Name: "eventpass-backend"})
	if logg != nil {
		stripe.DefaultLeveledLogger = sdkLogger{ctx: ctx, logg: logg}
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe.configured")
	}
	return &Client{api: stripe.NewClient(apiKey), mode: mode, signingSecret: secret}, nil
}

// API is the keyed SDK client the payment gateway calls through.
func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

// Environment reports test or live.
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return string(c.mode)
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func parseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeTest, nil
	case ModeTest, ModeLive:
		return m, nil
	default:
		return "", errInvalidStripeEnv
	}
}

// modeOfKey reads the mode from secret (sk_) and restricted (rk_) key prefixes.
func modeOfKey(key string) (Mode, bool) {
	for _, kind := range []string{"sk_", "rk_"} {
		rest, ok := strings.CutPrefix(key, kind)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(rest, "test_"):
			return ModeTest, true
		case strings.HasPrefix(rest, "live_"):
			return ModeLive, true
		}
	}
	return "", false
}

// sdkLogger forwards stripe-go's leveled logs. Debug and info lines are
// request traces and stay at debug.
type sdkLogger struct {
	ctx  context.Context
	logg *logger.Logger
}

func (l sdkLogger) Debugf(format string, v ...any) {
	l.logg.Debug(l.ctx, "stripe.sdk: "+fmt.Sprintf(format, v...))
}

func (l sdkLogger) Infof(format string, v ...any) {
	l.logg.Debug(l.ctx, "stripe.sdk: "+fmt.Sprintf(format, v...))
}

func (l sdkLogger) Warnf(format string, v ...any) {
	l.logg.Warn(l.ctx, "stripe.sdk: "+fmt.Sprintf(format, v...))
}

func (l sdkLogger) Errorf(format string, v ...any) {
	l.logg.Error(l.ctx, "stripe.sdk", fmt.Errorf(format, v...))
}
