package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/eventpass-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/eventpass-backend/api/controllers/webhooks"
	"github.com/angelmondragon/eventpass-backend/api/middleware"
	"github.com/angelmondragon/eventpass-backend/internal/checkout"
	stripewebhook "github.com/angelmondragon/eventpass-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/eventpass-backend/pkg/config"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/eventpass-backend/pkg/redis"
)

type CheckoutService interface {
	CreateIntent(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// RedisStore is the slice of the redis client the HTTP layer uses.
type RedisStore interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

type SigningSecretSource interface {
	SigningSecret() string
}

type WebhookGuard interface {
	Claim(ctx context.Context, eventID string) (stripewebhook.DeliveryState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

type Dependencies struct {
	Config         *config.Config
	Logger         *logger.Logger
	DB             controllers.Pinger
	Redis          RedisStore
	Gatherer       prometheus.Gatherer
	Metrics        *metrics.PipelineMetrics
	Checkout       CheckoutService
	WebhookService webhookcontrollers.StripeWebhookService
	WebhookGuard   WebhookGuard
	Stripe         SigningSecretSource
	CORSOrigins    []string
}

func NewRouter(deps Dependencies) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(deps.CORSOrigins...),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessChecks(deps)))
	})

	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(deps.WebhookService, deps.Stripe, deps.WebhookGuard, deps.Metrics, logg))
	})

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.Checkout.RateLimitWindow,
		cfg.Checkout.RateLimitPerIP,
		cfg.Checkout.RateLimitPerUser,
	)

	r.Route("/api/v1/checkout", func(r chi.Router) {
		if deps.Redis != nil {
			r.Use(
				middleware.RateLimit(checkoutPolicy, deps.Redis, logg),
				middleware.Idempotency(deps.Redis, cfg.Checkout.IdempotencyTTL, logg),
			)
		}
		r.Post("/intents", controllers.CheckoutIntent(deps.Checkout, logg))
	})

	return r
}

func readinessChecks(deps Dependencies) map[string]controllers.Pinger {
	checks := map[string]controllers.Pinger{}
	if deps.DB != nil {
		checks["database"] = deps.DB
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	return checks
}
