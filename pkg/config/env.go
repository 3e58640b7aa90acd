package config

// EnvPrefix is passed to envconfig; every tag spells the full variable name.
const EnvPrefix = "EVENTPASS"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Variable names referenced by validation messages and tests.
const (
	EnvAppEnv    = "EVENTPASS_APP_ENV"
	EnvPort      = "EVENTPASS_APP_PORT"
	EnvLogFormat = "EVENTPASS_LOG_FORMAT"

	EnvDBDSN  = "EVENTPASS_DB_DSN"
	EnvDBHost = "EVENTPASS_DB_HOST"
	EnvDBUser = "EVENTPASS_DB_USER"
	EnvDBName = "EVENTPASS_DB_NAME"

	EnvRedisURL = "EVENTPASS_REDIS_URL"

	EnvGCPProjectID           = "EVENTPASS_GCP_PROJECT_ID"
	EnvPubSubDomainTopic      = "EVENTPASS_PUBSUB_DOMAIN_TOPIC"
	EnvPubSubFulfillmentTopic = "EVENTPASS_PUBSUB_FULFILLMENT_TOPIC"

	EnvStripeAPIKey        = "EVENTPASS_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "EVENTPASS_STRIPE_WEBHOOK_SECRET"

	EnvCheckoutStaleAfter      = "EVENTPASS_CHECKOUT_STALE_AFTER"
	EnvCheckoutMaxLines        = "EVENTPASS_CHECKOUT_MAX_LINES"
	EnvCheckoutRateLimitWindow = "EVENTPASS_CHECKOUT_RATE_LIMIT_WINDOW"

	EnvOutboxMaxAttempts  = "EVENTPASS_OUTBOX_MAX_ATTEMPTS"
	EnvOutboxRetention    = "EVENTPASS_OUTBOX_RETENTION"
	EnvOutboxDLQRetention = "EVENTPASS_OUTBOX_DLQ_RETENTION"

	EnvCronInterval = "EVENTPASS_CRON_INTERVAL"
	EnvCronLockTTL  = "EVENTPASS_CRON_LOCK_TTL"
)
