package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

// Load reads EVENTPASS_* variables. Every invalid setting is reported in one
// error so a bad deploy shows all of its problems at once.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	err := multierr.Combine(
		cfg.DB.ensureDSN(),
		cfg.App.validate(),
		cfg.Checkout.validate(),
		cfg.Outbox.validate(),
		cfg.Cron.validate(),
	)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EVENTPASS_APP_ENV" required:"true"`
	Port         string `envconfig:"EVENTPASS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EVENTPASS_LOG_LEVEL" default:"info"`
	LogFormat    string `envconfig:"EVENTPASS_LOG_FORMAT" default:"json"`
	LogWarnStack bool   `envconfig:"EVENTPASS_LOG_WARN_STACK" default:"false"`
	// CORSOrigins are allowed in addition to the local dev origins.
	CORSOrigins []string `envconfig:"EVENTPASS_CORS_ORIGINS"`
}

func (a AppConfig) validate() error {
	switch strings.ToLower(a.LogFormat) {
	case "", "json", "console":
		return nil
	}
	return fmt.Errorf("%s must be json or console, got %q", EnvLogFormat, a.LogFormat)
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVENTPASS_SERVICE_KIND" default:"api"`
	// MetricsAddr is where the background workers expose /metrics. Empty disables it.
	MetricsAddr string `envconfig:"EVENTPASS_METRICS_ADDR" default:":9090"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVENTPASS_DB_DSN"`
	Driver string `envconfig:"EVENTPASS_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"EVENTPASS_DB_HOST"`
	Port     int    `envconfig:"EVENTPASS_DB_PORT" default:"5432"`
	User     string `envconfig:"EVENTPASS_DB_USER"`
	Password string `envconfig:"EVENTPASS_DB_PASSWORD"`
	Name     string `envconfig:"EVENTPASS_DB_NAME"`
	SSLMode  string `envconfig:"EVENTPASS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVENTPASS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVENTPASS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVENTPASS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVENTPASS_DB_CONN_MAX_IDLE_TIME" default:"10m"`

	SlowQuery time.Duration `envconfig:"EVENTPASS_DB_SLOW_QUERY" default:"250ms"`
	TxRetries int           `envconfig:"EVENTPASS_DB_TX_RETRIES" default:"3"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EVENTPASS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVENTPASS_REDIS_ADDR"`
	Password     string        `envconfig:"EVENTPASS_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVENTPASS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVENTPASS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVENTPASS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVENTPASS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVENTPASS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVENTPASS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey        string        `envconfig:"EVENTPASS_STRIPE_API_KEY"`
	WebhookSecret string        `envconfig:"EVENTPASS_STRIPE_WEBHOOK_SECRET"`
	Env           string        `envconfig:"EVENTPASS_STRIPE_ENV" default:"test"`
	WebhookTTL    time.Duration `envconfig:"EVENTPASS_STRIPE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

// CheckoutConfig tunes the checkout intent surface and the stale pending sweep.
type CheckoutConfig struct {
	StaleAfter       time.Duration `envconfig:"EVENTPASS_CHECKOUT_STALE_AFTER" default:"30m"`
	MaxLines         int           `envconfig:"EVENTPASS_CHECKOUT_MAX_LINES" default:"50"`
	SweepBatchSize   int           `envconfig:"EVENTPASS_CHECKOUT_SWEEP_BATCH_SIZE" default:"200"`
	IdempotencyTTL   time.Duration `envconfig:"EVENTPASS_CHECKOUT_IDEMPOTENCY_TTL" default:"24h"`
	RateLimitWindow  time.Duration `envconfig:"EVENTPASS_CHECKOUT_RATE_LIMIT_WINDOW" default:"1m"`
	RateLimitPerIP   int           `envconfig:"EVENTPASS_CHECKOUT_RATE_LIMIT_IP" default:"30"`
	RateLimitPerUser int           `envconfig:"EVENTPASS_CHECKOUT_RATE_LIMIT_USER" default:"10"`
	UnfulfilledAfter time.Duration `envconfig:"EVENTPASS_CHECKOUT_UNFULFILLED_AFTER" default:"15m"`
}

func (c CheckoutConfig) validate() error {
	return multierr.Combine(
		positive(EnvCheckoutStaleAfter, c.StaleAfter),
		positive(EnvCheckoutMaxLines, c.MaxLines),
		positive(EnvCheckoutRateLimitWindow, c.RateLimitWindow),
	)
}

func positive[T int | time.Duration](name string, v T) error {
	if v <= 0 {
		return fmt.Errorf("%s must be positive", name)
	}
	return nil
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"EVENTPASS_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"EVENTPASS_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"EVENTPASS_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"EVENTPASS_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	DomainTopic             string `envconfig:"EVENTPASS_PUBSUB_DOMAIN_TOPIC" required:"true"`
	DomainSubscription      string `envconfig:"EVENTPASS_PUBSUB_DOMAIN_SUBSCRIPTION"`
	FulfillmentTopic        string `envconfig:"EVENTPASS_PUBSUB_FULFILLMENT_TOPIC" required:"true"`
	FulfillmentSubscription string `envconfig:"EVENTPASS_PUBSUB_FULFILLMENT_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"EVENTPASS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"EVENTPASS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"EVENTPASS_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"EVENTPASS_OUTBOX_RETENTION" default:"720h"`
	DLQRetention   time.Duration `envconfig:"EVENTPASS_OUTBOX_DLQ_RETENTION" default:"2160h"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"EVENTPASS_CRON_INTERVAL" default:"1m"`
	LockTTL        time.Duration `envconfig:"EVENTPASS_CRON_LOCK_TTL" default:"5m"`
	RetentionEvery time.Duration `envconfig:"EVENTPASS_CRON_RETENTION_EVERY" default:"1h"`
}

func (o OutboxConfig) validate() error {
	return multierr.Combine(
		positive(EnvOutboxMaxAttempts, o.MaxAttempts),
		positive(EnvOutboxRetention, o.Retention),
		positive(EnvOutboxDLQRetention, o.DLQRetention),
	)
}

// validate requires the lock to outlive one tick, otherwise a slow cycle
// loses its lock to the next replica mid run.
func (c CronConfig) validate() error {
	err := multierr.Combine(
		positive(EnvCronInterval, c.Interval),
		positive(EnvCronLockTTL, c.LockTTL),
	)
	if err == nil && c.LockTTL < c.Interval {
		err = fmt.Errorf("%s (%s) must be at least %s (%s)", EnvCronLockTTL, c.LockTTL, EnvCronInterval, c.Interval)
	}
	return err
}

// ensureDSN assembles a postgres URL from the host/user/name parts when no
// DSN is given.
func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.Host, EnvDBUser: db.User, EnvDBName: db.Name} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("%s or all of %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.User(db.User),
		Host:   net.JoinHostPort(db.Host, strconv.Itoa(db.Port)),
		Path:   db.Name,
	}
	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	}
	if db.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {db.SSLMode}}.Encode()
	}
	db.DSN = u.String()
	return nil
}
