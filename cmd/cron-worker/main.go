package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/eventpass-backend/internal/cron"
	"github.com/angelmondragon/eventpass-backend/internal/fulfillment"
	"github.com/angelmondragon/eventpass-backend/internal/inventory"
	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/internal/snapshot"
	stripewebhook "github.com/angelmondragon/eventpass-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/eventpass-backend/pkg/config"
	"github.com/angelmondragon/eventpass-backend/pkg/db"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
	"github.com/angelmondragon/eventpass-backend/pkg/migrate"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox"
	"github.com/angelmondragon/eventpass-backend/pkg/pubsub"
	"github.com/angelmondragon/eventpass-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/eventpass-backend/pkg/stripe"
)

const serviceKind = "cron-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Debug(ctx, "no .env file, using process environment")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "config.load_failed", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "service_kind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron_worker.stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron_worker.shutdown")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer closeWith(ctx, logg, "db", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	stripeClient, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}
	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		return err
	}
	records := payments.NewRepository(dbClient.DB())
	paymentsService, err := payments.NewService(payments.ServiceParams{
		Gateway:    gateway,
		Repository: records,
		Logger:     logg,
	})
	if err != nil {
		return err
	}
	ledger, err := inventory.NewLedger(inventory.NewCatalog(dbClient.DB()))
	if err != nil {
		return err
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return err
	}
	defer closeWith(ctx, logg, "pubsub", pubsubClient.Close)
	trigger, err := fulfillment.NewPubSubTrigger(pubsubClient.FulfillmentPublisher(), logg)
	if err != nil {
		return err
	}

	promRegistry := metrics.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(promRegistry)
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)
	snapshots := snapshot.NewRepository(dbClient.DB())
	confirmed := payments.NewConfirmedRepository(dbClient.DB())

	reconciler, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		TransactionRunner: dbClient,
		Snapshots:         snapshots,
		Records:           records,
		Confirmed:         confirmed,
		Ledger:            ledger,
		Outbox:            outboxService,
		Trigger:           trigger,
		Logger:            logg,
		Metrics:           pipelineMetrics,
	})
	if err != nil {
		return err
	}

	expiry, err := cron.NewCheckoutExpiryJob(cron.CheckoutExpiryJobParams{
		Logger:     logg,
		DB:         dbClient,
		Snapshots:  snapshots,
		Records:    records,
		Payments:   paymentsService,
		Reconciler: reconciler,
		Ledger:     ledger,
		Outbox:     outboxService,
		Metrics:    pipelineMetrics,
		StaleAfter: cfg.Checkout.StaleAfter,
		BatchSize:  cfg.Checkout.SweepBatchSize,
	})
	if err != nil {
		return err
	}
	unfulfilled, err := cron.NewUnfulfilledPaymentsJob(cron.UnfulfilledPaymentsJobParams{
		Logger:  logg,
		Reader:  confirmed,
		Metrics: pipelineMetrics,
		After:   cfg.Checkout.UnfulfilledAfter,
	})
	if err != nil {
		return err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		Outbox:       outboxRepo,
		DeadLetters:  outbox.NewDLQRepository(dbClient.DB()),
		Retention:    cfg.Outbox.Retention,
		DLQRetention: cfg.Outbox.DLQRetention,
	})
	if err != nil {
		return err
	}

	jobs := cron.NewRegistry()
	for _, j := range []struct {
		job   cron.Job
		every time.Duration
	}{
		{expiry, 0},
		{unfulfilled, 0},
		{retention, cfg.Cron.RetentionEvery},
	} {
		if err := jobs.Register(j.job, j.every); err != nil {
			return err
		}
	}

	lock, err := cron.NewRedisLock(redisClient, lockName(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: jobs,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(promRegistry),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	metricsErr := make(chan error, 1)
	go func() {
		err := metrics.Serve(ctx, cfg.Service.MetricsAddr, promRegistry, logg)
		if err != nil {
			cancel()
		}
		metricsErr <- err
	}()

	logg.Info(ctx, "cron_worker.started")
	runErr := service.Run(ctx)
	cancel()
	return errors.Join(runErr, <-metricsErr)
}

// lockName scopes the worker lock per environment so staging and prod never contend.
func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "shutdown.close_failed", err)
	}
}
