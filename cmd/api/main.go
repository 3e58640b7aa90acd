package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/eventpass-backend/api/routes"
	"github.com/angelmondragon/eventpass-backend/internal/checkout"
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

const shutdownTimeout = 20 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub client", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe client", err)
		os.Exit(1)
	}

	promRegistry := metrics.NewRegistry()
	pipelineMetrics := metrics.NewPipelineMetrics(promRegistry)

	gormDB := dbClient.DB()
	ledger, err := inventory.NewLedger(inventory.NewCatalog(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory ledger", err)
		os.Exit(1)
	}
	outboxService := outbox.NewService(outbox.NewRepository(gormDB), logg)

	gateway, err := payments.NewStripeGateway(stripeClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create payment gateway", err)
		os.Exit(1)
	}
	recordRepo := payments.NewRepository(gormDB)
	paymentsService, err := payments.NewService(payments.ServiceParams{
		Gateway:    gateway,
		Repository: recordRepo,
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payments service", err)
		os.Exit(1)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		TxRunner:  dbClient,
		Ledger:    ledger,
		Snapshots: snapshot.NewBuilder(),
		Lines:     snapshot.NewRepository(gormDB),
		Payments:  paymentsService,
		Outbox:    outboxService,
		Logger:    logg,
		Metrics:   pipelineMetrics,
		MaxLines:  cfg.Checkout.MaxLines,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	trigger, err := fulfillment.NewPubSubTrigger(pubsubClient.FulfillmentPublisher(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment trigger", err)
		os.Exit(1)
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		TransactionRunner: dbClient,
		Snapshots:         snapshot.NewRepository(gormDB),
		Records:           recordRepo,
		Confirmed:         payments.NewConfirmedRepository(gormDB),
		Ledger:            ledger,
		Outbox:            outboxService,
		Trigger:           trigger,
		Logger:            logg,
		Metrics:           pipelineMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	deliveryGuard, err := stripewebhook.NewDeliveryGuard(redisClient, cfg.Stripe.WebhookTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook delivery guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"stripe":   stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Dependencies{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Gatherer:       promRegistry,
			Metrics:        pipelineMetrics,
			Checkout:       checkoutService,
			WebhookService: webhookService,
			WebhookGuard:   deliveryGuard,
			Stripe:         stripeClient,
			CORSOrigins:    cfg.App.CORSOrigins,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
