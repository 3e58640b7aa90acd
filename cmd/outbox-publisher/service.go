package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/eventpass-backend/pkg/config"
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
	"github.com/angelmondragon/eventpass-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize   = 50
	defaultPoll        = 500 * time.Millisecond
	defaultMaxAttempts = 10
	publishTimeout     = 15 * time.Second
	maxBackoff         = 10 * time.Second
	maxJitter          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) (*models.OutboxDLQ, error)
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	DLQRepository    dlqRepository
	Metrics          *metrics.OutboxMetrics
}

// outcome is what happened to one row in a batch.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

type batchResult struct {
	published, retried, deadLettered int
}

func (b *batchResult) add(o outcome) {
	switch o {
	case outcomePublished:
		b.published++
	case outcomeRetry:
		b.retried++
	case outcomeDeadLettered:
		b.deadLettered++
	}
}

func (b batchResult) total() int { return b.published + b.retried + b.deadLettered }

// Service drains the transactional outbox onto Pub/Sub. Rows are locked with
// SKIP LOCKED, so more than one publisher can run against the same table.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	pubsub      pubSubClient
	registry    registryResolver
	dlq         dlqRepository
	metrics     *metrics.OutboxMetrics
	publisherOf publisherFactory

	batchSize   int
	maxAttempts int
	poll        time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		ok   bool
		name string
	}{
		{params.Config != nil, "config"},
		{params.Logger != nil, "logger"},
		{params.DB != nil, "database client"},
		{params.PubSub != nil, "pubsub client"},
		{params.Repository != nil, "outbox repository"},
		{params.Registry != nil, "event registry"},
		{params.DLQRepository != nil, "dlq repository"},
	}
	for _, r := range required {
		if !r.ok {
			return nil, fmt.Errorf("outbox publisher: %s is required", r.name)
		}
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(topic string) publisher {
			return newOrderedPublisher(params.PubSub.Publisher(topic))
		}
	}

	cfg := params.Config.Outbox
	poll := defaultPoll
	if cfg.PollIntervalMS > 0 {
		poll = time.Duration(cfg.PollIntervalMS) * time.Millisecond
	}
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		pubsub:      params.PubSub,
		registry:    params.Registry,
		dlq:         params.DLQRepository,
		metrics:     params.Metrics,
		publisherOf: factory,
		batchSize:   positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		poll:        poll,
	}, nil
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

// Run polls until ctx is cancelled. A full batch is followed immediately by
// the next one; batch errors back off exponentially up to maxBackoff.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping: %w", err)
	}
	if err := s.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping: %w", err)
	}

	wait := s.poll
	for ctx.Err() == nil {
		res, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox.batch_failed", err)
			wait = nextBackoff(wait, s.poll, maxBackoff)
		case res.total() > 0:
			s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
				"published":     res.published,
				"retried":       res.retried,
				"dead_lettered": res.deadLettered,
			}), "outbox.batch_done")
			wait = s.poll
			continue
		default:
			wait = s.poll
		}
		if err := sleep(ctx, wait+jitter()); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// processBatch settles each locked row inside the transaction that locked it.
func (s *Service) processBatch(ctx context.Context) (batchResult, error) {
	var res batchResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		res = batchResult{}
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("fetch batch: %w", err)
		}
		for _, event := range events {
			o, err := s.settle(ctx, tx, event)
			if err != nil {
				return err
			}
			res.add(o)
		}
		return nil
	})
	return res, err
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	logCtx := s.logg.WithFields(ctx, rowFields(event))

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, s.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonNonRetryable, err)
	}
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id": resolved.Envelope.EventID,
		"topic":    resolved.Descriptor.Topic,
	})

	pubErr := s.publish(ctx, event, resolved)
	switch {
	case pubErr == nil:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		s.metrics.Published(string(event.EventType))
		s.logg.Info(logCtx, "outbox.published")
		return outcomePublished, nil
	case registry.IsPermanent(pubErr):
		return outcomeDeadLettered, s.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonNonRetryable, pubErr)
	case event.AttemptCount+1 >= s.maxAttempts:
		cause := fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, pubErr)
		return outcomeDeadLettered, s.deadLetter(logCtx, tx, event, enums.OutboxDLQReasonMaxAttempts, cause)
	}

	s.metrics.Failed(string(event.EventType))
	s.logg.Warn(s.logg.WithField(logCtx, "error", pubErr.Error()), "outbox.publish_failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark %s failed: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	if _, err := s.dlq.DeadLetterTx(tx, event, reason, cause); err != nil {
		return err
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark %s terminal: %w", event.ID, err)
	}
	s.metrics.DeadLettered(string(reason))
	s.logg.Error(s.logg.WithField(ctx, "error_reason", reason), "outbox.dead_lettered", cause)
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherOf(topic)
	if pub == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %q", topic))
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	started := time.Now()
	result := pub.Publish(ctx, buildMessage(event, resolved))
	if result == nil {
		return registry.Permanent(fmt.Errorf("publisher for topic %q returned no result", topic))
	}
	_, err := result.Get(ctx)
	s.metrics.ObservePublish(string(event.EventType), time.Since(started))
	return err
}

func rowFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, ceiling)
}

func jitter() time.Duration {
	return rand.N(maxJitter)
}
