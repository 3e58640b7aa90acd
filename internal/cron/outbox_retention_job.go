package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	defaultPruneBatch      = 1000
	// maxPruneBatches caps one cycle; leftovers wait for the next run.
	maxPruneBatches = 20
)

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type deadLetterPruner interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	Outbox publishedPruner
	// DeadLetters is optional; without it the DLQ is kept forever.
	DeadLetters  deadLetterPruner
	Retention    time.Duration
	DLQRetention time.Duration
	BatchSize    int
}

// pruneTarget is one table the job trims.
type pruneTarget struct {
	table  string
	keep   time.Duration
	delete func(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type outboxRetentionJob struct {
	logg    *logger.Logger
	targets []pruneTarget
	batch   int
	now     func() time.Time
}

func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	if p.Logger == nil {
		return nil, errors.New("outbox retention: logger required")
	}
	if p.Outbox == nil {
		return nil, errors.New("outbox retention: outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:  p.Logger,
		batch: orDefault(p.BatchSize, defaultPruneBatch),
		now:   time.Now,
	}
	job.targets = append(job.targets, pruneTarget{
		table:  "outbox_events",
		keep:   orDefault(p.Retention, defaultOutboxRetention),
		delete: p.Outbox.DeletePublishedBefore,
	})
	if p.DeadLetters != nil {
		job.targets = append(job.targets, pruneTarget{
			table:  "outbox_dlq",
			keep:   orDefault(p.DLQRetention, defaultDLQRetention),
			delete: p.DeadLetters.DeleteFailedBefore,
		})
	}
	return job, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run trims each target in bounded batches so no single delete runs long.
// A failing target does not stop the others.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs []error
	for _, target := range j.targets {
		cutoff := now.Add(-target.keep)
		deleted, err := j.prune(ctx, target, cutoff)
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"table":        target.table,
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		})
		if err != nil {
			j.logg.Error(logCtx, "cron.retention_failed", err)
			errs = append(errs, fmt.Errorf("prune %s: %w", target.table, err))
			continue
		}
		j.logg.Info(logCtx, "cron.retention_done")
	}
	return errors.Join(errs...)
}

func (j *outboxRetentionJob) prune(ctx context.Context, target pruneTarget, cutoff time.Time) (int64, error) {
	var total int64
	for range maxPruneBatches {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := target.delete(ctx, cutoff, j.batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(j.batch) {
			break
		}
	}
	return total, nil
}
