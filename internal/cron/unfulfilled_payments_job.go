package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
)

const (
	defaultUnfulfilledAfter = 15 * time.Minute
	unfulfilledScanLimit    = 500
)

type unfulfilledReader interface {
	ListUnfulfilled(ctx context.Context, cutoff time.Time, limit int) ([]models.ConfirmedPayment, error)
}

type UnfulfilledPaymentsJobParams struct {
	Logger  *logger.Logger
	Reader  unfulfilledReader
	Metrics *metrics.PipelineMetrics
	After   time.Duration
}

// NewUnfulfilledPaymentsJob builds the job that alarms on confirmed payments
// that have not reached fulfilled within the threshold.
func NewUnfulfilledPaymentsJob(params UnfulfilledPaymentsJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("confirmed payment reader required")
	}
	after := params.After
	if after <= 0 {
		after = defaultUnfulfilledAfter
	}
	return &unfulfilledPaymentsJob{
		logg:    params.Logger,
		reader:  params.Reader,
		metrics: params.Metrics,
		after:   after,
		now:     time.Now,
	}, nil
}

type unfulfilledPaymentsJob struct {
	logg    *logger.Logger
	reader  unfulfilledReader
	metrics *metrics.PipelineMetrics
	after   time.Duration
	now     func() time.Time
}

func (j *unfulfilledPaymentsJob) Name() string { return "unfulfilled-payments" }

func (j *unfulfilledPaymentsJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.after)
	rows, err := j.reader.ListUnfulfilled(ctx, cutoff, unfulfilledScanLimit)
	if err != nil {
		return fmt.Errorf("list unfulfilled payments: %w", err)
	}
	j.metrics.SetUnfulfilled(len(rows))
	if len(rows) == 0 {
		return nil
	}

	handles := make([]string, len(rows))
	for i, row := range rows {
		handles[i] = row.ExternalHandle
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"count":    len(rows),
		"handles":  handles,
		"oldest":   rows[0].CreatedAt,
		"statuses": statusCounts(rows),
	})
	j.logg.Error(logCtx, "cron.unfulfilled_payments", fmt.Errorf("%d confirmed payments unfulfilled past %s", len(rows), j.after))
	return nil
}

func statusCounts(rows []models.ConfirmedPayment) map[string]int {
	counts := make(map[string]int)
	for _, row := range rows {
		counts[string(row.Status)]++
	}
	return counts
}
