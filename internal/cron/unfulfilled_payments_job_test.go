package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/eventpass-backend/internal/payments"
	"github.com/angelmondragon/eventpass-backend/pkg/db/dbtest"
	"github.com/angelmondragon/eventpass-backend/pkg/db/models"
	"github.com/angelmondragon/eventpass-backend/pkg/enums"
	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
)

type failingReader struct{}

func (failingReader) ListUnfulfilled(context.Context, time.Time, int) ([]models.ConfirmedPayment, error) {
	return nil, errors.New("db down")
}

func TestUnfulfilledPaymentsJobReportsStuckPayments(t *testing.T) {
	db := dbtest.Open(t)
	for handle, status := range map[string]enums.ConfirmedPaymentStatus{
		"pi_confirmed": enums.ConfirmedPaymentStatusConfirmed,
		"pi_failed":    enums.ConfirmedPaymentStatusFulfillmentFailed,
		"pi_review":    enums.ConfirmedPaymentStatusNeedsReview,
		"pi_done":      enums.ConfirmedPaymentStatusFulfilled,
	} {
		require.NoError(t, db.Create(&models.ConfirmedPayment{
			ExternalHandle: handle,
			CheckoutID:     uuid.New(),
			UserID:         1,
			EventID:        2,
			AmountMinor:    1000,
			Currency:       enums.CurrencyUSD,
			Status:         status,
		}).Error)
	}

	reg := prometheus.NewRegistry()
	jobIface, err := NewUnfulfilledPaymentsJob(UnfulfilledPaymentsJobParams{
		Logger:  logger.New(logger.Options{ServiceName: "cron-test"}),
		Reader:  payments.NewConfirmedRepository(db),
		Metrics: metrics.NewPipelineMetrics(reg),
	})
	require.NoError(t, err)
	job := jobIface.(*unfulfilledPaymentsJob)

	job.now = time.Now
	require.NoError(t, job.Run(context.Background()))
	count, err := testutil.GatherAndCount(reg, "payments_unfulfilled")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	job.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, job.Run(context.Background()))
	families, err := reg.Gather()
	require.NoError(t, err)
	var gauge float64
	for _, family := range families {
		if family.GetName() == "payments_unfulfilled" {
			gauge = family.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, float64(3), gauge)
}

func TestUnfulfilledPaymentsJobPropagatesReadError(t *testing.T) {
	job, err := NewUnfulfilledPaymentsJob(UnfulfilledPaymentsJobParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test"}),
		Reader: failingReader{},
	})
	require.NoError(t, err)
	assert.Error(t, job.Run(context.Background()))
}

func TestNewUnfulfilledPaymentsJobRequiresReader(t *testing.T) {
	_, err := NewUnfulfilledPaymentsJob(UnfulfilledPaymentsJobParams{Logger: logger.New(logger.Options{})})
	assert.Error(t, err)
}
