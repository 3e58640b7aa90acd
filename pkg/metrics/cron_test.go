package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsRecordsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	finished := time.Unix(1_760_000_000, 0)

	m.ObserveRun("checkout-expiry", OutcomeSuccess, 250*time.Millisecond, finished)
	m.ObserveRun("checkout-expiry", OutcomeFailure, time.Second, finished.Add(time.Minute))
	m.ObserveRun("", OutcomePanic, time.Millisecond, finished)
	m.CycleSkipped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("checkout-expiry", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("checkout-expiry", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("unknown", OutcomePanic)))
	assert.Equal(t, float64(finished.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues("checkout-expiry")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped))

	expected := `
# HELP cron_cycles_skipped_total Cycles skipped because another worker held the lock.
# TYPE cron_cycles_skipped_total counter
cron_cycles_skipped_total 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "cron_cycles_skipped_total"))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	sum := histogramSum(mfs, "cron_job_duration_seconds", "checkout-expiry")
	assert.InDelta(t, 1.25, sum, 1e-9)
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	assert.Nil(t, NewCronJobMetrics(nil))
	assert.NotPanics(t, func() {
		m.ObserveRun("job", OutcomeSuccess, time.Second, time.Now())
		m.CycleSkipped()
	})
}

func histogramSum(mfs []*dto.MetricFamily, name, job string) float64 {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "job" && label.GetValue() == job {
					return metric.GetHistogram().GetSampleSum()
				}
			}
		}
	}
	return -1
}
