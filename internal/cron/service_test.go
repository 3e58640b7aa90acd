package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	acquires int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	f.acquires++
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error { f.held = false; return nil }

type testJob struct {
	name  string
	err   error
	panic bool
	runs  int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.panic {
		panic("boom")
	}
	return t.err
}

type clock struct{ at time.Time }

func (c *clock) now() time.Time { return c.at }

func newTestService(t *testing.T, lock Lock, m *metrics.CronJobMetrics, jobs map[Job]time.Duration, order ...Job) (*Service, *clock) {
	t.Helper()
	registry := NewRegistry()
	for _, job := range order {
		require.NoError(t, registry.Register(job, jobs[job]))
	}
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test"}),
		Registry: registry,
		Lock:     lock,
		Metrics:  m,
	})
	require.NoError(t, err)
	c := &clock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc.now = c.now
	return svc, c
}

func TestRunCycleRunsEveryJobDespiteFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	ok := &testJob{name: "checkout-expiry"}
	failing := &testJob{name: "unfulfilled-payments", err: errors.New("db down")}
	panicking := &testJob{name: "outbox-retention", panic: true}
	lock := &fakeLock{}
	svc, _ := newTestService(t, lock, m, map[Job]time.Duration{}, ok, failing, panicking)

	require.NoError(t, svc.runCycle(context.Background()))

	assert.Equal(t, 1, ok.runs)
	assert.Equal(t, 1, failing.runs)
	assert.Equal(t, 1, panicking.runs)
	assert.False(t, lock.held, "lock released after the cycle")

	count, err := testutil.GatherAndCount(reg, "cron_job_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestRunCycleRespectsCadence(t *testing.T) {
	every := &testJob{name: "checkout-expiry"}
	hourly := &testJob{name: "outbox-retention"}
	svc, c := newTestService(t, &fakeLock{}, nil, map[Job]time.Duration{hourly: time.Hour}, every, hourly)
	ctx := context.Background()

	require.NoError(t, svc.runCycle(ctx))
	c.at = c.at.Add(time.Minute)
	require.NoError(t, svc.runCycle(ctx))
	assert.Equal(t, 2, every.runs)
	assert.Equal(t, 1, hourly.runs)

	c.at = c.at.Add(time.Hour)
	require.NoError(t, svc.runCycle(ctx))
	assert.Equal(t, 3, every.runs)
	assert.Equal(t, 2, hourly.runs)
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	job := &testJob{name: "checkout-expiry"}
	svc, _ := newTestService(t, &fakeLock{held: true}, m, map[Job]time.Duration{}, job)

	require.NoError(t, svc.runCycle(context.Background()))
	assert.Equal(t, 0, job.runs)
	assert.Equal(t, defaultInterval, svc.interval)

	// nothing ran, so the job is still due on the next cycle
	assert.Len(t, svc.dueJobs(), 1)
}

func TestRunCycleDoesNotLockWhenNothingDue(t *testing.T) {
	hourly := &testJob{name: "outbox-retention"}
	lock := &fakeLock{}
	svc, c := newTestService(t, lock, nil, map[Job]time.Duration{hourly: time.Hour}, hourly)

	require.NoError(t, svc.runCycle(context.Background()))
	c.at = c.at.Add(time.Minute)
	require.NoError(t, svc.runCycle(context.Background()))

	assert.Equal(t, 1, lock.acquires)
}

func TestRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "checkout-expiry"}
	svc, _ := newTestService(t, &fakeLock{}, nil, map[Job]time.Duration{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewServiceValidates(t *testing.T) {
	logg := logger.New(logger.Options{})
	_, err := NewService(ServiceParams{Registry: NewRegistry(), Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logg, Registry: NewRegistry()})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: logg, Lock: &fakeLock{}})
	assert.Error(t, err)
}
