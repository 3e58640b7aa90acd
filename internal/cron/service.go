package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/eventpass-backend/pkg/logger"
	"github.com/angelmondragon/eventpass-backend/pkg/metrics"
)

const defaultInterval = time.Minute

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval is the base tick; jobs with a longer cadence skip ticks until due.
	Interval time.Duration
}

// Service ticks on Interval and, while holding the cluster lock, runs every
// registered job that is due. A failing or panicking job never stops the others.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
	lastRun  map[string]time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.Lock == nil:
		return nil, errors.New("lock required")
	case params.Registry == nil:
		return nil, errors.New("registry required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      time.Now,
		lastRun:  map[string]time.Time{},
	}, nil
}

// Run blocks until ctx is canceled. The first cycle starts immediately.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	due := s.dueJobs()
	if len(due) == 0 {
		return nil
	}

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.metrics.CycleSkipped()
		s.logg.Debug(ctx, "cron.lock_held_elsewhere")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", relErr)
		}
	}()

	for _, job := range due {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.runJob(ctx, job)
	}
	return nil
}

func (s *Service) dueJobs() []Job {
	now := s.now()
	var due []Job
	for _, e := range s.registry.snapshot() {
		last, ran := s.lastRun[e.job.Name()]
		if !ran || e.every == 0 || now.Sub(last) >= e.every {
			due = append(due, e.job)
		}
	}
	return due
}

func (s *Service) runJob(ctx context.Context, job Job) {
	name := job.Name()
	jobCtx := s.logg.WithField(ctx, "job", name)
	start := s.now()
	// attempts count toward the cadence so a failing hourly job does not retry every tick.
	s.lastRun[name] = start

	outcome, err := s.invoke(jobCtx, job)
	finished := s.now()
	took := finished.Sub(start)
	s.metrics.ObserveRun(name, outcome, took, finished)

	jobCtx = s.logg.WithFields(jobCtx, map[string]any{"outcome": outcome, "duration_ms": took.Milliseconds()})
	if err != nil {
		s.logg.Error(jobCtx, "cron.job_failed", err)
		return
	}
	s.logg.Info(jobCtx, "cron.job_completed")
}

func (s *Service) invoke(ctx context.Context, job Job) (outcome string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome, err = metrics.OutcomePanic, fmt.Errorf("job %s panicked: %v", job.Name(), rec)
		}
	}()
	if err := job.Run(ctx); err != nil {
		return metrics.OutcomeFailure, err
	}
	return metrics.OutcomeSuccess, nil
}
