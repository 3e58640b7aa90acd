package cron

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Job is one unit of scheduled work in the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job   Job
	every time.Duration
}

// Registry holds jobs and how often each should run. A zero cadence means
// every cycle of the service.
type Registry struct {
	entries []entry
	names   map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{names: map[string]struct{}{}}
}

// Register adds job. Names must be unique because they key metrics, logs and schedules.
func (r *Registry) Register(job Job, every time.Duration) error {
	if job == nil {
		return errors.New("job is required")
	}
	name := job.Name()
	if name == "" {
		return errors.New("job name is required")
	}
	if every < 0 {
		return fmt.Errorf("job %s: negative cadence", name)
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("job %s already registered", name)
	}
	r.names[name] = struct{}{}
	r.entries = append(r.entries, entry{job: job, every: every})
	return nil
}

// Jobs returns the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.entries))
	for _, e := range r.entries {
		jobs = append(jobs, e.job)
	}
	return jobs
}

func (r *Registry) snapshot() []entry {
	return append([]entry(nil), r.entries...)
}
