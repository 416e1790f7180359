package cron

import (
	"context"
	"time"
)

// Job represents a scheduled task that runs inside the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Schedule pairs a job with the interval between its runs.
type Schedule struct {
	Job   Job
	Every time.Duration
}

// Registry tracks registered cron jobs.
type Registry struct {
	schedules []Schedule
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job that runs every interval. A non-positive interval
// falls back to the service default.
func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil {
		return
	}
	r.schedules = append(r.schedules, Schedule{Job: job, Every: every})
}

// Schedules returns the registered schedules in the order they were added.
func (r *Registry) Schedules() []Schedule {
	schedules := make([]Schedule, len(r.schedules))
	copy(schedules, r.schedules)
	return schedules
}

// Lookup finds a job by name.
func (r *Registry) Lookup(name string) (Job, bool) {
	for _, s := range r.schedules {
		if s.Job.Name() == name {
			return s.Job, true
		}
	}
	return nil, false
}
