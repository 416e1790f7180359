package cron

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/metrics"
)

const defaultInterval = 24 * time.Hour

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service executes registered cron jobs, each on its own cadence.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run starts one loop per registered job and blocks until ctx is canceled.
// Every job runs once immediately.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, schedule := range s.registry.Schedules() {
		g.Go(func() error {
			return s.loop(gctx, schedule)
		})
	}
	err := g.Wait()
	s.logg.Info(ctx, "cron service stopped")
	return err
}

// RunJob executes the named job once under its lock.
func (s *Service) RunJob(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown cron job %q", name)
	}
	return s.runLocked(ctx, job)
}

// loop runs schedule until ctx ends and returns the context error.
func (s *Service) loop(ctx context.Context, schedule Schedule) error {
	every := schedule.Every
	if every <= 0 {
		every = s.interval
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"job":      schedule.Job.Name(),
		"interval": every.String(),
	})
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		if err := s.runLocked(ctx, schedule.Job); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) runLocked(ctx context.Context, job Job) error {
	acquired, err := s.lock.Acquire(ctx, job.Name())
	switch {
	case err != nil:
		return fmt.Errorf("acquire lock for %s: %w", job.Name(), err)
	case !acquired:
		s.logg.Info(s.logg.WithField(ctx, "job", job.Name()), "job held by another instance, skipping")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx), job.Name()); err != nil {
			s.logg.Error(ctx, "release cron lock", err)
		}
	}()
	return s.runJob(ctx, job)
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	s.logg.Debug(ctx, "job started")
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	s.metrics.ObserveRun(job.Name(), elapsed, err)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.Name(), err)
	}
	s.logg.Info(s.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds()), "job completed")
	return nil
}
