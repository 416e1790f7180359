package cron

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/metrics"
)

type fakeLock struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
	released []string
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: map[string]bool{}}
}

func (f *fakeLock) Acquire(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[name] {
		return false, nil
	}
	f.held[name] = true
	f.acquired = append(f.acquired, name)
	return true, nil
}

func (f *fakeLock) Release(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, name)
	f.released = append(f.released, name)
	return nil
}

type testJob struct {
	mu   sync.Mutex
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs++
	return t.err
}

func (t *testJob) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestServiceRunJobRecordsMetricsAndReleasesLock(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	lock := newFakeLock()
	registry := NewRegistry()
	ok := &testJob{name: "success"}
	bad := &testJob{name: "fail", err: errors.New("boom")}
	registry.Register(ok, time.Hour)
	registry.Register(bad, time.Hour)
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock, Metrics: m})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.RunJob(context.Background(), "success"); err != nil {
		t.Fatalf("run success: %v", err)
	}
	if err := service.RunJob(context.Background(), "fail"); err == nil {
		t.Fatal("expected failing job to return an error")
	}
	if err := service.RunJob(context.Background(), "missing"); err == nil {
		t.Fatal("expected unknown job error")
	}

	if ok.count() != 1 || bad.count() != 1 {
		t.Fatalf("expected one run each, got %d and %d", ok.count(), bad.count())
	}
	if len(lock.released) != 2 || len(lock.held) != 0 {
		t.Fatalf("expected both locks released, got %v", lock.released)
	}
	if got := runCount(t, reg, "success", "success"); got != 1 {
		t.Fatalf("expected one successful run, got %v", got)
	}
	if got := runCount(t, reg, "fail", "failure"); got != 1 {
		t.Fatalf("expected one failed run, got %v", got)
	}
}

func TestServiceSkipsJobWhenLockHeld(t *testing.T) {
	lock := newFakeLock()
	lock.held["payment-reminder"] = true
	job := &testJob{name: "payment-reminder"}
	registry := NewRegistry()
	registry.Register(job, time.Hour)
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: lock})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	if err := service.RunJob(context.Background(), "payment-reminder"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if job.count() != 0 {
		t.Fatalf("expected job to be skipped, ran %d", job.count())
	}
}

func TestServiceRunStartsEveryJobImmediately(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCronJobMetrics(reg)
	registry := NewRegistry()
	fast := &testJob{name: "fast"}
	slow := &testJob{name: "slow", err: errors.New("boom")}
	registry.Register(fast, 10*time.Millisecond)
	registry.Register(slow, time.Hour)
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: newFakeLock(), Metrics: m})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := service.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if fast.count() < 2 {
		t.Fatalf("expected fast job to tick repeatedly, ran %d", fast.count())
	}
	if slow.count() != 1 {
		t.Fatalf("expected slow job to run once at start, ran %d", slow.count())
	}
	if got := runCount(t, reg, "slow", "failure"); got != 1 {
		t.Fatalf("expected one failure for slow job, got %v", got)
	}
}

func TestServiceRunReturnsCancellation(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&testJob{name: "reminder"}, time.Hour)
	registry.Register(&testJob{name: "expiry"}, time.Hour)
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: registry, Lock: newFakeLock()})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func runCount(t *testing.T, reg *prometheus.Registry, job, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != "storefront_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			labels := map[string]string{}
			for _, label := range metric.GetLabel() {
				labels[label.GetName()] = label.GetValue()
			}
			if labels["job"] == job && labels["result"] == result {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
