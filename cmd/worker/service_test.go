package main

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error { return s.err }

type blockingConsumer struct {
	started atomic.Int32
}

func (b *blockingConsumer) Run(ctx context.Context) error {
	b.started.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

type failingConsumer struct {
	err error
}

func (f failingConsumer) Run(context.Context) error { return f.err }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "worker-test", Output: io.Discard})
}

func TestNewServiceValidates(t *testing.T) {
	if _, err := NewService(ServiceParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected error without consumers")
	}
	if _, err := NewService(ServiceParams{Logger: testLogger(), Consumers: []Consumer{{Name: "notifications"}}}); err == nil {
		t.Fatal("expected error for consumer without runner")
	}
}

func TestRunFailsWhenDependencyDown(t *testing.T) {
	c := &blockingConsumer{}
	svc, err := NewService(ServiceParams{
		Logger:       testLogger(),
		Dependencies: []Dependency{{Name: "database", Pinger: stubPinger{}}, {Name: "redis", Pinger: stubPinger{err: errors.New("down")}}},
		Consumers:    []Consumer{{Name: "notifications", Runner: c}},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
	if c.started.Load() != 0 {
		t.Fatal("consumer should not start when a dependency is down")
	}
}

func TestRunStopsAllConsumersOnFailure(t *testing.T) {
	blocking := &blockingConsumer{}
	boom := errors.New("subscription deleted")
	svc, err := NewService(ServiceParams{
		Logger: testLogger(),
		Consumers: []Consumer{
			{Name: "notifications", Runner: blocking},
			{Name: "analytics", Runner: failingConsumer{err: boom}},
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	select {
	case err := <-done:
		if !errors.Is(err, boom) {
			t.Fatalf("expected consumer error, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after consumer failure")
	}
}

func TestRunReturnsCanceledOnShutdown(t *testing.T) {
	blocking := &blockingConsumer{}
	svc, err := NewService(ServiceParams{Logger: testLogger(), Consumers: []Consumer{{Name: "notifications", Runner: blocking}}})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	for blocking.started.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
