package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/kitsuneprints/storefront-backend/internal/orders"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/metrics"
)

const (
	// PaymentReminderJobName identifies the reminder sweep.
	PaymentReminderJobName = "payment-reminder"
	// OrderExpiryJobName identifies the expiry sweep.
	OrderExpiryJobName = "order-expiry"

	defaultRemindAfter    = 24 * time.Hour
	defaultExpireAfter    = 48 * time.Hour
	defaultSweepBatchSize = 500
)

type orderSweeper interface {
	SweepCandidates(ctx context.Context, window orders.SweepWindow) ([]uuid.UUID, error)
	SendPaymentReminder(ctx context.Context, id uuid.UUID, window orders.SweepWindow, at time.Time) (bool, error)
	ExpireOrder(ctx context.Context, id uuid.UUID, createdBefore, at time.Time) (bool, error)
}

// SweepJobParams configure the reminder and expiry sweeps.
type SweepJobParams struct {
	Logger      *logger.Logger
	Orders      orderSweeper
	Metrics     *metrics.CronJobMetrics
	RemindAfter time.Duration
	ExpireAfter time.Duration
	BatchSize   int
}

type sweepJob struct {
	name        string
	logg        *logger.Logger
	orders      orderSweeper
	metrics     *metrics.CronJobMetrics
	remindAfter time.Duration
	expireAfter time.Duration
	batchSize   int
	now         func() time.Time
	// visit handles one candidate and reports whether it was still eligible.
	visit func(ctx context.Context, id uuid.UUID, window orders.SweepWindow, at time.Time) (bool, error)
	// window selects the candidates at now.
	window func(now time.Time) orders.SweepWindow
}

// NewPaymentReminderJob builds the sweep that reminds customers of unpaid
// orders aged between RemindAfter and ExpireAfter.
func NewPaymentReminderJob(params SweepJobParams) (Job, error) {
	j, err := newSweepJob(PaymentReminderJobName, params)
	if err != nil {
		return nil, err
	}
	j.window = func(now time.Time) orders.SweepWindow {
		return orders.ReminderWindow(now, j.remindAfter, j.expireAfter, j.batchSize)
	}
	j.visit = j.orders.SendPaymentReminder
	return j, nil
}

// NewOrderExpiryJob builds the sweep that cancels unpaid orders older than
// ExpireAfter.
func NewOrderExpiryJob(params SweepJobParams) (Job, error) {
	j, err := newSweepJob(OrderExpiryJobName, params)
	if err != nil {
		return nil, err
	}
	j.window = func(now time.Time) orders.SweepWindow {
		return orders.ExpiryWindow(now, j.expireAfter, j.batchSize)
	}
	j.visit = func(ctx context.Context, id uuid.UUID, window orders.SweepWindow, at time.Time) (bool, error) {
		return j.orders.ExpireOrder(ctx, id, window.CreatedBefore, at)
	}
	return j, nil
}

func newSweepJob(name string, params SweepJobParams) (*sweepJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	remindAfter := params.RemindAfter
	if remindAfter <= 0 {
		remindAfter = defaultRemindAfter
	}
	expireAfter := params.ExpireAfter
	if expireAfter <= 0 {
		expireAfter = defaultExpireAfter
	}
	if remindAfter >= expireAfter {
		return nil, fmt.Errorf("reminder age %s must be below expiry age %s", remindAfter, expireAfter)
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}
	return &sweepJob{
		name:        name,
		logg:        params.Logger,
		orders:      params.Orders,
		metrics:     params.Metrics,
		remindAfter: remindAfter,
		expireAfter: expireAfter,
		batchSize:   batch,
		now:         time.Now,
	}, nil
}

func (j *sweepJob) Name() string { return j.name }

// Run visits every candidate once. A failing order is logged and the loop
// moves on; failures are combined into the returned error.
func (j *sweepJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	window := j.window(now)
	ids, err := j.orders.SweepCandidates(ctx, window)
	if err != nil {
		return fmt.Errorf("%s candidates: %w", j.name, err)
	}

	var errs error
	processed, skipped, failed := 0, 0, 0
	for _, id := range ids {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			break
		}
		ok, err := j.visit(ctx, id, window, now)
		switch {
		case err != nil:
			failed++
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", id, err))
			j.logg.Error(j.logg.WithField(ctx, "order_id", id.String()), "sweep order failed", err)
		case ok:
			processed++
		default:
			skipped++
		}
	}

	j.metrics.AddSweptOrders(j.name, "processed", processed)
	j.metrics.AddSweptOrders(j.name, "skipped", skipped)
	j.metrics.AddSweptOrders(j.name, "failed", failed)

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"candidates":     len(ids),
		"processed":      processed,
		"skipped":        skipped,
		"failed":         failed,
		"created_before": window.CreatedBefore,
	})
	if len(ids) == j.batchSize {
		j.logg.Warn(logCtx, "sweep batch full; remaining orders wait for the next run")
	}
	j.logg.Info(logCtx, "sweep complete")
	return errs
}
