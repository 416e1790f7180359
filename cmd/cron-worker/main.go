package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kitsuneprints/storefront-backend/internal/bootstrap"
	"github.com/kitsuneprints/storefront-backend/internal/cron"
	"github.com/kitsuneprints/storefront-backend/internal/notifications"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/instance"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/metrics"
	"github.com/kitsuneprints/storefront-backend/pkg/migrate"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := context.Background()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		requireResource(ctx, logg, "dev migrations", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	svcs, err := bootstrap.NewServices(bootstrap.Params{Config: cfg, Logger: logg, DB: dbClient})
	requireResource(ctx, logg, "domain services", err)

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	registry, err := buildRegistry(cfg, logg, dbClient, svcs, jobMetrics)
	requireResource(ctx, logg, "cron jobs", err)

	lock, err := cron.NewRedisLock(redisClient, 0)
	requireResource(ctx, logg, "cron lock", err)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
	})
	requireResource(ctx, logg, "cron service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(cfg.Service.Kind),
	})

	logg.Info(runCtx, "starting cron worker")
	metrics.Serve(runCtx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg)

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, svcs *bootstrap.Services, jobMetrics *metrics.CronJobMetrics) (*cron.Registry, error) {
	sweep := cron.SweepJobParams{
		Logger:      logg,
		Orders:      svcs.Orders,
		Metrics:     jobMetrics,
		RemindAfter: cfg.Scheduler.ReminderAfter,
		ExpireAfter: cfg.Scheduler.ExpireAfter,
	}
	reminder, err := cron.NewPaymentReminderJob(sweep)
	if err != nil {
		return nil, fmt.Errorf("payment reminder job: %w", err)
	}
	expiry, err := cron.NewOrderExpiryJob(sweep)
	if err != nil {
		return nil, fmt.Errorf("order expiry job: %w", err)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outbox.NewRepository(dbClient.DB()),
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	notificationCleanup, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notifications.NewRepository(dbClient.DB()),
		Retention:  cfg.Notifications.LogRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("notification cleanup job: %w", err)
	}

	registry := cron.NewRegistry()
	registry.Register(reminder, cfg.Scheduler.ReminderInterval)
	registry.Register(expiry, cfg.Scheduler.ExpiryInterval)
	registry.Register(outboxRetention, cfg.Scheduler.RetentionInterval)
	registry.Register(notificationCleanup, cfg.Scheduler.RetentionInterval)
	return registry, nil
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
