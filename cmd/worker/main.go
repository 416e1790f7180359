package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kitsuneprints/storefront-backend/internal/analytics"
	"github.com/kitsuneprints/storefront-backend/internal/analytics/types"
	analyticsworker "github.com/kitsuneprints/storefront-backend/internal/analytics/worker"
	"github.com/kitsuneprints/storefront-backend/internal/analytics/writer"
	"github.com/kitsuneprints/storefront-backend/internal/bootstrap"
	"github.com/kitsuneprints/storefront-backend/internal/notifications"
	"github.com/kitsuneprints/storefront-backend/pkg/bigquery"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/instance"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/metrics"
	"github.com/kitsuneprints/storefront-backend/pkg/migrate"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox/idempotency"
	"github.com/kitsuneprints/storefront-backend/pkg/pubsub"
	"github.com/kitsuneprints/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
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

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, pubsub.Consume, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "error closing pubsub client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	dispatcher, err := bootstrap.NewDispatcher(cfg, logg, dbClient, prometheus.DefaultRegisterer)
	requireResource(ctx, logg, "notification dispatcher", err)

	svcs, err := bootstrap.NewServices(bootstrap.Params{Config: cfg, Logger: logg, DB: dbClient})
	requireResource(ctx, logg, "domain services", err)

	notificationSub := pubsubClient.NotificationSubscription()
	if notificationSub == nil {
		requireResource(ctx, logg, "notification subscription", errors.New("subscription not configured"))
	}
	notificationConsumer, err := notifications.NewConsumer(dispatcher, svcs.Orders, notificationSub, manager, logg)
	requireResource(ctx, logg, "notification consumer", err)

	deps := []Dependency{
		{Name: "database", Pinger: dbClient},
		{Name: "redis", Pinger: redisClient},
		{Name: "pubsub", Pinger: pubsubClient},
	}
	consumers := []Consumer{{Name: "notifications", Runner: notificationConsumer}}

	if analyticsSub := pubsubClient.AnalyticsSubscription(); cfg.BigQuery.Enabled && analyticsSub != nil {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery", err)
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(ctx, "error closing bigquery client", err)
			}
		}()

		var schema cbigquery.Schema
		if cfg.BigQuery.AutoCreate {
			schema, err = types.OrderEventSchema()
			requireResource(ctx, logg, "order events schema", err)
		}
		requireResource(ctx, logg, "bigquery orders table", bqClient.EnsureOrdersTable(ctx, schema))

		analyticsWriter, err := writer.New(bqClient, writer.Config{OrdersTable: cfg.BigQuery.OrdersTable})
		requireResource(ctx, logg, "analytics writer", err)
		handler, err := analytics.NewHandler(analyticsWriter, logg)
		requireResource(ctx, logg, "analytics handler", err)
		analyticsConsumer, err := analyticsworker.NewService(analyticsSub, handler, manager, logg, func(err error) bool {
			return errors.Is(err, analytics.ErrUnsupportedEventType)
		})
		requireResource(ctx, logg, "analytics consumer", err)

		deps = append(deps, Dependency{Name: "bigquery", Pinger: bqClient})
		consumers = append(consumers, Consumer{Name: "analytics", Runner: analyticsConsumer})
	} else {
		logg.Info(ctx, "analytics sink disabled")
	}

	service, err := NewService(ServiceParams{Logger: logg, Dependencies: deps, Consumers: consumers})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(cfg.Service.Kind),
	})
	logg.Info(runCtx, "starting worker")
	metrics.Serve(runCtx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg)

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
