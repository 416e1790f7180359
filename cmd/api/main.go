package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/kitsuneprints/storefront-backend/api"
	"github.com/kitsuneprints/storefront-backend/api/routes"
	"github.com/kitsuneprints/storefront-backend/internal/analytics"
	"github.com/kitsuneprints/storefront-backend/internal/auth"
	"github.com/kitsuneprints/storefront-backend/internal/bootstrap"
	"github.com/kitsuneprints/storefront-backend/internal/orders"
	"github.com/kitsuneprints/storefront-backend/internal/users"
	"github.com/kitsuneprints/storefront-backend/pkg/auth/session"
	"github.com/kitsuneprints/storefront-backend/pkg/bigquery"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/instance"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/migrate"
	"github.com/kitsuneprints/storefront-backend/pkg/redis"
	"github.com/kitsuneprints/storefront-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	requireResource(ctx, logg, "gcs", err)
	defer func() {
		if err := gcsClient.Close(); err != nil {
			logg.Error(ctx, "error closing gcs client", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// the confirmation email is best effort; the worker resends from the
	// order.created event if this one is skipped
	var notifier orders.ConfirmationSender
	if dispatcher, err := bootstrap.NewDispatcher(cfg, logg, dbClient, registry); err != nil {
		logg.Warn(logg.WithField(ctx, "error", err.Error()), "order confirmation emails disabled in api")
	} else {
		notifier = dispatcher
	}

	svcs, err := bootstrap.NewServices(bootstrap.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Uploader: gcsClient,
		Notifier: notifier,
	})
	requireResource(ctx, logg, "domain services", err)

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	requireResource(ctx, logg, "session manager", err)

	authService, err := auth.NewService(auth.ServiceParams{
		AdminRepo:      users.NewRepository(dbClient.DB()),
		SessionManager: sessionManager,
		JWTConfig:      cfg.JWT,
		Password:       &cfg.Password,
		Logger:         logg,
	})
	requireResource(ctx, logg, "auth service", err)

	deps := routes.Deps{
		Config:         cfg,
		Logger:         logg,
		Registry:       registry,
		DB:             dbClient,
		Redis:          redisClient,
		Storage:        gcsClient,
		Sessions:       sessionManager,
		Auth:           authService,
		Products:       svcs.Products,
		Categories:     svcs.Categories,
		Reviews:        svcs.Reviews,
		Orders:         svcs.Orders,
		Payments:       svcs.Payments,
		Coupons:        svcs.Coupons,
		PaymentMethods: svcs.PaymentMethods,
		Dashboard:      svcs.Dashboard,
	}

	if cfg.BigQuery.Enabled {
		bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg)
		requireResource(ctx, logg, "bigquery", err)
		defer func() {
			if err := bqClient.Close(); err != nil {
				logg.Error(ctx, "error closing bigquery client", err)
			}
		}()
		requireResource(ctx, logg, "bigquery orders table", bqClient.EnsureOrdersTable(ctx, nil))
		analyticsService, err := analytics.NewService(analytics.ServiceParams{
			Client:   bqClient,
			Project:  cfg.GCP.ProjectID,
			Dataset:  cfg.BigQuery.Dataset,
			Table:    cfg.BigQuery.OrdersTable,
			Cache:    redisClient,
			CacheTTL: cfg.BigQuery.ReportCacheTTL,
			Logger:   logg,
		})
		requireResource(ctx, logg, "analytics service", err)
		deps.BigQuery = bqClient
		deps.Analytics = analyticsService
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.ID("api"),
	})
	logg.Info(runCtx, "starting api server")

	if err := api.Serve(runCtx, api.NewServer(addr, routes.NewRouter(deps)), logg); err != nil {
		logg.Error(runCtx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "api server stopped")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
