// Package bootstrap assembles the domain services shared by the binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kitsuneprints/storefront-backend/internal/categories"
	"github.com/kitsuneprints/storefront-backend/internal/coupons"
	"github.com/kitsuneprints/storefront-backend/internal/dashboard"
	"github.com/kitsuneprints/storefront-backend/internal/notifications"
	"github.com/kitsuneprints/storefront-backend/internal/orders"
	"github.com/kitsuneprints/storefront-backend/internal/paymentmethods"
	"github.com/kitsuneprints/storefront-backend/internal/payments"
	"github.com/kitsuneprints/storefront-backend/internal/products"
	"github.com/kitsuneprints/storefront-backend/internal/reviews"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/email"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/metrics"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/storage/gcs"
	"github.com/kitsuneprints/storefront-backend/pkg/whatsapp"
)

// Params are the infrastructure handles the services are built on.
type Params struct {
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client
	// Uploader stores payment receipts. Nil makes payment submission fail
	// with a dependency error.
	Uploader gcs.Uploader
	// Notifier sends the awaited order confirmation. Nil skips it.
	Notifier orders.ConfirmationSender
}

// Services is the wired domain layer.
type Services struct {
	ProductRepo    *products.Repository
	OrderRepo      *orders.Repository
	Outbox         *outbox.Service
	Products       *products.Service
	Categories     *categories.Service
	Coupons        *coupons.Service
	PaymentMethods *paymentmethods.Catalog
	Orders         *orders.Service
	Payments       *payments.Service
	Reviews        *reviews.Service
	Dashboard      *dashboard.Service
}

// NewServices wires every domain service against one database client.
func NewServices(p Params) (*Services, error) {
	if p.Config == nil {
		return nil, errors.New("config is required")
	}
	if p.DB == nil {
		return nil, errors.New("database client is required")
	}
	cfg := p.Config
	conn := p.DB.DB()

	productRepo := products.NewRepository(conn)
	productSvc, err := products.NewService(products.ServiceParams{Repo: productRepo, TxRunner: p.DB, Logger: p.Logger})
	if err != nil {
		return nil, fmt.Errorf("products service: %w", err)
	}
	categorySvc, err := categories.NewService(categories.NewRepository(conn), productRepo)
	if err != nil {
		return nil, fmt.Errorf("categories service: %w", err)
	}
	couponSvc, err := coupons.NewService(coupons.NewRepository(conn), p.Logger, cfg.Shop.Currency)
	if err != nil {
		return nil, fmt.Errorf("coupons service: %w", err)
	}
	catalog := paymentmethods.NewCatalog(cfg.PaymentAccounts, cfg.Shop.Currency)
	emitter := outbox.NewService(outbox.NewRepository(conn), p.Logger)

	uploader := p.Uploader
	if uploader == nil {
		uploader = unavailableUploader{}
	}
	orderRepo := orders.NewRepository(conn)
	verifications := orders.NewVerificationRepository(conn)
	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:            orderRepo,
		Verifications:   verifications,
		Catalog:         productRepo,
		Coupons:         couponSvc,
		Instructions:    catalog,
		Uploader:        uploader,
		Outbox:          emitter,
		Notifier:        p.Notifier,
		TxRunner:        p.DB,
		Shop:            cfg.Shop,
		MaxReceiptBytes: int64(cfg.GCS.MaxReceiptMB) << 20,
		Logger:          p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("orders service: %w", err)
	}
	paymentSvc, err := payments.NewService(verifications, orderSvc, p.DB, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}
	reviewSvc, err := reviews.NewService(reviews.ServiceParams{
		Repo:     reviews.NewRepository(conn),
		Products: productRepo,
		Orders:   orderRepo,
		TxRunner: p.DB,
		Logger:   p.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("reviews service: %w", err)
	}
	dashboardSvc, err := dashboard.NewService(dashboard.NewRepository(conn), cfg.Shop.Location())
	if err != nil {
		return nil, fmt.Errorf("dashboard service: %w", err)
	}

	return &Services{
		ProductRepo:    productRepo,
		OrderRepo:      orderRepo,
		Outbox:         emitter,
		Products:       productSvc,
		Categories:     categorySvc,
		Coupons:        couponSvc,
		PaymentMethods: catalog,
		Orders:         orderSvc,
		Payments:       paymentSvc,
		Reviews:        reviewSvc,
		Dashboard:      dashboardSvc,
	}, nil
}

// NewDispatcher builds the notification dispatcher from the SendGrid and
// Twilio settings. WhatsApp is wired only when the feature flag is on.
func NewDispatcher(cfg *config.Config, logg *logger.Logger, client *db.Client, reg prometheus.Registerer) (*notifications.Dispatcher, error) {
	renderer, err := notifications.NewRenderer(cfg.Shop)
	if err != nil {
		return nil, fmt.Errorf("notification templates: %w", err)
	}
	mailer, err := email.NewClient(cfg.Sendgrid, logg)
	if err != nil {
		return nil, fmt.Errorf("sendgrid client: %w", err)
	}

	var sender whatsapp.Sender
	if cfg.FeatureFlags.WhatsAppEnabled {
		wa, err := whatsapp.NewClient(cfg.Twilio, cfg.Shop.DefaultCountryCode, logg)
		if err != nil {
			return nil, fmt.Errorf("twilio client: %w", err)
		}
		sender = wa
	}

	return notifications.NewDispatcher(notifications.DispatcherParams{
		Renderer:        renderer,
		Email:           mailer,
		WhatsApp:        sender,
		WhatsAppEnabled: cfg.FeatureFlags.WhatsAppEnabled,
		Log:             notifications.NewRepository(client.DB()),
		Instructions:    paymentmethods.NewCatalog(cfg.PaymentAccounts, cfg.Shop.Currency),
		Config:          cfg.Notifications,
		Metrics:         metrics.NewNotificationMetrics(reg),
		Logger:          logg,
	})
}

type unavailableUploader struct{}

func (unavailableUploader) Upload(context.Context, string, string, io.Reader) (string, error) {
	return "", pkgerrors.New(pkgerrors.CodeDependency, "receipt storage is not configured")
}
