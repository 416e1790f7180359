package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kitsuneprints/storefront-backend/api/controllers"
	analyticscontrollers "github.com/kitsuneprints/storefront-backend/api/controllers/analytics"
	"github.com/kitsuneprints/storefront-backend/api/middleware"
	"github.com/kitsuneprints/storefront-backend/internal/analytics"
	"github.com/kitsuneprints/storefront-backend/internal/auth"
	"github.com/kitsuneprints/storefront-backend/internal/categories"
	"github.com/kitsuneprints/storefront-backend/internal/coupons"
	"github.com/kitsuneprints/storefront-backend/internal/dashboard"
	"github.com/kitsuneprints/storefront-backend/internal/orders"
	"github.com/kitsuneprints/storefront-backend/internal/paymentmethods"
	"github.com/kitsuneprints/storefront-backend/internal/payments"
	"github.com/kitsuneprints/storefront-backend/internal/products"
	"github.com/kitsuneprints/storefront-backend/internal/reviews"
	"github.com/kitsuneprints/storefront-backend/pkg/auth/session"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/metrics"
	pkgredis "github.com/kitsuneprints/storefront-backend/pkg/redis"
)

type pinger interface {
	Ping(context.Context) error
}

type counterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Deps carries everything the router mounts. Nil services leave their
// routes unmounted; nil pingers are skipped by the readiness probe.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *prometheus.Registry

	DB       pinger
	Redis    *pkgredis.Client
	Storage  pinger
	BigQuery pinger
	PubSub   pinger

	Sessions session.AccessSessionChecker
	Auth     auth.Service

	Products       *products.Service
	Categories     *categories.Service
	Reviews        *reviews.Service
	Orders         *orders.Service
	Payments       *payments.Service
	Coupons        *coupons.Service
	PaymentMethods *paymentmethods.Catalog
	Dashboard      *dashboard.Service
	Analytics      analytics.Service
}

// NewRouter assembles the public storefront and admin HTTP surface.
func NewRouter(d Deps) http.Handler {
	cfg := d.Config
	logg := d.Logger

	var (
		limiter     counterStore
		idempotency pkgredis.IdempotencyStore
		cache       pinger
	)
	if d.Redis != nil {
		limiter = d.Redis
		idempotency = d.Redis
		cache = d.Redis
	}

	var httpMetrics *metrics.HTTPMetrics
	if d.Registry != nil {
		httpMetrics = metrics.NewHTTPMetrics(d.Registry)
	}

	r := chi.NewRouter()
	r.Use(
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(httpMetrics),
	)

	loginPolicy := middleware.NewRateLimitPolicy("login", cfg.RateLimit.LoginWindow, cfg.RateLimit.LoginIPLimit, cfg.RateLimit.LoginEmailLimit)
	trackPolicy := middleware.NewRateLimitPolicy("track", cfg.RateLimit.TrackingWindow, cfg.RateLimit.TrackingIPLimit, 0)
	couponPolicy := middleware.NewRateLimitPolicy("coupon", cfg.RateLimit.CouponWindow, cfg.RateLimit.CouponIPLimit, 0)
	reviewPolicy := middleware.NewRateLimitPolicy("review", cfg.RateLimit.ReviewWindow, cfg.RateLimit.ReviewIPLimit, 0)

	checks := []controllers.ReadinessCheck{
		{Name: "database", Pinger: d.DB},
		{Name: "redis", Pinger: cache},
		{Name: "storage", Pinger: d.Storage},
		{Name: "bigquery", Pinger: d.BigQuery},
		{Name: "pubsub", Pinger: d.PubSub},
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, checks, logg))
	})
	if d.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotency, logg))

		if d.Products != nil {
			r.Get("/products", controllers.ListProducts(d.Products, logg))
			r.Get("/products/{productId}", controllers.GetProduct(d.Products, logg))
		}
		if d.Categories != nil {
			r.Get("/categories", controllers.ListCategories(d.Categories, logg))
		}
		if d.PaymentMethods != nil {
			r.Get("/payment-methods", controllers.ListPaymentMethods(d.PaymentMethods))
		}
		if d.Reviews != nil {
			r.Get("/products/{productId}/reviews", controllers.ListProductReviews(d.Reviews, logg))
			r.With(middleware.RateLimit(reviewPolicy, limiter, logg)).Post("/reviews", controllers.CreateReview(d.Reviews, logg))
		}
		if d.Orders != nil {
			r.Post("/orders", controllers.CreateOrder(d.Orders, logg))
			r.With(middleware.RateLimit(trackPolicy, limiter, logg)).Get("/orders/track", controllers.TrackOrder(d.Orders, logg))
			r.Post("/orders/{orderNumber}/payment", controllers.SubmitPayment(d.Orders, receiptLimit(cfg), logg))
		}
		if d.Coupons != nil {
			r.With(middleware.RateLimit(couponPolicy, limiter, logg)).Post("/coupons/validate", controllers.ValidateCoupon(d.Coupons, logg))
		}
	})

	r.Route("/api/admin/v1/auth", func(r chi.Router) {
		r.With(middleware.RateLimit(loginPolicy, limiter, logg)).Post("/login", controllers.AdminAuthLogin(d.Auth, logg))
		r.Post("/refresh", controllers.AdminAuthRefresh(d.Auth, logg))
		r.Post("/logout", controllers.AdminAuthLogout(d.Auth, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
		r.Use(middleware.RequireRole(logg, enums.AdminRoleAdmin))
		r.Use(middleware.Idempotency(idempotency, logg))

		if d.Dashboard != nil {
			r.Get("/dashboard", controllers.AdminDashboard(d.Dashboard, logg))
		}
		if d.Orders != nil {
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminListOrders(d.Orders, logg))
				r.Get("/{orderId}", controllers.AdminGetOrder(d.Orders, logg))
				r.Patch("/{orderId}/status", controllers.AdminUpdateOrderStatus(d.Orders, logg))
				r.Patch("/{orderId}/payment-status", controllers.AdminUpdatePaymentStatus(d.Orders, logg))
				r.Post("/{orderId}/confirm-payment", controllers.AdminConfirmPayment(d.Orders, logg))
			})
		}
		if d.Payments != nil {
			r.Get("/payment-verifications", controllers.AdminListVerifications(d.Payments, logg))
			r.Post("/payment-verifications/{id}/verify", controllers.AdminVerifyPayment(d.Payments, logg))
		}
		if d.Reviews != nil {
			r.Get("/reviews", controllers.AdminListReviews(d.Reviews, logg))
			r.Post("/reviews/{id}/moderate", controllers.AdminModerateReview(d.Reviews, logg))
			r.Delete("/reviews/{id}", controllers.AdminDeleteReview(d.Reviews, logg))
		}
		if d.Products != nil {
			r.Post("/products", controllers.AdminCreateProduct(d.Products, logg))
			r.Put("/products/{productId}", controllers.AdminUpdateProduct(d.Products, logg))
			r.Delete("/products/{productId}", controllers.AdminDeleteProduct(d.Products, logg))
		}
		if d.Categories != nil {
			r.Put("/categories/{slug}", controllers.AdminUpdateCategory(d.Categories, logg))
		}
		if d.Coupons != nil {
			r.Route("/coupons", func(r chi.Router) {
				r.Get("/", controllers.AdminListCoupons(d.Coupons, logg))
				r.Post("/", controllers.AdminCreateCoupon(d.Coupons, logg))
				r.Put("/{couponId}", controllers.AdminUpdateCoupon(d.Coupons, logg))
				r.Delete("/{couponId}", controllers.AdminDeactivateCoupon(d.Coupons, logg))
			})
		}
		if d.Analytics != nil {
			r.Get("/analytics/sales", analyticscontrollers.SalesReport(d.Analytics, logg))
		}
	})

	return r
}

func receiptLimit(cfg *config.Config) int64 {
	mb := cfg.GCS.MaxReceiptMB
	if mb <= 0 {
		mb = 10
	}
	return int64(mb) << 20
}
