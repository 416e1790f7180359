package routes

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/internal/auth"
	"github.com/kitsuneprints/storefront-backend/internal/dashboard"
	"github.com/kitsuneprints/storefront-backend/internal/paymentmethods"
	pkgAuth "github.com/kitsuneprints/storefront-backend/pkg/auth"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

type stubPinger struct {
	err error
}

func (s stubPinger) Ping(context.Context) error {
	return s.err
}

type stubSessions struct {
	ok bool
}

func (s stubSessions) HasSession(ctx context.Context, accessID string) (bool, error) {
	return s.ok, nil
}

type stubAuthService struct{}

func (stubAuthService) Login(ctx context.Context, req auth.LoginRequest) (*auth.LoginResponse, error) {
	return nil, errors.New("not implemented")
}

func (stubAuthService) Refresh(ctx context.Context, accessToken, refreshToken string) (*auth.TokenPair, error) {
	return nil, errors.New("not implemented")
}

func (stubAuthService) Logout(ctx context.Context, accessToken string) error {
	return nil
}

type stubStatsStore struct{}

func (stubStatsStore) OrdersByStatus(context.Context) (map[string]int64, error) {
	return map[string]int64{"pending": 2}, nil
}

func (stubStatsStore) OrdersByPaymentStatus(context.Context) (map[string]int64, error) {
	return map[string]int64{"pending": 2}, nil
}

func (stubStatsStore) PaidRevenue(context.Context) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (stubStatsStore) OrdersSince(context.Context, time.Time) (int64, error) {
	return 1, nil
}

func (stubStatsStore) PendingVerifications(context.Context) (int64, error) { return 0, nil }
func (stubStatsStore) PendingReviews(context.Context) (int64, error)       { return 0, nil }
func (stubStatsStore) OutOfStockProducts(context.Context) (int64, error)   { return 0, nil }

func (stubStatsStore) RecentOrders(context.Context, int) ([]models.Order, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0", CORSOrigins: []string{"http://localhost:3000"}},
		JWT: config.JWTConfig{
			Secret:                 "secret",
			Issuer:                 "issuer",
			ExpirationMinutes:      60,
			RefreshTokenTTLMinutes: 120,
		},
	}
}

func testDeps(t *testing.T, cfg *config.Config) Deps {
	t.Helper()
	dash, err := dashboard.NewService(stubStatsStore{}, time.UTC)
	if err != nil {
		t.Fatalf("dashboard service: %v", err)
	}
	return Deps{
		Config:         cfg,
		Logger:         logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard}),
		Registry:       prometheus.NewRegistry(),
		DB:             stubPinger{},
		Sessions:       stubSessions{ok: true},
		Auth:           stubAuthService{},
		PaymentMethods: paymentmethods.NewCatalog(config.PaymentAccountsConfig{CODEnabled: true}, "PKR"),
		Dashboard:      dash,
	}
}

func buildToken(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		AdminID: uuid.New(),
		Email:   "ops@kitsune.test",
		Role:    enums.AdminRoleAdmin,
		JTI:     uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	cfg := testConfig()
	deps := testDeps(t, cfg)
	router := NewRouter(deps)

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if got := resp.Header().Get("X-Storefront-Env"); got != "test" {
		t.Fatalf("unexpected env header %q", got)
	}

	resp = serve(router, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected ready got %d: %s", resp.Code, resp.Body.String())
	}

	deps.DB = stubPinger{err: errors.New("db down")}
	resp = serve(NewRouter(deps), httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "database") {
		t.Fatalf("expected failed check in body: %s", resp.Body.String())
	}
}

func TestMetricsEndpointExposesRequestCounts(t *testing.T) {
	router := NewRouter(testDeps(t, testConfig()))

	if resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/payment-methods", nil)); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "storefront_http_requests_total") {
		t.Fatalf("expected request counter in metrics output")
	}
	if !strings.Contains(body, `route="/api/v1/payment-methods"`) {
		t.Fatalf("expected route label in metrics output:\n%s", body)
	}
}

func TestUnconfiguredServicesAreNotMounted(t *testing.T) {
	router := NewRouter(testDeps(t, testConfig()))
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestAdminRoutesRequireToken(t *testing.T) {
	cfg := testConfig()
	router := NewRouter(testDeps(t, cfg))

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/admin/v1/dashboard", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg))
	resp = serve(router, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token got %d: %s", resp.Code, resp.Body.String())
	}
	if !strings.Contains(resp.Body.String(), `"todayOrders":1`) {
		t.Fatalf("unexpected dashboard body: %s", resp.Body.String())
	}
}

func TestAdminRoutesRejectRevokedSession(t *testing.T) {
	cfg := testConfig()
	deps := testDeps(t, cfg)
	deps.Sessions = stubSessions{ok: false}
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg))
	resp := serve(router, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked session got %d", resp.Code)
	}
}

func TestAdminAuthRoutesArePublic(t *testing.T) {
	router := NewRouter(testDeps(t, testConfig()))
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer token")
	resp := serve(router, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected logout to succeed got %d: %s", resp.Code, resp.Body.String())
	}
}
