package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kitsuneprints/storefront-backend/internal/analytics/query"
	"github.com/kitsuneprints/storefront-backend/internal/analytics/types"
	"github.com/kitsuneprints/storefront-backend/pkg/bigquery"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

const reportKeyPrefix = "sf:analytics:sales:"

// Service provides sales reports based on order events.
type Service interface {
	Report(ctx context.Context, req types.SalesReportRequest) (*types.SalesReport, error)
}

// ReportCache holds rendered reports between dashboard refreshes.
type ReportCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// ServiceParams configures the sales report service. Cache is optional.
type ServiceParams struct {
	Client   *bigquery.Client
	Project  string
	Dataset  string
	Table    string
	Cache    ReportCache
	CacheTTL time.Duration
	Logger   *logger.Logger
}

type service struct {
	sales query.SalesService
	cache ReportCache
	ttl   time.Duration
	logg  *logger.Logger
}

// NewService builds the BigQuery-backed report service.
func NewService(p ServiceParams) (Service, error) {
	if p.Client == nil {
		return nil, errors.New("bigquery client required")
	}
	sales, err := query.NewSalesService(p.Client, p.Project, p.Dataset, p.Table)
	if err != nil {
		return nil, err
	}
	return newService(sales, p.Cache, p.CacheTTL, p.Logger), nil
}

func newService(sales query.SalesService, cache ReportCache, ttl time.Duration, logg *logger.Logger) *service {
	if ttl <= 0 {
		cache = nil
	}
	return &service{sales: sales, cache: cache, ttl: ttl, logg: logg}
}

// Report serves a cached copy when the same window, rounded to the cache
// ttl, was computed recently. Cache failures fall through to BigQuery.
func (s *service) Report(ctx context.Context, req types.SalesReportRequest) (*types.SalesReport, error) {
	if s.cache == nil {
		return s.sales.Report(ctx, req)
	}

	key := s.cacheKey(req)
	if cached, ok := s.lookup(ctx, key); ok {
		return cached, nil
	}

	report, err := s.sales.Report(ctx, req)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(report); err == nil {
		if err := s.cache.Set(ctx, key, string(payload), s.ttl); err != nil {
			s.warn(ctx, "cache sales report", err)
		}
	}
	return report, nil
}

func (s *service) lookup(ctx context.Context, key string) (*types.SalesReport, bool) {
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.warn(ctx, "read cached sales report", err)
		}
		return nil, false
	}
	var report types.SalesReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		s.warn(ctx, "decode cached sales report", err)
		return nil, false
	}
	return &report, true
}

func (s *service) cacheKey(req types.SalesReportRequest) string {
	return fmt.Sprintf("%s%d:%d", reportKeyPrefix,
		req.Start.Truncate(s.ttl).Unix(),
		req.End.Truncate(s.ttl).Unix(),
	)
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
	}
}
