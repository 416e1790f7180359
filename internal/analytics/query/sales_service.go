package query

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cloudbigquery "cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/kitsuneprints/storefront-backend/internal/analytics/types"
	"github.com/kitsuneprints/storefront-backend/pkg/bigquery"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
)

// revenueClause matches events that represent money received: a verified
// prepayment or a COD order delivered and marked paid.
const revenueClause = `(
    event_type = 'order.payment_verified'
    OR (event_type = 'order.status_changed'
        AND payment_method = 'cod'
        AND order_status = 'delivered'
        AND payment_status = 'paid')
  )`

const (
	ordersSeriesSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  CAST(COUNT(DISTINCT order_id) AS FLOAT64) AS value
FROM %s
WHERE event_type = 'order.created'
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	revenueSeriesSQL = `
SELECT
  FORMAT_DATE('%%F', DATE(occurred_at)) AS day,
  CAST(SUM(COALESCE(total, 0)) AS FLOAT64) AS value
FROM %s
WHERE %s
  AND occurred_at BETWEEN @start AND @end
GROUP BY day
ORDER BY day ASC
`

	revenueByMethodSQL = `
SELECT
  payment_method AS label,
  CAST(SUM(COALESCE(total, 0)) AS FLOAT64) AS value
FROM %s
WHERE %s
  AND occurred_at BETWEEN @start AND @end
GROUP BY label
ORDER BY value DESC
`

	aovSQL = `
SELECT CAST(SAFE_DIVIDE(SUM(COALESCE(total, 0)), NULLIF(COUNT(DISTINCT order_id), 0)) AS FLOAT64) AS value
FROM %s
WHERE %s
  AND occurred_at BETWEEN @start AND @end
`

	closedOrdersSQL = `
SELECT
  COUNT(DISTINCT IF(event_type = 'order.expired', order_id, NULL)) AS expired_orders,
  COUNT(DISTINCT IF(event_type = 'order.status_changed' AND order_status = 'cancelled', order_id, NULL)) AS cancelled_orders
FROM %s
WHERE occurred_at BETWEEN @start AND @end
`
)

type rowIterator interface {
	Next(dst any) error
}

// SalesService reports sales figures from the order_events table.
type SalesService interface {
	Report(ctx context.Context, req types.SalesReportRequest) (*types.SalesReport, error)
}

type salesService struct {
	run      func(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (rowIterator, error)
	tableRef string
}

// NewSalesService builds a service backed by BigQuery.
func NewSalesService(client *bigquery.Client, project, dataset, table string) (SalesService, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if project == "" || dataset == "" || table == "" {
		return nil, fmt.Errorf("project, dataset, and table are required")
	}
	return &salesService{
		run: func(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (rowIterator, error) {
			it, err := client.Query(ctx, sql, params)
			if err != nil {
				return nil, err
			}
			return it, nil
		},
		tableRef: tableRef(project, dataset, table),
	}, nil
}

func tableRef(project, dataset, table string) string {
	return fmt.Sprintf("`%s.%s.%s`", strings.TrimSpace(project), strings.TrimSpace(dataset), strings.TrimSpace(table))
}

func (s *salesService) Report(ctx context.Context, req types.SalesReportRequest) (*types.SalesReport, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	params := baseParams(req)

	orders, err := s.querySeries(ctx, fmt.Sprintf(ordersSeriesSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}
	revenue, err := s.querySeries(ctx, fmt.Sprintf(revenueSeriesSQL, s.tableRef, revenueClause), params)
	if err != nil {
		return nil, err
	}
	byMethod, err := s.queryLabels(ctx, fmt.Sprintf(revenueByMethodSQL, s.tableRef, revenueClause), params)
	if err != nil {
		return nil, err
	}
	aov, err := s.queryAOV(ctx, fmt.Sprintf(aovSQL, s.tableRef, revenueClause), params)
	if err != nil {
		return nil, err
	}
	expired, cancelled, err := s.queryClosed(ctx, fmt.Sprintf(closedOrdersSQL, s.tableRef), params)
	if err != nil {
		return nil, err
	}

	return &types.SalesReport{
		Orders:          orders,
		Revenue:         revenue,
		RevenueByMethod: byMethod,
		AOV:             aov,
		ExpiredOrders:   expired,
		CancelledOrders: cancelled,
	}, nil
}

func validateRequest(req types.SalesReportRequest) error {
	if req.Start.IsZero() || req.End.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "start and end are required")
	}
	if req.End.Before(req.Start) {
		return pkgerrors.New(pkgerrors.CodeValidation, "end must be after start")
	}
	return nil
}

func baseParams(req types.SalesReportRequest) []cloudbigquery.QueryParameter {
	return []cloudbigquery.QueryParameter{
		{Name: "start", Value: req.Start.UTC()},
		{Name: "end", Value: req.End.UTC()},
	}
}

func (s *salesService) querySeries(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.TimeSeriesPoint, error) {
	iter, err := s.run(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query series: %w", err)
	}

	points := []types.TimeSeriesPoint{}
	for {
		var row struct {
			Day   string  `bigquery:"day"`
			Value float64 `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("reading series row: %w", err)
		}
		points = append(points, types.TimeSeriesPoint{Date: row.Day, Value: row.Value})
	}
	return points, nil
}

func (s *salesService) queryLabels(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) ([]types.LabelValue, error) {
	iter, err := s.run(ctx, sql, params)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}

	result := []types.LabelValue{}
	for {
		var row struct {
			Label string  `bigquery:"label"`
			Value float64 `bigquery:"value"`
		}
		if err := iter.Next(&row); err != nil {
			if errors.Is(err, iterator.Done) {
				break
			}
			return nil, fmt.Errorf("reading label row: %w", err)
		}
		result = append(result, types.LabelValue{Label: row.Label, Value: row.Value})
	}
	return result, nil
}

func (s *salesService) queryAOV(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (float64, error) {
	iter, err := s.run(ctx, sql, params)
	if err != nil {
		return 0, fmt.Errorf("query aov: %w", err)
	}
	var row struct {
		Value cloudbigquery.NullFloat64 `bigquery:"value"`
	}
	if err := iter.Next(&row); err != nil {
		if errors.Is(err, iterator.Done) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading aov row: %w", err)
	}
	if !row.Value.Valid {
		return 0, nil
	}
	return row.Value.Float64, nil
}

func (s *salesService) queryClosed(ctx context.Context, sql string, params []cloudbigquery.QueryParameter) (int64, int64, error) {
	iter, err := s.run(ctx, sql, params)
	if err != nil {
		return 0, 0, fmt.Errorf("query closed orders: %w", err)
	}
	var row struct {
		Expired   int64 `bigquery:"expired_orders"`
		Cancelled int64 `bigquery:"cancelled_orders"`
	}
	if err := iter.Next(&row); err != nil {
		if errors.Is(err, iterator.Done) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("reading closed orders row: %w", err)
	}
	return row.Expired, row.Cancelled, nil
}
