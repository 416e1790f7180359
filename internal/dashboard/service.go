package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
)

const recentOrdersLimit = 10

type statsStore interface {
	OrdersByStatus(ctx context.Context) (map[string]int64, error)
	OrdersByPaymentStatus(ctx context.Context) (map[string]int64, error)
	PaidRevenue(ctx context.Context) (decimal.Decimal, error)
	OrdersSince(ctx context.Context, since time.Time) (int64, error)
	PendingVerifications(ctx context.Context) (int64, error)
	PendingReviews(ctx context.Context) (int64, error)
	OutOfStockProducts(ctx context.Context) (int64, error)
	RecentOrders(ctx context.Context, limit int) ([]models.Order, error)
}

// RecentOrder is the dashboard's summary row for one order.
type RecentOrder struct {
	ID            uuid.UUID           `json:"id"`
	OrderNumber   string              `json:"orderNumber"`
	CustomerName  string              `json:"customerName"`
	Total         decimal.Decimal     `json:"total"`
	PaymentMethod enums.PaymentMethod `json:"paymentMethod"`
	PaymentStatus enums.PaymentStatus `json:"paymentStatus"`
	OrderStatus   enums.OrderStatus   `json:"orderStatus"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// Stats is the admin dashboard payload.
type Stats struct {
	OrdersByStatus        map[string]int64 `json:"ordersByStatus"`
	OrdersByPaymentStatus map[string]int64 `json:"ordersByPaymentStatus"`
	TotalOrders           int64            `json:"totalOrders"`
	PaidRevenue           decimal.Decimal  `json:"paidRevenue"`
	TodayOrders           int64            `json:"todayOrders"`
	PendingVerifications  int64            `json:"pendingVerifications"`
	PendingReviews        int64            `json:"pendingReviews"`
	OutOfStockProducts    int64            `json:"outOfStockProducts"`
	RecentOrders          []RecentOrder    `json:"recentOrders"`
}

// Service assembles dashboard stats.
type Service struct {
	store statsStore
	loc   *time.Location
	now   func() time.Time
}

// NewService builds a dashboard service. "Today" starts at midnight in loc.
func NewService(store statsStore, loc *time.Location) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("dashboard store required")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, loc: loc, now: time.Now}, nil
}

// Stats loads every dashboard aggregate.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	byStatus, err := s.store.OrdersByStatus(ctx)
	if err != nil {
		return nil, dependency(err, "count orders by status")
	}
	byPayment, err := s.store.OrdersByPaymentStatus(ctx)
	if err != nil {
		return nil, dependency(err, "count orders by payment status")
	}
	revenue, err := s.store.PaidRevenue(ctx)
	if err != nil {
		return nil, dependency(err, "sum paid revenue")
	}
	today, err := s.store.OrdersSince(ctx, s.startOfDay())
	if err != nil {
		return nil, dependency(err, "count today's orders")
	}
	verifications, err := s.store.PendingVerifications(ctx)
	if err != nil {
		return nil, dependency(err, "count pending verifications")
	}
	reviews, err := s.store.PendingReviews(ctx)
	if err != nil {
		return nil, dependency(err, "count pending reviews")
	}
	outOfStock, err := s.store.OutOfStockProducts(ctx)
	if err != nil {
		return nil, dependency(err, "count out of stock products")
	}
	recent, err := s.store.RecentOrders(ctx, recentOrdersLimit)
	if err != nil {
		return nil, dependency(err, "load recent orders")
	}

	stats := &Stats{
		OrdersByStatus:        fillKeys(byStatus, orderStatusKeys()),
		OrdersByPaymentStatus: fillKeys(byPayment, paymentStatusKeys()),
		PaidRevenue:           revenue.Round(2),
		TodayOrders:           today,
		PendingVerifications:  verifications,
		PendingReviews:        reviews,
		OutOfStockProducts:    outOfStock,
		RecentOrders:          make([]RecentOrder, 0, len(recent)),
	}
	for _, n := range byStatus {
		stats.TotalOrders += n
	}
	for _, o := range recent {
		stats.RecentOrders = append(stats.RecentOrders, RecentOrder{
			ID:            o.ID,
			OrderNumber:   o.OrderNumber,
			CustomerName:  o.CustomerName,
			Total:         o.Total,
			PaymentMethod: o.PaymentMethod,
			PaymentStatus: o.PaymentStatus,
			OrderStatus:   o.OrderStatus,
			CreatedAt:     o.CreatedAt,
		})
	}
	return stats, nil
}

func (s *Service) startOfDay() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

// fillKeys reports zero for statuses with no orders.
func fillKeys(counts map[string]int64, keys []string) map[string]int64 {
	out := make(map[string]int64, len(keys))
	for _, k := range keys {
		out[k] = 0
	}
	for k, v := range counts {
		out[k] = v
	}
	return out
}

func orderStatusKeys() []string {
	return []string{
		string(enums.OrderStatusProcessing),
		string(enums.OrderStatusConfirmed),
		string(enums.OrderStatusShipped),
		string(enums.OrderStatusEnroute),
		string(enums.OrderStatusDelivered),
		string(enums.OrderStatusCancelled),
	}
}

func paymentStatusKeys() []string {
	return []string{
		string(enums.PaymentStatusPending),
		string(enums.PaymentStatusPaid),
		string(enums.PaymentStatusFailed),
		string(enums.PaymentStatusRefunded),
		string(enums.PaymentStatusRejected),
	}
}

func dependency(err error, msg string) error {
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
