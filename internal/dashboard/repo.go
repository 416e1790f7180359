package dashboard

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

type statusCount struct {
	Status string
	Total  int64
}

// Repository runs the read-only aggregate queries behind the admin dashboard.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a dashboard repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// OrdersByStatus counts orders per order status.
func (r *Repository) OrdersByStatus(ctx context.Context) (map[string]int64, error) {
	return r.groupCount(ctx, "order_status")
}

// OrdersByPaymentStatus counts orders per payment status.
func (r *Repository) OrdersByPaymentStatus(ctx context.Context) (map[string]int64, error) {
	return r.groupCount(ctx, "payment_status")
}

func (r *Repository) groupCount(ctx context.Context, column string) (map[string]int64, error) {
	var rows []statusCount
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select(column + " AS status, COUNT(*) AS total").
		Group(column).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Total
	}
	return out, nil
}

// PaidRevenue sums totals of paid orders.
func (r *Repository) PaidRevenue(ctx context.Context) (decimal.Decimal, error) {
	var totals []decimal.Decimal
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("payment_status = ?", enums.PaymentStatusPaid).
		Pluck("total", &totals).Error; err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(t)
	}
	return sum, nil
}

// OrdersSince counts orders created at or after since.
func (r *Repository) OrdersSince(ctx context.Context, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("created_at >= ?", since).
		Count(&total).Error
	return total, err
}

// PendingVerifications counts payment proofs awaiting review.
func (r *Repository) PendingVerifications(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentVerification{}).
		Where("verified IS NULL").
		Count(&total).Error
	return total, err
}

// PendingReviews counts reviews awaiting moderation.
func (r *Repository) PendingReviews(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("status = ?", enums.ReviewStatusPending).
		Count(&total).Error
	return total, err
}

// OutOfStockProducts counts products flagged out of stock.
func (r *Repository) OutOfStockProducts(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("in_stock = ?", false).
		Count(&total).Error
	return total, err
}

// RecentOrders returns the newest orders without their items.
func (r *Repository) RecentOrders(ctx context.Context, limit int) ([]models.Order, error) {
	rows := []models.Order{}
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
