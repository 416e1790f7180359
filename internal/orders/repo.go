package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

const orderNumberConstraint = "orders_order_number_key"

// ListFilter narrows the admin order listing.
type ListFilter struct {
	OrderStatus   *enums.OrderStatus
	PaymentStatus *enums.PaymentStatus
	PaymentMethod *enums.PaymentMethod
	Search        string
}

// SweepWindow selects unpaid manual-payment orders by creation time.
// Orders created in [CreatedFrom, CreatedBefore) match; a zero CreatedFrom
// leaves the window open-ended.
type SweepWindow struct {
	CreatedFrom     time.Time
	CreatedBefore   time.Time
	OnlyUnreminded  bool
	// SkipUnderReview leaves out orders with a payment proof awaiting review.
	SkipUnderReview bool
	Limit           int
}

// Repository handles order persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts the order with its items.
func (r *Repository) Create(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByNumber loads an order and its items by order number.
func (r *Repository) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("order_number = ?", strings.TrimSpace(orderNumber)).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByID loads an order and its items.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// LockByID loads an order FOR UPDATE inside tx.
func (r *Repository) LockByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var order models.Order
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	if err := tx.WithContext(ctx).
		Where("order_id = ?", id).
		Order("created_at ASC, id ASC").
		Find(&order.Items).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateFields applies a partial update to one order.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Order{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkCouponRedeemed stamps coupon_redeemed_at once. It reports false when
// the order already redeemed its coupon.
func (r *Repository) MarkCouponRedeemed(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND coupon_id IS NOT NULL AND coupon_redeemed_at IS NULL", id).
		Update("coupon_redeemed_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List returns a page of orders, newest first.
func (r *Repository) List(ctx context.Context, params pagination.Params, filter ListFilter) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filter.OrderStatus != nil {
		query = query.Where("order_status = ?", *filter.OrderStatus)
	}
	if filter.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filter.PaymentStatus)
	}
	if filter.PaymentMethod != nil {
		query = query.Where("payment_method = ?", *filter.PaymentMethod)
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		like := "%" + strings.NewReplacer("%", "", "_", "").Replace(search) + "%"
		query = query.Where(
			"LOWER(order_number) LIKE ? OR LOWER(customer_email) LIKE ? OR LOWER(customer_name) LIKE ?",
			like, like, like,
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Order
	if err := query.
		Preload("Items").
		Order("created_at DESC, id DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// sweepable restricts q to unpaid, unfulfilled, manual-payment orders.
func sweepable(q *gorm.DB) *gorm.DB {
	return q.
		Where("payment_status = ?", enums.PaymentStatusPending).
		Where("order_status = ?", enums.OrderStatusProcessing).
		Where("payment_method <> ?", enums.PaymentMethodCOD)
}

// withoutPendingReview drops orders that still have an unresolved payment
// verification.
func withoutPendingReview(q *gorm.DB) *gorm.DB {
	return q.Where("NOT EXISTS (SELECT 1 FROM payment_verifications pv WHERE pv.order_id = orders.id AND pv.verified IS NULL)")
}

// SweepCandidates returns ids of orders matching window, oldest first.
func (r *Repository) SweepCandidates(ctx context.Context, window SweepWindow) ([]uuid.UUID, error) {
	query := sweepable(r.db.WithContext(ctx).Model(&models.Order{})).
		Where("created_at < ?", window.CreatedBefore.UTC())
	if !window.CreatedFrom.IsZero() {
		query = query.Where("created_at >= ?", window.CreatedFrom.UTC())
	}
	if window.OnlyUnreminded {
		query = query.Where("reminder_sent_at IS NULL")
	}
	if window.SkipUnderReview {
		query = withoutPendingReview(query)
	}
	if window.Limit > 0 {
		query = query.Limit(window.Limit)
	}
	var ids []uuid.UUID
	if err := query.Order("created_at ASC, id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// MarkReminderSent sets reminder_sent_at when the order still matches the
// reminder window. It reports false when another run got there first or the
// order moved on.
func (r *Repository) MarkReminderSent(ctx context.Context, id uuid.UUID, window SweepWindow, at time.Time) (bool, error) {
	query := sweepable(r.db.WithContext(ctx).Model(&models.Order{})).
		Where("id = ?", id).
		Where("reminder_sent_at IS NULL").
		Where("created_at < ?", window.CreatedBefore.UTC())
	if !window.CreatedFrom.IsZero() {
		query = query.Where("created_at >= ?", window.CreatedFrom.UTC())
	}
	res := query.Update("reminder_sent_at", at.UTC())
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Expire cancels the order when it still matches the expiry window. Orders
// whose payment proof is awaiting review are left for the operator.
func (r *Repository) Expire(ctx context.Context, id uuid.UUID, createdBefore time.Time, reason string, at time.Time) (bool, error) {
	res := withoutPendingReview(sweepable(r.db.WithContext(ctx).Model(&models.Order{}))).
		Where("id = ?", id).
		Where("created_at < ?", createdBefore.UTC()).
		Updates(map[string]any{
			"order_status":        enums.OrderStatusCancelled,
			"cancelled_at":        at.UTC(),
			"cancellation_reason": reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
