package coupons

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

// ListFilter narrows the admin coupon listing.
type ListFilter struct {
	Active *bool
	Search string
}

// Repository handles coupon persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to coupon operations.
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

// FindByCode loads a coupon by its normalized code.
func (r *Repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("code = ?", NormalizeCode(code)).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

// FindByID loads a coupon by id.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

// Create persists a new coupon.
func (r *Repository) Create(ctx context.Context, coupon *models.Coupon) error {
	if coupon == nil {
		return fmt.Errorf("coupon is required")
	}
	return r.db.WithContext(ctx).Create(coupon).Error
}

// Update saves every column of coupon except the usage counter, which only
// IncrementUsage may change.
func (r *Repository) Update(ctx context.Context, coupon *models.Coupon) error {
	if coupon == nil {
		return fmt.Errorf("coupon is required")
	}
	return r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", coupon.ID).
		Updates(map[string]any{
			"code":                coupon.Code,
			"description":         coupon.Description,
			"discount_type":       coupon.DiscountType,
			"discount_value":      coupon.DiscountValue,
			"min_order_amount":    coupon.MinOrderAmount,
			"max_discount_amount": coupon.MaxDiscountAmount,
			"usage_limit":         coupon.UsageLimit,
			"valid_from":          coupon.ValidFrom,
			"valid_until":         coupon.ValidUntil,
			"is_active":           coupon.IsActive,
		}).Error
}

// IncrementUsage bumps used_count atomically and returns the new value.
func (r *Repository) IncrementUsage(ctx context.Context, id uuid.UUID) (int, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", id).
		Update("used_count", gorm.Expr("used_count + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	var count int
	if err := r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", id).
		Pluck("used_count", &count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// List returns a page of coupons, newest first.
func (r *Repository) List(ctx context.Context, params pagination.Params, filter ListFilter) ([]models.Coupon, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Coupon{})
	if filter.Active != nil {
		query = query.Where("is_active = ?", *filter.Active)
	}
	if search := NormalizeCode(filter.Search); search != "" {
		query = query.Where("code LIKE ?", "%"+strings.ReplaceAll(search, "%", "")+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Coupon
	if err := query.Order("created_at DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}
