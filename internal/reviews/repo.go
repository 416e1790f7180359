package reviews

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

const uniqueReviewConstraint = "reviews_product_email_order_key"

// ListFilter narrows review listings.
type ListFilter struct {
	ProductID *uuid.UUID
	Status    *enums.ReviewStatus
}

// Aggregate is the derived rating summary of one product.
type Aggregate struct {
	Rating decimal.Decimal
	Count  int
}

// Repository persists reviews and the product aggregates derived from them.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a review repository.
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

// Create inserts a review.
func (r *Repository) Create(ctx context.Context, review *models.Review) error {
	if review == nil {
		return fmt.Errorf("review is required")
	}
	return r.db.WithContext(ctx).Create(review).Error
}

// FindByID loads one review.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Review, error) {
	var review models.Review
	if err := r.db.WithContext(ctx).First(&review, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &review, nil
}

// Exists reports whether a review already covers (product, email, order).
func (r *Repository) Exists(ctx context.Context, productID uuid.UUID, email, orderNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Where("product_id = ? AND customer_email = ? AND order_number = ?", productID, email, orderNumber).
		Count(&count).Error
	return count > 0, err
}

// UpdateStatus sets the moderation status of a review.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.ReviewStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Review{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Delete removes a review.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Review{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// List returns one page of reviews, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Review, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Review{})
	if filter.ProductID != nil {
		query = query.Where("product_id = ?", *filter.ProductID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	rows := []models.Review{}
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountByStatus counts reviews in one moderation status.
func (r *Repository) CountByStatus(ctx context.Context, status enums.ReviewStatus) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Review{}).Where("status = ?", status).Count(&total).Error
	return total, err
}

// Recompute derives the product's rating and count from its approved
// reviews and stores them on the product row.
func (r *Repository) Recompute(ctx context.Context, productID uuid.UUID) (Aggregate, error) {
	var agg struct {
		RatingSum int64
		Approved  int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.Review{}).
		Select("COALESCE(SUM(rating), 0) AS rating_sum, COUNT(*) AS approved").
		Where("product_id = ? AND status = ?", productID, enums.ReviewStatusApproved).
		Scan(&agg).Error; err != nil {
		return Aggregate{}, err
	}

	out := Aggregate{Rating: decimal.Zero, Count: int(agg.Approved)}
	if agg.Approved > 0 {
		out.Rating = decimal.NewFromInt(agg.RatingSum).Div(decimal.NewFromInt(agg.Approved)).Round(1)
	}

	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		UpdateColumns(map[string]any{"rating": out.Rating, "review_count": out.Count})
	if res.Error != nil {
		return Aggregate{}, res.Error
	}
	return out, nil
}
