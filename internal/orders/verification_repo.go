package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

// VerificationRepository persists payment verification records.
type VerificationRepository struct {
	db *gorm.DB
}

// NewVerificationRepository binds a GORM DB to verification operations.
func NewVerificationRepository(db *gorm.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// WithTx returns a repository bound to tx.
func (r *VerificationRepository) WithTx(tx *gorm.DB) *VerificationRepository {
	if tx == nil {
		return r
	}
	return &VerificationRepository{db: tx}
}

// Create inserts a new pending record.
func (r *VerificationRepository) Create(ctx context.Context, v *models.PaymentVerification) error {
	return r.db.WithContext(ctx).Create(v).Error
}

// HasUnresolved reports whether the order has a record awaiting review.
func (r *VerificationRepository) HasUnresolved(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.PaymentVerification{}).
		Where("order_id = ? AND verified IS NULL", orderID).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByID loads one record.
func (r *VerificationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.PaymentVerification, error) {
	var v models.PaymentVerification
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// LockByID loads one record FOR UPDATE.
func (r *VerificationRepository) LockByID(ctx context.Context, id uuid.UUID) (*models.PaymentVerification, error) {
	var v models.PaymentVerification
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// Resolve records the operator decision on a still-pending record. It
// reports false when the record was already resolved.
func (r *VerificationRepository) Resolve(ctx context.Context, id uuid.UUID, verified bool, notes *string, by *uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentVerification{}).
		Where("id = ? AND verified IS NULL", id).
		Updates(map[string]any{
			"verified":    verified,
			"admin_notes": notes,
			"verified_at": at.UTC(),
			"verified_by": by,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ResolvePendingForOrder resolves every pending record of an order, used
// when an operator confirms payment directly.
func (r *VerificationRepository) ResolvePendingForOrder(ctx context.Context, orderID uuid.UUID, verified bool, notes *string, by *uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PaymentVerification{}).
		Where("order_id = ? AND verified IS NULL", orderID).
		Updates(map[string]any{
			"verified":    verified,
			"admin_notes": notes,
			"verified_at": at.UTC(),
			"verified_by": by,
		})
	return res.RowsAffected, res.Error
}

// LatestResolved returns the most recently decided record of an order.
func (r *VerificationRepository) LatestResolved(ctx context.Context, orderID uuid.UUID) (*models.PaymentVerification, error) {
	var v models.PaymentVerification
	if err := r.db.WithContext(ctx).
		Where("order_id = ? AND verified IS NOT NULL", orderID).
		Order("verified_at DESC, created_at DESC").
		First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByOrder returns every record of an order, newest first.
func (r *VerificationRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.PaymentVerification, error) {
	var rows []models.PaymentVerification
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// List returns a page of records filtered by state, newest first.
func (r *VerificationRepository) List(ctx context.Context, params pagination.Params, state *enums.VerificationState) ([]models.PaymentVerification, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentVerification{})
	if state != nil {
		switch *state {
		case enums.VerificationPending:
			query = query.Where("verified IS NULL")
		case enums.VerificationVerified:
			query = query.Where("verified = ?", true)
		case enums.VerificationRejected:
			query = query.Where("verified = ?", false)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.PaymentVerification
	if err := query.
		Order("created_at DESC, id DESC").
		Limit(params.Limit).
		Offset(params.Offset()).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// CountPending returns the number of records awaiting review.
func (r *VerificationRepository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentVerification{}).
		Where("verified IS NULL").
		Count(&count).Error
	return count, err
}
