package notifications

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// Repository persists the notification delivery log.
type Repository struct {
	db *gorm.DB
}

// NewRepository returns a delivery log bound to the provided database.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Find returns the log row for key and channel, or nil when none exists.
func (r *Repository) Find(ctx context.Context, key string, channel enums.NotificationChannel) (*models.NotificationDelivery, error) {
	var row models.NotificationDelivery
	err := r.db.WithContext(ctx).
		Where("dedupe_key = ? AND channel = ?", key, channel).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Record upserts the outcome of a send. Attempts accumulate across
// redeliveries of the same event.
func (r *Repository) Record(ctx context.Context, row *models.NotificationDelivery) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "dedupe_key"}, {Name: "channel"}},
			DoUpdates: clause.Assignments(map[string]any{
				"status":     row.Status,
				"attempts":   gorm.Expr("notification_deliveries.attempts + ?", row.Attempts),
				"last_error": row.LastError,
				"recipient":  row.Recipient,
				"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
			}),
		}).
		Create(row).Error
}

// ListByOrder returns the delivery history of an order, newest first.
func (r *Repository) ListByOrder(ctx context.Context, orderNumber string) ([]models.NotificationDelivery, error) {
	var rows []models.NotificationDelivery
	if err := r.db.WithContext(ctx).
		Where("order_number = ?", orderNumber).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteOlderThan prunes log rows last touched before cutoff.
func (r *Repository) DeleteOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("updated_at < ?", cutoff).
		Delete(&models.NotificationDelivery{})
	return res.RowsAffected, res.Error
}
