package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// NotificationDelivery records one channel send so redelivered events do
// not message the customer twice.
type NotificationDelivery struct {
	ID          uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	DedupeKey   string                    `gorm:"column:dedupe_key;not null;uniqueIndex:notification_deliveries_dedupe_key,priority:1"`
	Channel     enums.NotificationChannel `gorm:"column:channel;type:text;not null;uniqueIndex:notification_deliveries_dedupe_key,priority:2"`
	Event       enums.NotificationEvent   `gorm:"column:event;type:text;not null"`
	OrderNumber string                    `gorm:"column:order_number;not null;index"`
	Recipient   string                    `gorm:"column:recipient;not null"`
	Status      enums.DeliveryStatus      `gorm:"column:status;type:text;not null"`
	Attempts    int                       `gorm:"column:attempts;not null;default:0"`
	LastError   *string                   `gorm:"column:last_error"`
	CreatedAt   time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

func (n *NotificationDelivery) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
