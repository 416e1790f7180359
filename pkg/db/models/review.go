package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// Review is a verified-purchase product review. At most one review exists
// per (product, customer email, order number).
type Review struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID          `gorm:"column:product_id;type:uuid;not null;uniqueIndex:reviews_product_email_order_key,priority:1"`
	OrderNumber   string             `gorm:"column:order_number;not null;uniqueIndex:reviews_product_email_order_key,priority:3"`
	CustomerName  string             `gorm:"column:customer_name;not null"`
	CustomerEmail string             `gorm:"column:customer_email;not null;uniqueIndex:reviews_product_email_order_key,priority:2"`
	Rating        int                `gorm:"column:rating;not null"`
	Comment       string             `gorm:"column:comment;not null;default:''"`
	Images        pq.StringArray     `gorm:"column:images;type:text[];not null;default:'{}'"`
	Status        enums.ReviewStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Review) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
