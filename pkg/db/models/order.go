package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// Order is a customer's checkout record. Orders are never deleted; the
// terminal state is cancelled.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber        string              `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`
	CustomerName       string              `gorm:"column:customer_name;not null"`
	CustomerEmail      string              `gorm:"column:customer_email;not null;index"`
	CustomerPhone      string              `gorm:"column:customer_phone;not null"`
	AddressLine1       string              `gorm:"column:address_line1;not null"`
	AddressLine2       *string             `gorm:"column:address_line2"`
	City               string              `gorm:"column:city;not null"`
	Province           *string             `gorm:"column:province"`
	PostalCode         *string             `gorm:"column:postal_code"`
	Country            string              `gorm:"column:country;not null"`
	Notes              *string             `gorm:"column:notes"`
	Subtotal           decimal.Decimal     `gorm:"column:subtotal;type:numeric(12,2);not null"`
	ShippingProtection bool                `gorm:"column:shipping_protection;not null;default:false"`
	ShippingCost       decimal.Decimal     `gorm:"column:shipping_cost;type:numeric(12,2);not null;default:0"`
	DiscountCode       *string             `gorm:"column:discount_code"`
	DiscountAmount     decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	CouponID           *uuid.UUID          `gorm:"column:coupon_id;type:uuid"`
	Total              decimal.Decimal     `gorm:"column:total;type:numeric(12,2);not null"`
	PaymentMethod      enums.PaymentMethod `gorm:"column:payment_method;type:text;not null"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	OrderStatus        enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'processing'"`
	TransactionID      *string             `gorm:"column:transaction_id"`
	ReceiptURL         *string             `gorm:"column:receipt_url"`
	PaymentSubmittedAt *time.Time          `gorm:"column:payment_submitted_at"`
	PaymentConfirmedAt *time.Time          `gorm:"column:payment_confirmed_at"`
	PaymentNotes       *string             `gorm:"column:payment_notes"`
	CouponRedeemedAt   *time.Time          `gorm:"column:coupon_redeemed_at"`
	ReminderSentAt     *time.Time          `gorm:"column:reminder_sent_at"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
	CancellationReason *string             `gorm:"column:cancellation_reason"`
	Items              []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime;index"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// ContainsProduct reports whether any line item references productID.
func (o *Order) ContainsProduct(productID uuid.UUID) bool {
	for _, item := range o.Items {
		if item.ProductID == productID {
			return true
		}
	}
	return false
}

// OrderItem snapshots a product line at order time.
type OrderItem struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID   uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	ProductName string          `gorm:"column:product_name;not null"`
	Size        enums.SizeLabel `gorm:"column:size;type:text;not null"`
	Quantity    int             `gorm:"column:quantity;not null"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null"`
	ImageURL    *string         `gorm:"column:image_url"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
