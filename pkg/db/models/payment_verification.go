package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// PaymentVerification links a submitted payment proof to an order.
// Verified is nil while pending, true when verified, false when rejected.
type PaymentVerification struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	OrderNumber   string     `gorm:"column:order_number;not null"`
	TransactionID string     `gorm:"column:transaction_id;not null"`
	ReceiptURL    *string    `gorm:"column:receipt_url"`
	CustomerNotes *string    `gorm:"column:customer_notes"`
	Verified      *bool      `gorm:"column:verified"`
	AdminNotes    *string    `gorm:"column:admin_notes"`
	VerifiedAt    *time.Time `gorm:"column:verified_at"`
	VerifiedBy    *uuid.UUID `gorm:"column:verified_by;type:uuid"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PaymentVerification) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// State maps the tri-state flag to its enum form.
func (p *PaymentVerification) State() enums.VerificationState {
	switch {
	case p.Verified == nil:
		return enums.VerificationPending
	case *p.Verified:
		return enums.VerificationVerified
	default:
		return enums.VerificationRejected
	}
}

// IsResolved reports whether an operator has decided the record.
func (p *PaymentVerification) IsResolved() bool {
	return p.Verified != nil
}
