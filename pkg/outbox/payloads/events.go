package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// OrderEvent is the payload shared by every order.* event. Consumers load
// the full order when they need more than this snapshot.
type OrderEvent struct {
	OrderID               uuid.UUID            `json:"orderId"`
	OrderNumber           string               `json:"orderNumber"`
	CustomerName          string               `json:"customerName"`
	CustomerEmail         string               `json:"customerEmail"`
	CustomerPhone         string               `json:"customerPhone,omitempty"`
	PaymentMethod         enums.PaymentMethod  `json:"paymentMethod"`
	PaymentStatus         enums.PaymentStatus  `json:"paymentStatus"`
	PreviousPaymentStatus *enums.PaymentStatus `json:"previousPaymentStatus,omitempty"`
	OrderStatus           enums.OrderStatus    `json:"orderStatus"`
	PreviousStatus        *enums.OrderStatus   `json:"previousStatus,omitempty"`
	Total                 decimal.Decimal      `json:"total"`
	DiscountCode          *string              `json:"discountCode,omitempty"`
	VerificationID        *uuid.UUID           `json:"verificationId,omitempty"`
	Reason                *string              `json:"reason,omitempty"`
	Notes                 *string              `json:"notes,omitempty"`
}

// NewOrderEvent snapshots the order's current state.
func NewOrderEvent(order *models.Order) OrderEvent {
	if order == nil {
		return OrderEvent{}
	}
	return OrderEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		PaymentMethod: order.PaymentMethod,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
		Total:         order.Total,
		DiscountCode:  order.DiscountCode,
	}
}

// WithPrevious records the status the order moved from.
func (e OrderEvent) WithPrevious(status enums.OrderStatus) OrderEvent {
	prev := status
	e.PreviousStatus = &prev
	return e
}

// WithPreviousPayment records the payment status the order moved from.
func (e OrderEvent) WithPreviousPayment(status enums.PaymentStatus) OrderEvent {
	prev := status
	e.PreviousPaymentStatus = &prev
	return e
}

// WithReason attaches an explanatory note.
func (e OrderEvent) WithReason(reason string) OrderEvent {
	if reason == "" {
		return e
	}
	r := reason
	e.Reason = &r
	return e
}

// WithNotes attaches operator notes.
func (e OrderEvent) WithNotes(notes *string) OrderEvent {
	e.Notes = notes
	return e
}

// WithVerification links the payment verification record.
func (e OrderEvent) WithVerification(id uuid.UUID) OrderEvent {
	vid := id
	e.VerificationID = &vid
	return e
}
