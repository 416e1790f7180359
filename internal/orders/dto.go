package orders

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/internal/paymentmethods"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

// CustomerInput is the shipping contact captured at checkout.
type CustomerInput struct {
	Name         string
	Email        string
	Phone        string
	AddressLine1 string
	AddressLine2 string
	City         string
	Province     string
	PostalCode   string
	Country      string
}

// ItemInput is one requested line. Prices are never taken from the client.
type ItemInput struct {
	ProductID uuid.UUID
	Size      string
	Quantity  int
}

// CreateOrderInput carries a checkout request.
type CreateOrderInput struct {
	Customer           CustomerInput
	Items              []ItemInput
	ShippingProtection bool
	DiscountCode       string
	PaymentMethod      string
	Notes              string
}

// CreateOrderResult is returned to the storefront after checkout.
type CreateOrderResult struct {
	OrderID       uuid.UUID                    `json:"orderId"`
	OrderNumber   string                       `json:"orderNumber"`
	Subtotal      decimal.Decimal              `json:"subtotal"`
	ShippingCost  decimal.Decimal              `json:"shippingCost"`
	Discount      decimal.Decimal              `json:"discount"`
	Total         decimal.Decimal              `json:"total"`
	PaymentMethod enums.PaymentMethod          `json:"paymentMethod"`
	Instructions  *paymentmethods.Instructions `json:"paymentInstructions,omitempty"`
}

// SubmitPaymentInput carries a customer's payment proof.
type SubmitPaymentInput struct {
	OrderNumber   string
	Email         string
	TransactionID string
	Notes         string
	Receipt       io.Reader
	ReceiptName   string
	ContentType   string
	ReceiptSize   int64
}

// SubmitPaymentResult acknowledges a payment proof.
type SubmitPaymentResult struct {
	OrderNumber    string              `json:"orderNumber"`
	PaymentStatus  enums.PaymentStatus `json:"paymentStatus"`
	VerificationID uuid.UUID           `json:"verificationId"`
	ReceiptURL     string              `json:"receiptUrl"`
}

// TrackResult is the customer view of an order.
type TrackResult struct {
	Order        OrderView                    `json:"order"`
	Instructions *paymentmethods.Instructions `json:"paymentInstructions,omitempty"`
}

// StatusUpdateInput is an operator fulfilment change.
type StatusUpdateInput struct {
	OrderID uuid.UUID
	Status  string
	Note    string
	Actor   *outbox.ActorRef
}

// PaymentStatusUpdateInput is an operator settlement change outside the
// verification flow: a failed payment or a refund.
type PaymentStatusUpdateInput struct {
	OrderID uuid.UUID
	Status  string
	Note    string
	Actor   *outbox.ActorRef
}

// PaymentDecision is an operator decision on an order's payment.
type PaymentDecision struct {
	VerificationID *uuid.UUID
	Notes          *string
	OperatorID     *uuid.UUID
	At             time.Time
}

// OrderList is a page of admin order rows.
type OrderList struct {
	Orders []OrderView     `json:"orders"`
	Meta   pagination.Meta `json:"meta"`
}

// OrderDetail is the admin view with payment history.
type OrderDetail struct {
	Order         OrderView                    `json:"order"`
	Verifications []models.PaymentVerification `json:"verifications"`
}

// OrderItemView is the JSON shape of a line item.
type OrderItemView struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	Size        enums.SizeLabel `json:"size"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	LineTotal   decimal.Decimal `json:"lineTotal"`
	ImageURL    *string         `json:"imageUrl,omitempty"`
}

// OrderView is the JSON shape of an order.
type OrderView struct {
	ID                 uuid.UUID           `json:"id"`
	OrderNumber        string              `json:"orderNumber"`
	CustomerName       string              `json:"customerName"`
	CustomerEmail      string              `json:"customerEmail"`
	CustomerPhone      string              `json:"customerPhone"`
	AddressLine1       string              `json:"addressLine1"`
	AddressLine2       *string             `json:"addressLine2,omitempty"`
	City               string              `json:"city"`
	Province           *string             `json:"province,omitempty"`
	PostalCode         *string             `json:"postalCode,omitempty"`
	Country            string              `json:"country"`
	Notes              *string             `json:"notes,omitempty"`
	Items              []OrderItemView     `json:"items"`
	Subtotal           decimal.Decimal     `json:"subtotal"`
	ShippingProtection bool                `json:"shippingProtection"`
	ShippingCost       decimal.Decimal     `json:"shippingCost"`
	DiscountCode       *string             `json:"discountCode,omitempty"`
	DiscountAmount     decimal.Decimal     `json:"discountAmount"`
	Total              decimal.Decimal     `json:"total"`
	PaymentMethod      enums.PaymentMethod `json:"paymentMethod"`
	PaymentStatus      enums.PaymentStatus `json:"paymentStatus"`
	OrderStatus        enums.OrderStatus   `json:"orderStatus"`
	TransactionID      *string             `json:"transactionId,omitempty"`
	ReceiptURL         *string             `json:"receiptUrl,omitempty"`
	PaymentSubmittedAt *time.Time          `json:"paymentSubmittedAt,omitempty"`
	PaymentConfirmedAt *time.Time          `json:"paymentConfirmedAt,omitempty"`
	PaymentNotes       *string             `json:"paymentNotes,omitempty"`
	CancellationReason *string             `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// NewOrderView maps an order model to its JSON shape.
func NewOrderView(o *models.Order) OrderView {
	items := make([]OrderItemView, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderItemView{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Size:        item.Size,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
			ImageURL:    item.ImageURL,
		})
	}
	return OrderView{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		CustomerName:       o.CustomerName,
		CustomerEmail:      o.CustomerEmail,
		CustomerPhone:      o.CustomerPhone,
		AddressLine1:       o.AddressLine1,
		AddressLine2:       o.AddressLine2,
		City:               o.City,
		Province:           o.Province,
		PostalCode:         o.PostalCode,
		Country:            o.Country,
		Notes:              o.Notes,
		Items:              items,
		Subtotal:           o.Subtotal,
		ShippingProtection: o.ShippingProtection,
		ShippingCost:       o.ShippingCost,
		DiscountCode:       o.DiscountCode,
		DiscountAmount:     o.DiscountAmount,
		Total:              o.Total,
		PaymentMethod:      o.PaymentMethod,
		PaymentStatus:      o.PaymentStatus,
		OrderStatus:        o.OrderStatus,
		TransactionID:      o.TransactionID,
		ReceiptURL:         o.ReceiptURL,
		PaymentSubmittedAt: o.PaymentSubmittedAt,
		PaymentConfirmedAt: o.PaymentConfirmedAt,
		PaymentNotes:       o.PaymentNotes,
		CancellationReason: o.CancellationReason,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}
