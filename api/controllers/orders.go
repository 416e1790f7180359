package controllers

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kitsuneprints/storefront-backend/api/responses"
	"github.com/kitsuneprints/storefront-backend/api/validators"
	"github.com/kitsuneprints/storefront-backend/internal/orders"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

const (
	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
)

type orderPlacer interface {
	Create(ctx context.Context, input orders.CreateOrderInput) (*orders.CreateOrderResult, error)
}

type orderTracker interface {
	Track(ctx context.Context, orderNumber, email string) (*orders.TrackResult, error)
}

type paymentSubmitter interface {
	SubmitPayment(ctx context.Context, input orders.SubmitPaymentInput) (*orders.SubmitPaymentResult, error)
}

type customerPayload struct {
	Name         string `json:"name" validate:"required,max=120"`
	Email        string `json:"email" validate:"required,max=254"`
	Phone        string `json:"phone" validate:"required,max=32"`
	AddressLine1 string `json:"addressLine1" validate:"required,max=200"`
	AddressLine2 string `json:"addressLine2" validate:"max=200"`
	City         string `json:"city" validate:"required,max=100"`
	Province     string `json:"province" validate:"max=100"`
	PostalCode   string `json:"postalCode" validate:"max=20"`
	Country      string `json:"country" validate:"max=100"`
}

type orderItemPayload struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Size      string    `json:"size" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=99"`
}

type createOrderRequest struct {
	Customer           customerPayload    `json:"customer" validate:"required"`
	Items              []orderItemPayload `json:"items" validate:"required,min=1,max=50,dive"`
	ShippingProtection bool               `json:"shippingProtection"`
	DiscountCode       string             `json:"discountCode" validate:"max=50"`
	PaymentMethod      string             `json:"paymentMethod" validate:"required"`
	Notes              string             `json:"notes" validate:"max=1000"`
}

func (p createOrderRequest) toInput() orders.CreateOrderInput {
	items := make([]orders.ItemInput, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, orders.ItemInput{
			ProductID: item.ProductID,
			Size:      item.Size,
			Quantity:  item.Quantity,
		})
	}
	return orders.CreateOrderInput{
		Customer: orders.CustomerInput{
			Name:         p.Customer.Name,
			Email:        p.Customer.Email,
			Phone:        p.Customer.Phone,
			AddressLine1: p.Customer.AddressLine1,
			AddressLine2: p.Customer.AddressLine2,
			City:         p.Customer.City,
			Province:     p.Customer.Province,
			PostalCode:   p.Customer.PostalCode,
			Country:      p.Customer.Country,
		},
		Items:              items,
		ShippingProtection: p.ShippingProtection,
		DiscountCode:       p.DiscountCode,
		PaymentMethod:      p.PaymentMethod,
		Notes:              p.Notes,
	}
}

// CreateOrder places a storefront order. Prices come from the catalog.
func CreateOrder(svc orderPlacer, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		var payload createOrderRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// TrackOrder returns an order when both the number and the email match.
func TrackOrder(svc orderTracker, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		query := r.URL.Query()
		orderNumber := strings.TrimSpace(query.Get("orderNumber"))
		email := strings.TrimSpace(query.Get("email"))
		if orderNumber == "" || email == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderNumber and email are required"))
			return
		}

		result, err := svc.Track(r.Context(), orderNumber, email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SubmitPayment accepts a multipart payment proof for a manual-payment
// order.
func SubmitPayment(svc paymentSubmitter, maxReceiptBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		if maxReceiptBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxReceiptBytes+multipartOverhead)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "receipt file is too large").
					WithDetails(map[string]any{"maxBytes": maxReceiptBytes}))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}
		defer func() {
			if r.MultipartForm != nil {
				_ = r.MultipartForm.RemoveAll()
			}
		}()

		file, header, err := r.FormFile("receipt")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment receipt is required"))
			return
		}
		defer file.Close()

		contentType, err := receiptContentType(file, header)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable receipt"))
			return
		}

		input := orders.SubmitPaymentInput{
			OrderNumber:   chi.URLParam(r, "orderNumber"),
			Email:         r.FormValue("email"),
			TransactionID: r.FormValue("transactionId"),
			Notes:         validators.SanitizeString(r.FormValue("notes"), 1000),
			Receipt:       file,
			ReceiptName:   header.Filename,
			ContentType:   contentType,
			ReceiptSize:   header.Size,
		}

		result, err := svc.SubmitPayment(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// receiptContentType trusts the part header and sniffs the bytes when the
// client left it blank.
func receiptContentType(file multipart.File, header *multipart.FileHeader) (string, error) {
	if ct := strings.TrimSpace(header.Header.Get("Content-Type")); ct != "" && ct != "application/octet-stream" {
		return ct, nil
	}
	detected, err := mimetype.DetectReader(file)
	if err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return detected.String(), nil
}
