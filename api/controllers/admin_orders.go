package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/kitsuneprints/storefront-backend/api/responses"
	"github.com/kitsuneprints/storefront-backend/api/validators"
	"github.com/kitsuneprints/storefront-backend/internal/orders"
	"github.com/kitsuneprints/storefront-backend/internal/payments"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

type adminOrderService interface {
	List(ctx context.Context, params pagination.Params, filter orders.ListFilter) (*orders.OrderList, error)
	Get(ctx context.Context, id uuid.UUID) (*orders.OrderDetail, error)
	UpdateStatus(ctx context.Context, input orders.StatusUpdateInput) (*orders.OrderView, error)
	UpdatePaymentStatus(ctx context.Context, input orders.PaymentStatusUpdateInput) (*orders.OrderView, error)
	ConfirmPayment(ctx context.Context, orderID uuid.UUID, notes string, actor *outbox.ActorRef) (*orders.OrderView, error)
}

type verificationService interface {
	List(ctx context.Context, params pagination.Params, state string) (*payments.VerificationList, error)
	Verify(ctx context.Context, input payments.VerifyInput) (*payments.VerifyResult, error)
}

type statusUpdateRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

type paymentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=failed refunded"`
	Note   string `json:"note" validate:"max=1000"`
}

type confirmPaymentRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

type verifyRequest struct {
	Approved *bool  `json:"approved" validate:"required"`
	Notes    string `json:"notes" validate:"max=1000"`
}

// AdminListOrders returns a filtered page of orders.
func AdminListOrders(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		params, err := validators.ParsePageParams(r, pagination.DefaultLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := parseOrderFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), params, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func parseOrderFilter(r *http.Request) (orders.ListFilter, error) {
	query := r.URL.Query()
	filter := orders.ListFilter{Search: validators.SanitizeString(query.Get("search"), maxSearchQueryLen)}

	if raw := strings.ToLower(strings.TrimSpace(query.Get("status"))); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
		}
		filter.OrderStatus = &status
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("paymentStatus"))); raw != "" {
		status, err := enums.ParsePaymentStatus(raw)
		if err != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment status")
		}
		filter.PaymentStatus = &status
	}
	if raw := strings.ToLower(strings.TrimSpace(query.Get("paymentMethod"))); raw != "" {
		method, err := enums.ParsePaymentMethod(raw)
		if err != nil {
			return filter, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
		}
		filter.PaymentMethod = &method
	}
	return filter, nil
}

// AdminGetOrder returns an order with its verification history.
func AdminGetOrder(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// AdminUpdateOrderStatus applies a fulfilment transition.
func AdminUpdateOrderStatus(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		_, actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload statusUpdateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.UpdateStatus(r.Context(), orders.StatusUpdateInput{
			OrderID: orderID,
			Status:  payload.Status,
			Note:    payload.Note,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminUpdatePaymentStatus records a failed payment or a refund.
func AdminUpdatePaymentStatus(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		_, actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload paymentStatusRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.UpdatePaymentStatus(r.Context(), orders.PaymentStatusUpdateInput{
			OrderID: orderID,
			Status:  payload.Status,
			Note:    payload.Note,
			Actor:   actor,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminConfirmPayment marks an order paid without a separate verification
// decision.
func AdminConfirmPayment(svc adminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "order service unavailable"))
			return
		}

		_, actor, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload confirmPaymentRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		view, err := svc.ConfirmPayment(r.Context(), orderID, payload.Notes, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// AdminListVerifications returns payment proofs, optionally by state.
func AdminListVerifications(svc verificationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		params, err := validators.ParsePageParams(r, pagination.DefaultLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		list, err := svc.List(r.Context(), params, r.URL.Query().Get("status"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminVerifyPayment records an operator's approve or reject decision.
func AdminVerifyPayment(svc verificationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payment service unavailable"))
			return
		}

		adminID, _, err := adminActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		verificationID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload verifyRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Verify(r.Context(), payments.VerifyInput{
			VerificationID: verificationID,
			Approved:       *payload.Approved,
			Notes:          payload.Notes,
			OperatorID:     adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
