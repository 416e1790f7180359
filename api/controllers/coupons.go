package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/api/responses"
	"github.com/kitsuneprints/storefront-backend/api/validators"
	"github.com/kitsuneprints/storefront-backend/internal/coupons"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

type couponValidator interface {
	Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*coupons.ValidationResult, error)
}

type couponAdmin interface {
	List(ctx context.Context, params pagination.Params, filter coupons.ListFilter) (*coupons.CouponList, error)
	Create(ctx context.Context, input coupons.CouponInput) (*models.Coupon, error)
	Update(ctx context.Context, id uuid.UUID, input coupons.CouponInput) (*models.Coupon, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

type validateCouponRequest struct {
	Code       string          `json:"code" validate:"required,max=50"`
	OrderTotal decimal.Decimal `json:"orderTotal"`
}

type couponRequest struct {
	Code              string           `json:"code" validate:"required,max=50"`
	Description       string           `json:"description" validate:"max=500"`
	DiscountType      string           `json:"discountType" validate:"required"`
	DiscountValue     decimal.Decimal  `json:"discountValue"`
	MinOrderAmount    *decimal.Decimal `json:"minOrderAmount"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount"`
	UsageLimit        *int             `json:"usageLimit" validate:"omitempty,min=1"`
	ValidFrom         time.Time        `json:"validFrom" validate:"required"`
	ValidUntil        time.Time        `json:"validUntil" validate:"required"`
	IsActive          *bool            `json:"isActive"`
}

func (p couponRequest) toInput() (coupons.CouponInput, error) {
	discountType, err := enums.ParseDiscountType(strings.ToLower(strings.TrimSpace(p.DiscountType)))
	if err != nil {
		return coupons.CouponInput{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid discount type")
	}
	return coupons.CouponInput{
		Code:              p.Code,
		Description:       p.Description,
		DiscountType:      discountType,
		DiscountValue:     p.DiscountValue,
		MinOrderAmount:    p.MinOrderAmount,
		MaxDiscountAmount: p.MaxDiscountAmount,
		UsageLimit:        p.UsageLimit,
		ValidFrom:         p.ValidFrom,
		ValidUntil:        p.ValidUntil,
		IsActive:          p.IsActive,
	}, nil
}

// ValidateCoupon previews a discount without consuming a redemption.
func ValidateCoupon(svc couponValidator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		var payload validateCouponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if payload.OrderTotal.IsNegative() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderTotal must not be negative"))
			return
		}

		result, err := svc.Validate(r.Context(), payload.Code, payload.OrderTotal)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminListCoupons pages coupons, optionally filtered by active flag.
func AdminListCoupons(svc couponAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		params, err := validators.ParsePageParams(r, pagination.DefaultLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := coupons.ListFilter{Search: validators.SanitizeString(r.URL.Query().Get("search"), 50)}
		if raw := strings.TrimSpace(r.URL.Query().Get("active")); raw != "" {
			active, err := strconv.ParseBool(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "active must be true or false"))
				return
			}
			filter.Active = &active
		}

		list, err := svc.List(r.Context(), params, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminCreateCoupon adds a coupon.
func AdminCreateCoupon(svc couponAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		var payload couponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, coupon)
	}
}

// AdminUpdateCoupon replaces a coupon's fields. Usage counts are kept.
func AdminUpdateCoupon(svc couponAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		couponID, err := validators.ParseUUIDParam(r, "couponId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload couponRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		coupon, err := svc.Update(r.Context(), couponID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, coupon)
	}
}

// AdminDeactivateCoupon switches a coupon off. Rows are never deleted so
// historical orders keep their reference.
func AdminDeactivateCoupon(svc couponAdmin, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "coupon service unavailable"))
			return
		}

		couponID, err := validators.ParseUUIDParam(r, "couponId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Deactivate(r.Context(), couponID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
