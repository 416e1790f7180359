package coupons

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// Reason explains why a coupon cannot be applied right now.
type Reason string

const (
	ReasonNone       Reason = ""
	ReasonInactive   Reason = "coupon is not active"
	ReasonNotStarted Reason = "coupon is not yet valid"
	ReasonExpired    Reason = "coupon has expired"
	ReasonExhausted  Reason = "coupon usage limit reached"
)

var hundred = decimal.NewFromInt(100)

// NormalizeCode trims and upper-cases a customer-entered code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validity reports whether c can be applied at now. Reasons are checked in
// order: inactive, not started, expired, usage exhausted.
func Validity(c *models.Coupon, now time.Time) (bool, Reason) {
	if c == nil || !c.IsActive {
		return false, ReasonInactive
	}
	if now.Before(c.ValidFrom) {
		return false, ReasonNotStarted
	}
	if now.After(c.ValidUntil) {
		return false, ReasonExpired
	}
	if c.UsageLimit != nil && c.UsedCount >= *c.UsageLimit {
		return false, ReasonExhausted
	}
	return true, ReasonNone
}

// MeetsMinimum reports whether total satisfies the coupon's minimum order amount.
func MeetsMinimum(c *models.Coupon, total decimal.Decimal) bool {
	if c == nil || c.MinOrderAmount == nil {
		return true
	}
	return total.GreaterThanOrEqual(*c.MinOrderAmount)
}

// CalculateDiscount returns the discount c grants on total at now. The
// result is zero when the coupon is invalid or the total is below the
// minimum, is capped by MaxDiscountAmount for percentages, and never
// exceeds total.
func CalculateDiscount(c *models.Coupon, total decimal.Decimal, now time.Time) decimal.Decimal {
	if ok, _ := Validity(c, now); !ok {
		return decimal.Zero
	}
	if !total.IsPositive() || !MeetsMinimum(c, total) {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch c.DiscountType {
	case enums.DiscountTypePercentage:
		discount = total.Mul(c.DiscountValue).Div(hundred).Round(2)
		if c.MaxDiscountAmount != nil && discount.GreaterThan(*c.MaxDiscountAmount) {
			discount = *c.MaxDiscountAmount
		}
	case enums.DiscountTypeFixed:
		discount = c.DiscountValue
	default:
		return decimal.Zero
	}

	if discount.IsNegative() {
		return decimal.Zero
	}
	if discount.GreaterThan(total) {
		return total
	}
	return discount
}

// Summary is the customer-facing view of a coupon.
type Summary struct {
	Code              string             `json:"code"`
	Description       string             `json:"description"`
	DiscountType      enums.DiscountType `json:"discountType"`
	DiscountValue     decimal.Decimal    `json:"discountValue"`
	MinOrderAmount    *decimal.Decimal   `json:"minOrderAmount,omitempty"`
	MaxDiscountAmount *decimal.Decimal   `json:"maxDiscountAmount,omitempty"`
	ValidUntil        time.Time          `json:"validUntil"`
}

// Summarize builds the public summary of c.
func Summarize(c *models.Coupon) Summary {
	return Summary{
		Code:              c.Code,
		Description:       c.Description,
		DiscountType:      c.DiscountType,
		DiscountValue:     c.DiscountValue,
		MinOrderAmount:    c.MinOrderAmount,
		MaxDiscountAmount: c.MaxDiscountAmount,
		ValidUntil:        c.ValidUntil,
	}
}
