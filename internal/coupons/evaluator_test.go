package coupons

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

var evalNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func intPtr(v int) *int { return &v }

func activeCoupon() *models.Coupon {
	return &models.Coupon{
		Code:          "OTAKU10",
		DiscountType:  enums.DiscountTypePercentage,
		DiscountValue: dec("10"),
		ValidFrom:     evalNow.Add(-24 * time.Hour),
		ValidUntil:    evalNow.Add(24 * time.Hour),
		IsActive:      true,
	}
}

func TestValidityPrecedence(t *testing.T) {
	c := activeCoupon()
	c.IsActive = false
	c.ValidFrom = evalNow.Add(time.Hour)
	c.UsageLimit = intPtr(1)
	c.UsedCount = 1
	if ok, reason := Validity(c, evalNow); ok || reason != ReasonInactive {
		t.Fatalf("expected inactive first, got %v %q", ok, reason)
	}

	c.IsActive = true
	if _, reason := Validity(c, evalNow); reason != ReasonNotStarted {
		t.Fatalf("expected not started, got %q", reason)
	}

	c.ValidFrom = evalNow.Add(-48 * time.Hour)
	c.ValidUntil = evalNow.Add(-time.Hour)
	if _, reason := Validity(c, evalNow); reason != ReasonExpired {
		t.Fatalf("expected expired, got %q", reason)
	}

	c.ValidUntil = evalNow.Add(time.Hour)
	if _, reason := Validity(c, evalNow); reason != ReasonExhausted {
		t.Fatalf("expected exhausted, got %q", reason)
	}

	c.UsedCount = 0
	if ok, reason := Validity(c, evalNow); !ok || reason != ReasonNone {
		t.Fatalf("expected valid, got %v %q", ok, reason)
	}
}

func TestValidityWindowIsInclusive(t *testing.T) {
	c := activeCoupon()
	c.ValidFrom = evalNow
	c.ValidUntil = evalNow
	if ok, _ := Validity(c, evalNow); !ok {
		t.Fatal("expected coupon valid at both window edges")
	}
}

func TestCalculateDiscount(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.Coupon)
		total  string
		want   string
	}{
		{name: "percentage", total: "2000", want: "200"},
		{name: "percentage capped", mutate: func(c *models.Coupon) { c.MaxDiscountAmount = decPtr("150") }, total: "2000", want: "150"},
		{name: "percentage rounds to cents", mutate: func(c *models.Coupon) { c.DiscountValue = dec("12.5") }, total: "99.99", want: "12.5"},
		{name: "fixed", mutate: func(c *models.Coupon) { c.DiscountType = enums.DiscountTypeFixed; c.DiscountValue = dec("300") }, total: "2000", want: "300"},
		{name: "fixed floored to total", mutate: func(c *models.Coupon) { c.DiscountType = enums.DiscountTypeFixed; c.DiscountValue = dec("500") }, total: "350", want: "350"},
		{name: "below minimum", mutate: func(c *models.Coupon) { c.MinOrderAmount = decPtr("2500") }, total: "2000", want: "0"},
		{name: "at minimum", mutate: func(c *models.Coupon) { c.MinOrderAmount = decPtr("2000") }, total: "2000", want: "200"},
		{name: "inactive", mutate: func(c *models.Coupon) { c.IsActive = false }, total: "2000", want: "0"},
		{name: "zero total", total: "0", want: "0"},
		{name: "unknown type", mutate: func(c *models.Coupon) { c.DiscountType = "bogus" }, total: "2000", want: "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := activeCoupon()
			if tc.mutate != nil {
				tc.mutate(c)
			}
			got := CalculateDiscount(c, dec(tc.total), evalNow)
			if !got.Equal(dec(tc.want)) {
				t.Fatalf("CalculateDiscount = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestCalculateDiscountIsPure(t *testing.T) {
	c := activeCoupon()
	c.MaxDiscountAmount = decPtr("75")
	total := dec("1234.56")

	first := CalculateDiscount(c, total, evalNow)
	second := CalculateDiscount(c, total, evalNow)
	if !first.Equal(second) {
		t.Fatalf("expected identical results, got %s and %s", first, second)
	}
	if first.GreaterThan(*c.MaxDiscountAmount) || first.GreaterThan(total) {
		t.Fatalf("discount %s exceeds cap or total", first)
	}
	if c.UsedCount != 0 {
		t.Fatal("calculation must not touch usage")
	}
}

func TestNormalizeCode(t *testing.T) {
	if got := NormalizeCode("  otaku10 "); got != "OTAKU10" {
		t.Fatalf("unexpected code %q", got)
	}
}
