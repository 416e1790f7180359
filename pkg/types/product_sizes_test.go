package types

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

func TestProductSizesScanAndFind(t *testing.T) {
	var sizes ProductSizes
	raw := `[{"label":"A4","price":"1500"},{"label":"A3","price":"2200","originalPrice":"2600"}]`
	if err := sizes.Scan([]byte(raw)); err != nil {
		t.Fatalf("scan: %v", err)
	}

	a3, ok := sizes.Find(enums.SizeA3)
	if !ok {
		t.Fatal("expected A3 size")
	}
	if !a3.Price.Equal(decimal.NewFromInt(2200)) {
		t.Fatalf("unexpected A3 price %s", a3.Price)
	}
	if a3.OriginalPrice == nil || !a3.OriginalPrice.Equal(decimal.NewFromInt(2600)) {
		t.Fatalf("unexpected A3 original price %v", a3.OriginalPrice)
	}
	if _, ok := sizes.Find(enums.SizeA1); ok {
		t.Fatal("A1 should not be present")
	}
}

func TestProductSizesValueNil(t *testing.T) {
	var sizes ProductSizes
	v, err := sizes.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if v != "[]" {
		t.Fatalf("expected empty json array, got %v", v)
	}
}

func TestProductSizesScanRejectsUnknownType(t *testing.T) {
	var sizes ProductSizes
	if err := sizes.Scan(42); err == nil {
		t.Fatal("expected scan of int to fail")
	}
}
