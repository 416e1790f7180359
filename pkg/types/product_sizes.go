package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// ProductSize is one purchasable print size of a product.
type ProductSize struct {
	Label         enums.SizeLabel  `json:"label"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
}

// ProductSizes is persisted as a JSONB array.
type ProductSizes []ProductSize

// Find returns the size with the given label.
func (s ProductSizes) Find(label enums.SizeLabel) (ProductSize, bool) {
	for _, size := range s {
		if size.Label == label {
			return size, true
		}
	}
	return ProductSize{}, false
}

// Value marshals the sizes into JSON for Postgres.
func (s ProductSizes) Value() (driver.Value, error) {
	if s == nil {
		return "[]", nil
	}
	buf, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(buf), nil
}

// Scan decodes JSONB into the slice.
func (s *ProductSizes) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("product sizes: unsupported scan type %T", value)
	}

	var result ProductSizes
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	*s = result
	return nil
}
