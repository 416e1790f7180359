package enums

import (
	"fmt"
	"slices"
)

// ProductCategory represents the canonical product categories supported by the catalog.
type ProductCategory string

const (
	ProductCategoryPosters     ProductCategory = "posters"
	ProductCategoryCanvas      ProductCategory = "canvas"
	ProductCategoryFramed      ProductCategory = "framed"
	ProductCategoryStickers    ProductCategory = "stickers"
	ProductCategoryWallScrolls ProductCategory = "wall_scrolls"
	ProductCategoryPostcards   ProductCategory = "postcards"
)

var validProductCategories = []ProductCategory{
	ProductCategoryPosters,
	ProductCategoryCanvas,
	ProductCategoryFramed,
	ProductCategoryStickers,
	ProductCategoryWallScrolls,
	ProductCategoryPostcards,
}

// String implements fmt.Stringer.
func (c ProductCategory) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ProductCategory.
func (c ProductCategory) IsValid() bool {
	return slices.Contains(validProductCategories, c)
}

// ProductCategories returns every category in display order.
func ProductCategories() []ProductCategory {
	out := make([]ProductCategory, len(validProductCategories))
	copy(out, validProductCategories)
	return out
}

// ParseProductCategory converts raw input into a ProductCategory.
func ParseProductCategory(value string) (ProductCategory, error) {
	return parseEnum(validProductCategories, value, "product category")
}

// SizeLabel is a print size offered for a product.
type SizeLabel string

const (
	SizeA5    SizeLabel = "A5"
	SizeA4    SizeLabel = "A4"
	SizeA3    SizeLabel = "A3"
	SizeA2    SizeLabel = "A2"
	SizeA1    SizeLabel = "A1"
	Size12x18 SizeLabel = "12x18"
	Size18x24 SizeLabel = "18x24"
	Size24x36 SizeLabel = "24x36"
)

var validSizeLabels = []SizeLabel{
	SizeA5,
	SizeA4,
	SizeA3,
	SizeA2,
	SizeA1,
	Size12x18,
	Size18x24,
	Size24x36,
}

func (s SizeLabel) String() string {
	return string(s)
}

func (s SizeLabel) IsValid() bool {
	return slices.Contains(validSizeLabels, s)
}

// ParseSizeLabel converts raw input into a SizeLabel. Matching ignores case
// so "a4" and "12X18" are accepted.
func ParseSizeLabel(value string) (SizeLabel, error) {
	key := normalizeEnumKey(value)
	for _, candidate := range validSizeLabels {
		if normalizeEnumKey(string(candidate)) == key {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid size %q", value)
}
