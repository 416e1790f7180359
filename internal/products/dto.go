package products

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
	"github.com/kitsuneprints/storefront-backend/pkg/types"
)

// SizeInput is one size row on an admin product payload.
type SizeInput struct {
	Label         string           `json:"label" validate:"required"`
	Price         decimal.Decimal  `json:"price"`
	OriginalPrice *decimal.Decimal `json:"originalPrice,omitempty"`
}

// ProductInput is the admin create/replace payload.
type ProductInput struct {
	Name        string      `json:"name" validate:"required,max=200"`
	Description string      `json:"description" validate:"max=5000"`
	Category    string      `json:"category" validate:"required"`
	Images      []string    `json:"images" validate:"max=12,dive,url"`
	Sizes       []SizeInput `json:"sizes" validate:"required,min=1,max=8,dive"`
	InStock     bool        `json:"inStock"`
	Featured    bool        `json:"featured"`
	Tags        []string    `json:"tags" validate:"max=30,dive,max=50"`
}

// SearchInput carries the storefront listing query.
type SearchInput struct {
	Query    string
	Category string
	Featured *bool
	Params   pagination.Params
}

// SearchMeta explains which relaxation stage produced the page.
type SearchMeta struct {
	Query       string     `json:"query"`
	Stage       MatchStage `json:"stage"`
	AppliedTerm string     `json:"appliedTerm,omitempty"`
	NoMatch     bool       `json:"noMatch"`
}

// SearchResult is a page of products with optional search metadata.
type SearchResult struct {
	Products   []ProductDTO    `json:"products"`
	Pagination pagination.Meta `json:"pagination"`
	Search     *SearchMeta     `json:"search,omitempty"`
}

// ProductDTO is the public product shape.
type ProductDTO struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Category    enums.ProductCategory `json:"category"`
	Images      []string              `json:"images"`
	Sizes       types.ProductSizes    `json:"sizes"`
	InStock     bool                  `json:"inStock"`
	Featured    bool                  `json:"featured"`
	Rating      decimal.Decimal       `json:"rating"`
	ReviewCount int                   `json:"reviewCount"`
	Tags        []string              `json:"tags"`
	CreatedAt   time.Time             `json:"createdAt"`
	UpdatedAt   time.Time             `json:"updatedAt"`
}

// FromModel maps a product row to its DTO.
func FromModel(p models.Product) ProductDTO {
	images := []string(p.Images)
	if images == nil {
		images = []string{}
	}
	tags := []string(p.Tags)
	if tags == nil {
		tags = []string{}
	}
	sizes := p.Sizes
	if sizes == nil {
		sizes = types.ProductSizes{}
	}
	return ProductDTO{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Images:      images,
		Sizes:       sizes,
		InStock:     p.InStock,
		Featured:    p.Featured,
		Rating:      p.Rating,
		ReviewCount: p.ReviewCount,
		Tags:        tags,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func fromModels(rows []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromModel(row))
	}
	return out
}
