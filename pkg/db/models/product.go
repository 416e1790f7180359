package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/types"
)

// Product is a catalog entry. Rating and ReviewCount are derived from
// approved reviews and never edited directly.
type Product struct {
	ID          uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	Name        string                `gorm:"column:name;not null"`
	NameKey     string                `gorm:"column:name_key;not null;index"`
	Description string                `gorm:"column:description;not null;default:''"`
	Category    enums.ProductCategory `gorm:"column:category;type:text;not null"`
	Images      pq.StringArray        `gorm:"column:images;type:text[];not null;default:'{}'"`
	Sizes       types.ProductSizes    `gorm:"column:sizes;type:jsonb;not null;default:'[]'"`
	InStock     bool                  `gorm:"column:in_stock;not null"`
	Featured    bool                  `gorm:"column:featured;not null;default:false"`
	Rating      decimal.Decimal       `gorm:"column:rating;type:numeric(2,1);not null;default:0"`
	ReviewCount int                   `gorm:"column:review_count;not null;default:0"`
	Tags        pq.StringArray        `gorm:"column:tags;type:text[];not null;default:'{}'"`
	SearchText  string                `gorm:"column:search_text;not null;default:''"`
	CreatedAt   time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// PrimaryImage returns the first image, if any.
func (p *Product) PrimaryImage() *string {
	if len(p.Images) == 0 {
		return nil
	}
	img := p.Images[0]
	return &img
}

// Category holds the display fields for a fixed category slug.
type Category struct {
	Slug        enums.ProductCategory `gorm:"column:slug;type:text;primaryKey"`
	Name        string                `gorm:"column:name;not null"`
	Description string                `gorm:"column:description;not null;default:''"`
	ImageURL    *string               `gorm:"column:image_url"`
	SortOrder   int                   `gorm:"column:sort_order;not null;default:0"`
	UpdatedAt   time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
