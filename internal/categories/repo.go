package categories

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

// Repository persists category display fields.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a category repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// List returns stored categories by sort order.
func (r *Repository) List(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	if err := r.db.WithContext(ctx).Order("sort_order ASC, slug ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindBySlug loads one category.
func (r *Repository) FindBySlug(ctx context.Context, slug enums.ProductCategory) (*models.Category, error) {
	var row models.Category
	if err := r.db.WithContext(ctx).First(&row, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert writes the display fields for a slug.
func (r *Repository) Upsert(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "description", "image_url", "sort_order", "updated_at"}),
	}).Create(category).Error
}
