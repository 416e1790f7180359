package categories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
)

// defaults backs any slug that has no stored row yet.
var defaults = map[enums.ProductCategory]models.Category{
	enums.ProductCategoryPosters:     {Slug: enums.ProductCategoryPosters, Name: "Posters", SortOrder: 1},
	enums.ProductCategoryCanvas:      {Slug: enums.ProductCategoryCanvas, Name: "Canvas Prints", SortOrder: 2},
	enums.ProductCategoryFramed:      {Slug: enums.ProductCategoryFramed, Name: "Framed Prints", SortOrder: 3},
	enums.ProductCategoryStickers:    {Slug: enums.ProductCategoryStickers, Name: "Stickers", SortOrder: 4},
	enums.ProductCategoryWallScrolls: {Slug: enums.ProductCategoryWallScrolls, Name: "Wall Scrolls", SortOrder: 5},
	enums.ProductCategoryPostcards:   {Slug: enums.ProductCategoryPostcards, Name: "Postcards", SortOrder: 6},
}

type productCounter interface {
	CountByCategory(ctx context.Context) (map[enums.ProductCategory]int64, error)
}

// CategoryDTO is the public category shape.
type CategoryDTO struct {
	Slug         enums.ProductCategory `json:"slug"`
	Name         string                `json:"name"`
	Description  string                `json:"description"`
	ImageURL     *string               `json:"imageUrl,omitempty"`
	SortOrder    int                   `json:"sortOrder"`
	ProductCount int64                 `json:"productCount"`
}

// UpdateInput carries optional display changes.
type UpdateInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	ImageURL    *string `json:"imageUrl"`
	SortOrder   *int    `json:"sortOrder"`
}

// Service lists the fixed category set and edits its display fields.
type Service struct {
	repo     *Repository
	products productCounter
}

// NewService builds the category service.
func NewService(repo *Repository, products productCounter) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("category repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product counter required")
	}
	return &Service{repo: repo, products: products}, nil
}

// List returns every category, falling back to built-in display fields.
func (s *Service) List(ctx context.Context) ([]CategoryDTO, error) {
	stored, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	counts, err := s.products.CountByCategory(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count products")
	}

	bySlug := make(map[enums.ProductCategory]models.Category, len(stored))
	for _, row := range stored {
		bySlug[row.Slug] = row
	}
	out := make([]CategoryDTO, 0, len(defaults))
	for _, slug := range enums.ProductCategories() {
		row, ok := bySlug[slug]
		if !ok {
			row = defaults[slug]
		}
		out = append(out, toDTO(row, counts[slug]))
	}
	sortByOrder(out)
	return out, nil
}

// Update edits one category's display fields.
func (s *Service) Update(ctx context.Context, rawSlug string, input UpdateInput) (*CategoryDTO, error) {
	slug, err := enums.ParseProductCategory(strings.ToLower(strings.TrimSpace(rawSlug)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "category not found")
	}

	row, err := s.repo.FindBySlug(ctx, slug)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		def := defaults[slug]
		row = &def
	case err != nil:
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		row.Name = name
	}
	if input.Description != nil {
		row.Description = strings.TrimSpace(*input.Description)
	}
	if input.ImageURL != nil {
		if trimmed := strings.TrimSpace(*input.ImageURL); trimmed == "" {
			row.ImageURL = nil
		} else {
			row.ImageURL = &trimmed
		}
	}
	if input.SortOrder != nil {
		if *input.SortOrder < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "sortOrder must not be negative")
		}
		row.SortOrder = *input.SortOrder
	}

	if err := s.repo.Upsert(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save category")
	}
	counts, err := s.products.CountByCategory(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count products")
	}
	dto := toDTO(*row, counts[slug])
	return &dto, nil
}

func toDTO(row models.Category, count int64) CategoryDTO {
	return CategoryDTO{
		Slug:         row.Slug,
		Name:         row.Name,
		Description:  row.Description,
		ImageURL:     row.ImageURL,
		SortOrder:    row.SortOrder,
		ProductCount: count,
	}
}

func sortByOrder(rows []CategoryDTO) {
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].SortOrder < rows[j].SortOrder })
}
