package products

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
	"github.com/kitsuneprints/storefront-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the product service.
type ServiceParams struct {
	Repo     *Repository
	TxRunner txRunner
	Logger   *logger.Logger
}

// Service serves the storefront catalog and admin product management.
type Service struct {
	repo     *Repository
	tx       txRunner
	validate *validator.Validate
	logg     *logger.Logger
}

// NewService constructs a product service instance.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{
		repo:     params.Repo,
		tx:       params.TxRunner,
		validate: validator.New(),
		logg:     params.Logger,
	}, nil
}

// Search lists products. A non-empty query runs the relaxation stages in
// order and returns the first non-empty stage.
func (s *Service) Search(ctx context.Context, input SearchInput) (*SearchResult, error) {
	params := input.Params.Normalize(pagination.CatalogLimit)
	base := ListFilter{Featured: input.Featured}
	if raw := strings.TrimSpace(input.Category); raw != "" {
		category, err := enums.ParseProductCategory(strings.ToLower(raw))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
		}
		base.Category = &category
	}

	term := NormalizeText(input.Query)
	if term == "" {
		rows, total, err := s.repo.List(ctx, base, params)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
		}
		return &SearchResult{Products: fromModels(rows), Pagination: pagination.NewMeta(params, total)}, nil
	}

	type attempt struct {
		stage  MatchStage
		term   string
		filter ListFilter
	}
	attempts := []attempt{
		{stage: StageExact, term: term, filter: withNameKey(base, term)},
		{stage: StageFull, term: term, filter: withContains(base, term)},
	}
	for _, candidate := range trimCandidates(term) {
		attempts = append(attempts, attempt{stage: StageTrim, term: candidate, filter: withContains(base, candidate)})
	}

	for _, a := range attempts {
		rows, total, err := s.repo.List(ctx, a.filter, params)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search products")
		}
		if total == 0 {
			continue
		}
		return &SearchResult{
			Products:   fromModels(rows),
			Pagination: pagination.NewMeta(params, total),
			Search:     &SearchMeta{Query: input.Query, Stage: a.stage, AppliedTerm: a.term},
		}, nil
	}

	return &SearchResult{
		Products:   []ProductDTO{},
		Pagination: pagination.NewMeta(params, 0),
		Search:     &SearchMeta{Query: input.Query, Stage: StageNone, NoMatch: true},
	}, nil
}

func withNameKey(f ListFilter, key string) ListFilter {
	f.NameKey = key
	return f
}

func withContains(f ListFilter, term string) ListFilter {
	f.Contains = term
	return f
}

// Get returns one product.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "load product")
	}
	dto := FromModel(*product)
	return &dto, nil
}

// FindByIDs loads products for checkout pricing.
func (s *Service) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	return s.repo.FindByIDs(ctx, ids)
}

// Create adds a catalog product.
func (s *Service) Create(ctx context.Context, input ProductInput) (*ProductDTO, error) {
	product := &models.Product{}
	if err := s.apply(product, input); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "product_id", product.ID.String()), "product created")
	}
	dto := FromModel(*product)
	return &dto, nil
}

// Update replaces the editable fields of a product. Rating and review
// count are left untouched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input ProductInput) (*ProductDTO, error) {
	var updated *models.Product
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		product, err := repo.FindByID(ctx, id)
		if err != nil {
			return notFoundOr(err, "load product")
		}
		if err := s.apply(product, input); err != nil {
			return err
		}
		if err := repo.Save(ctx, product); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product")
		}
		updated = product
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := FromModel(*updated)
	return &dto, nil
}

// Delete removes a product along with its reviews. Order line items keep
// their snapshot.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.WithContext(ctx).Where("product_id = ?", id).Delete(&models.Review{}).Error; err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete product reviews")
		}
		if err := s.repo.WithTx(tx).Delete(ctx, id); err != nil {
			return notFoundOr(err, "db: delete product")
		}
		return nil
	})
}

func (s *Service) apply(product *models.Product, input ProductInput) error {
	input.Name = strings.TrimSpace(input.Name)
	input.Description = strings.TrimSpace(input.Description)
	if err := s.validate.Struct(input); err != nil {
		return validationError(err)
	}
	category, err := enums.ParseProductCategory(strings.ToLower(strings.TrimSpace(input.Category)))
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid category")
	}
	sizes, err := buildSizes(input.Sizes)
	if err != nil {
		return err
	}
	tags := normalizeTags(input.Tags)

	product.Name = input.Name
	product.NameKey = NormalizeText(input.Name)
	product.Description = input.Description
	product.Category = category
	product.Images = pq.StringArray(cleanImages(input.Images))
	product.Sizes = sizes
	product.InStock = input.InStock
	product.Featured = input.Featured
	product.Tags = pq.StringArray(tags)
	product.SearchText = SearchText(input.Name, input.Description, tags)
	return nil
}

func buildSizes(inputs []SizeInput) (types.ProductSizes, error) {
	out := make(types.ProductSizes, 0, len(inputs))
	seen := map[enums.SizeLabel]struct{}{}
	for i, in := range inputs {
		label, err := enums.ParseSizeLabel(in.Label)
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("sizes[%d].label is invalid", i))
		}
		if _, dup := seen[label]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("size %s is listed twice", label))
		}
		seen[label] = struct{}{}
		if !in.Price.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("sizes[%d].price must be greater than zero", i))
		}
		if in.OriginalPrice != nil && in.OriginalPrice.LessThan(in.Price) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("sizes[%d].originalPrice cannot be below price", i))
		}
		out = append(out, types.ProductSize{
			Label:         label,
			Price:         in.Price.Round(2),
			OriginalPrice: in.OriginalPrice,
		})
	}
	return out, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, tag := range tags {
		clean := NormalizeText(tag)
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		out = append(out, clean)
	}
	return out
}

func cleanImages(images []string) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if trimmed := strings.TrimSpace(img); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Namespace())
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid product payload").
			WithDetails(map[string]any{"fields": fields})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product payload")
}

func notFoundOr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	var typed *pkgerrors.Error
	if errors.As(err, &typed) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
