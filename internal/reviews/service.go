package reviews

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLookup interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type orderLookup interface {
	FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error)
}

// CreateInput is a customer's review submission.
type CreateInput struct {
	ProductID   uuid.UUID `json:"productId" validate:"required"`
	OrderNumber string    `json:"orderNumber" validate:"required,max=40"`
	Email       string    `json:"email" validate:"required,email"`
	Name        string    `json:"name" validate:"max=120"`
	Rating      int       `json:"rating" validate:"min=1,max=5"`
	Comment     string    `json:"comment" validate:"max=2000"`
	Images      []string  `json:"images" validate:"max=5,dive,url"`
}

// ReviewDTO is the public review shape. Admin listings include the email.
type ReviewDTO struct {
	ID            uuid.UUID          `json:"id"`
	ProductID     uuid.UUID          `json:"productId"`
	OrderNumber   string             `json:"orderNumber,omitempty"`
	CustomerName  string             `json:"customerName"`
	CustomerEmail string             `json:"customerEmail,omitempty"`
	Rating        int                `json:"rating"`
	Comment       string             `json:"comment"`
	Images        []string           `json:"images"`
	Status        enums.ReviewStatus `json:"status"`
	CreatedAt     time.Time          `json:"createdAt"`
}

// ListResult is one page of reviews.
type ListResult struct {
	Reviews    []ReviewDTO     `json:"reviews"`
	Pagination pagination.Meta `json:"pagination"`
}

// AdminListInput narrows the moderation queue.
type AdminListInput struct {
	Status    string
	ProductID *uuid.UUID
	Params    pagination.Params
}

// ServiceParams groups review service dependencies.
type ServiceParams struct {
	Repo     *Repository
	Products productLookup
	Orders   orderLookup
	TxRunner txRunner
	Logger   *logger.Logger
}

// Service handles verified-purchase reviews and keeps product rating
// aggregates in step with them.
type Service struct {
	repo     *Repository
	products productLookup
	orders   orderLookup
	tx       txRunner
	validate *validator.Validate
	logg     *logger.Logger
}

// NewService builds the review service.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("review repository required")
	case params.Products == nil:
		return nil, fmt.Errorf("product lookup required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order lookup required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{
		repo:     params.Repo,
		products: params.Products,
		orders:   params.Orders,
		tx:       params.TxRunner,
		validate: validator.New(),
		logg:     params.Logger,
	}, nil
}

// Create stores a pending review after checking the purchase.
func (s *Service) Create(ctx context.Context, input CreateInput) (*ReviewDTO, error) {
	input.OrderNumber = strings.ToUpper(strings.TrimSpace(input.OrderNumber))
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	input.Name = strings.TrimSpace(input.Name)
	input.Comment = strings.TrimSpace(input.Comment)
	if err := s.validate.Struct(input); err != nil {
		return nil, validationError(err)
	}

	if _, err := s.products.FindByID(ctx, input.ProductID); err != nil {
		return nil, lookupError(err, "product not found", "load product")
	}
	order, err := s.orders.FindByNumber(ctx, input.OrderNumber)
	if err != nil {
		return nil, lookupError(err, "order not found", "load order")
	}
	if !strings.EqualFold(strings.TrimSpace(order.CustomerEmail), input.Email) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !order.ContainsProduct(input.ProductID) {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, "this order does not contain the product")
	}

	name := input.Name
	if name == "" {
		name = order.CustomerName
	}
	review := &models.Review{
		ProductID:     input.ProductID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  name,
		CustomerEmail: input.Email,
		Rating:        input.Rating,
		Comment:       input.Comment,
		Images:        pq.StringArray(cleanImages(input.Images)),
		Status:        enums.ReviewStatusPending,
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		exists, err := repo.Exists(ctx, review.ProductID, review.CustomerEmail, review.OrderNumber)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check duplicate review")
		}
		if exists {
			return duplicateReview()
		}
		if err := repo.Create(ctx, review); err != nil {
			if db.IsUniqueViolation(err, uniqueReviewConstraint) {
				return duplicateReview()
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert review")
		}
		if _, err := repo.Recompute(ctx, review.ProductID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute rating")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.info(ctx, review, "review submitted")
	dto := toDTO(*review, false)
	return &dto, nil
}

// Moderate approves or rejects a review and refreshes the product rating.
func (s *Service) Moderate(ctx context.Context, id uuid.UUID, rawStatus string) (*ReviewDTO, error) {
	status, err := enums.ParseReviewStatus(strings.ToLower(strings.TrimSpace(rawStatus)))
	if err != nil || status == enums.ReviewStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be approved or rejected")
	}

	var review *models.Review
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "review not found", "load review")
		}
		if err := repo.UpdateStatus(ctx, id, status); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update review status")
		}
		if _, err := repo.Recompute(ctx, found.ProductID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute rating")
		}
		found.Status = status
		review = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.info(ctx, review, "review moderated")
	dto := toDTO(*review, true)
	return &dto, nil
}

// Delete removes a review and refreshes the product rating.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindByID(ctx, id)
		if err != nil {
			return lookupError(err, "review not found", "load review")
		}
		if err := repo.Delete(ctx, id); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete review")
		}
		if _, err := repo.Recompute(ctx, found.ProductID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recompute rating")
		}
		return nil
	})
}

// ListForProduct returns approved reviews for the storefront.
func (s *Service) ListForProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*ListResult, error) {
	params = params.Normalize(pagination.DefaultLimit)
	approved := enums.ReviewStatusApproved
	rows, total, err := s.repo.List(ctx, ListFilter{ProductID: &productID, Status: &approved}, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	return buildList(rows, total, params, false), nil
}

// ListForAdmin returns reviews in any status for moderation.
func (s *Service) ListForAdmin(ctx context.Context, input AdminListInput) (*ListResult, error) {
	params := input.Params.Normalize(pagination.DefaultLimit)
	filter := ListFilter{ProductID: input.ProductID}
	if raw := strings.TrimSpace(input.Status); raw != "" {
		status, err := enums.ParseReviewStatus(strings.ToLower(raw))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid review status")
		}
		filter.Status = &status
	}
	rows, total, err := s.repo.List(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	return buildList(rows, total, params, true), nil
}

// CountPending reports the moderation backlog.
func (s *Service) CountPending(ctx context.Context) (int64, error) {
	return s.repo.CountByStatus(ctx, enums.ReviewStatusPending)
}

func (s *Service) info(ctx context.Context, review *models.Review, msg string) {
	if s.logg == nil || review == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"review_id":  review.ID.String(),
		"product_id": review.ProductID.String(),
		"status":     string(review.Status),
	})
	s.logg.Info(s.logg.WithOrderNumber(logCtx, review.OrderNumber), msg)
}

func buildList(rows []models.Review, total int64, params pagination.Params, admin bool) *ListResult {
	out := make([]ReviewDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDTO(row, admin))
	}
	return &ListResult{Reviews: out, Pagination: pagination.NewMeta(params, total)}
}

func toDTO(r models.Review, admin bool) ReviewDTO {
	images := []string(r.Images)
	if images == nil {
		images = []string{}
	}
	dto := ReviewDTO{
		ID:           r.ID,
		ProductID:    r.ProductID,
		CustomerName: r.CustomerName,
		Rating:       r.Rating,
		Comment:      r.Comment,
		Images:       images,
		Status:       r.Status,
		CreatedAt:    r.CreatedAt,
	}
	if admin {
		dto.OrderNumber = r.OrderNumber
		dto.CustomerEmail = r.CustomerEmail
	}
	return dto
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

func duplicateReview() error {
	return pkgerrors.New(pkgerrors.CodeConflict, "you have already reviewed this product for this order")
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fields := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields = append(fields, fe.Field())
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid review").
			WithDetails(map[string]any{"fields": fields})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid review")
}

func lookupError(err error, notFound, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
