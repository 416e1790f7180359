package coupons

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

const codeUniqueConstraint = "coupons_code_key"

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{2,31}$`)

// ValidationResult is returned by a successful checkout-time validation.
type ValidationResult struct {
	Valid          bool            `json:"valid"`
	Coupon         Summary         `json:"coupon"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	NewTotal       decimal.Decimal `json:"newTotal"`
}

// Applied is a coupon resolved for an order being created.
type Applied struct {
	Coupon   *models.Coupon
	Discount decimal.Decimal
}

// CouponInput carries admin create/update fields.
type CouponInput struct {
	Code              string
	Description       string
	DiscountType      enums.DiscountType
	DiscountValue     decimal.Decimal
	MinOrderAmount    *decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	UsageLimit        *int
	ValidFrom         time.Time
	ValidUntil        time.Time
	IsActive          *bool
}

// CouponList is a page of admin coupon rows.
type CouponList struct {
	Coupons []models.Coupon `json:"coupons"`
	Meta    pagination.Meta `json:"meta"`
}

// Service validates, redeems and manages coupons.
type Service struct {
	repo     *Repository
	logg     *logger.Logger
	currency string
	now      func() time.Time
}

// NewService builds a coupon service.
func NewService(repo *Repository, logg *logger.Logger, currency string) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("coupon repository required")
	}
	return &Service{repo: repo, logg: logg, currency: currency, now: time.Now}, nil
}

// Validate checks code against orderTotal without touching usage.
func (s *Service) Validate(ctx context.Context, code string, orderTotal decimal.Decimal) (*ValidationResult, error) {
	applied, err := s.Resolve(ctx, code, orderTotal)
	if err != nil {
		return nil, err
	}
	return &ValidationResult{
		Valid:          true,
		Coupon:         Summarize(applied.Coupon),
		DiscountAmount: applied.Discount,
		NewTotal:       orderTotal.Sub(applied.Discount),
	}, nil
}

// Resolve loads code and computes its discount on total, failing with the
// first applicable reason.
func (s *Service) Resolve(ctx context.Context, code string, total decimal.Decimal) (*Applied, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required")
	}
	if total.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order total must not be negative")
	}

	coupon, err := s.repo.FindByCode(ctx, normalized)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invalid coupon code")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}

	now := s.now()
	if ok, reason := Validity(coupon, now); !ok {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule, string(reason))
	}
	if !MeetsMinimum(coupon, total) {
		return nil, pkgerrors.New(pkgerrors.CodeBusinessRule,
			fmt.Sprintf("minimum order amount for this coupon is %s", s.formatAmount(*coupon.MinOrderAmount)))
	}
	return &Applied{Coupon: coupon, Discount: CalculateDiscount(coupon, total, now)}, nil
}

// Redeem counts one use of couponID inside tx. Callers guard it so each
// order redeems at most once. Going past the usage limit is logged, not
// refused: the order is already paid.
func (s *Service) Redeem(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	repo := s.repo.WithTx(tx)
	count, err := repo.IncrementUsage(ctx, couponID)
	if err != nil {
		return err
	}
	coupon, err := repo.FindByID(ctx, couponID)
	if err != nil {
		return err
	}
	if coupon.UsageLimit != nil && count > *coupon.UsageLimit && s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"coupon_code": coupon.Code,
			"used_count":  count,
			"usage_limit": *coupon.UsageLimit,
		})
		s.logg.Warn(logCtx, "coupon redeemed past usage limit")
	}
	return nil
}

// Create adds a coupon.
func (s *Service) Create(ctx context.Context, input CouponInput) (*models.Coupon, error) {
	coupon := &models.Coupon{IsActive: true}
	if err := applyInput(coupon, input); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, coupon); err != nil {
		if isDuplicateCode(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create coupon")
	}
	return coupon, nil
}

// Update replaces the editable fields of a coupon.
func (s *Service) Update(ctx context.Context, id uuid.UUID, input CouponInput) (*models.Coupon, error) {
	coupon, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := applyInput(coupon, input); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, coupon); err != nil {
		if isDuplicateCode(err) {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "coupon code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update coupon")
	}
	return coupon, nil
}

// Deactivate switches a coupon off. Coupons are kept for order history.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	coupon, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if !coupon.IsActive {
		return nil
	}
	coupon.IsActive = false
	if err := s.repo.Update(ctx, coupon); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate coupon")
	}
	return nil
}

// List returns a page of coupons for the admin console.
func (s *Service) List(ctx context.Context, params pagination.Params, filter ListFilter) (*CouponList, error) {
	params = params.Normalize(pagination.DefaultLimit)
	rows, total, err := s.repo.List(ctx, params, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list coupons")
	}
	if rows == nil {
		rows = []models.Coupon{}
	}
	return &CouponList{Coupons: rows, Meta: pagination.NewMeta(params, total)}, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	coupon, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return coupon, nil
}

func (s *Service) formatAmount(amount decimal.Decimal) string {
	if s.currency == "" {
		return amount.StringFixed(2)
	}
	return s.currency + " " + amount.StringFixed(2)
}

func applyInput(coupon *models.Coupon, input CouponInput) error {
	code := NormalizeCode(input.Code)
	if !codePattern.MatchString(code) {
		return pkgerrors.New(pkgerrors.CodeValidation, "code must be 3-32 letters, digits, dashes or underscores")
	}
	if !input.DiscountType.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid discount type")
	}
	if !input.DiscountValue.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "discount value must be positive")
	}
	if input.DiscountType == enums.DiscountTypePercentage && input.DiscountValue.GreaterThan(hundred) {
		return pkgerrors.New(pkgerrors.CodeValidation, "percentage discount cannot exceed 100")
	}
	if input.MinOrderAmount != nil && input.MinOrderAmount.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "minimum order amount must not be negative")
	}
	if input.MaxDiscountAmount != nil && !input.MaxDiscountAmount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeValidation, "max discount amount must be positive")
	}
	if input.UsageLimit != nil && *input.UsageLimit < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "usage limit must be at least 1")
	}
	if input.ValidFrom.IsZero() || input.ValidUntil.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "validity window is required")
	}
	if !input.ValidUntil.After(input.ValidFrom) {
		return pkgerrors.New(pkgerrors.CodeValidation, "validUntil must be after validFrom")
	}

	coupon.Code = code
	coupon.Description = strings.TrimSpace(input.Description)
	coupon.DiscountType = input.DiscountType
	coupon.DiscountValue = input.DiscountValue
	coupon.MinOrderAmount = input.MinOrderAmount
	coupon.MaxDiscountAmount = nil
	if input.DiscountType == enums.DiscountTypePercentage {
		coupon.MaxDiscountAmount = input.MaxDiscountAmount
	}
	coupon.UsageLimit = input.UsageLimit
	coupon.ValidFrom = input.ValidFrom.UTC()
	coupon.ValidUntil = input.ValidUntil.UTC()
	if input.IsActive != nil {
		coupon.IsActive = *input.IsActive
	}
	return nil
}

func isDuplicateCode(err error) bool {
	return db.IsUniqueViolation(err, codeUniqueConstraint) || db.IsUniqueViolation(err, "coupons.code")
}
