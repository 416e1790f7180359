package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/internal/paymentmethods"
	"github.com/kitsuneprints/storefront-backend/pkg/db"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox/payloads"
)

const (
	maxOrderNumberAttempts = 3
	maxLineQuantity        = 99
	maxLines               = 50
)

// Create validates a checkout, prices it from the catalog, persists the
// order with an order.created event and then sends the confirmation. A
// failed confirmation is logged and does not fail the checkout.
func (s *Service) Create(ctx context.Context, input CreateOrderInput) (*CreateOrderResult, error) {
	customer, err := s.normalizeCustomer(input.Customer)
	if err != nil {
		return nil, err
	}
	method, err := enums.ParsePaymentMethod(input.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid payment method")
	}
	if !s.instructions.Supports(method) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method is not available")
	}

	items, subtotal, err := s.priceItems(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	shipping := decimal.Zero
	if input.ShippingProtection {
		shipping = s.shippingCost
	}
	gross := subtotal.Add(shipping)

	discount := decimal.Zero
	var couponID *uuid.UUID
	var discountCode *string
	if code := strings.TrimSpace(input.DiscountCode); code != "" {
		applied, err := s.coupons.Resolve(ctx, code, gross)
		if err != nil {
			return nil, err
		}
		discount = applied.Discount
		id := applied.Coupon.ID
		couponID = &id
		normalized := applied.Coupon.Code
		discountCode = &normalized
	}
	total := gross.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	order := &models.Order{
		CustomerName:       customer.Name,
		CustomerEmail:      customer.Email,
		CustomerPhone:      customer.Phone,
		AddressLine1:       customer.AddressLine1,
		AddressLine2:       optionalString(customer.AddressLine2),
		City:               customer.City,
		Province:           optionalString(customer.Province),
		PostalCode:         optionalString(customer.PostalCode),
		Country:            customer.Country,
		Notes:              optionalString(input.Notes),
		Subtotal:           subtotal,
		ShippingProtection: input.ShippingProtection,
		ShippingCost:       shipping,
		DiscountCode:       discountCode,
		DiscountAmount:     discount,
		CouponID:           couponID,
		Total:              total,
		PaymentMethod:      method,
		PaymentStatus:      enums.PaymentStatusPending,
		OrderStatus:        enums.OrderStatusProcessing,
		Items:              items,
	}

	if err := s.persistNew(ctx, order); err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, order.OrderNumber)
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"payment_method": method,
			"total":          total.StringFixed(2),
		}), "order created")
	}

	if s.notifier != nil {
		if err := s.notifier.SendOrderConfirmation(ctx, order); err != nil && s.logg != nil {
			s.logg.Error(s.logg.WithOrderNumber(ctx, order.OrderNumber), "order confirmation failed", err)
		}
	}

	result := &CreateOrderResult{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		Subtotal:      subtotal,
		ShippingCost:  shipping,
		Discount:      discount,
		Total:         total,
		PaymentMethod: method,
	}
	if ins, err := s.instructions.Instructions(method, total, order.OrderNumber); err == nil {
		result.Instructions = &ins
	} else if !errors.Is(err, paymentmethods.ErrNoInstructions) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build payment instructions")
	}
	return result, nil
}

// persistNew assigns an order number and writes the order with its event,
// retrying with a fresh number on a number collision.
func (s *Service) persistNew(ctx context.Context, order *models.Order) error {
	for attempt := 1; ; attempt++ {
		number, err := s.numbers.Next()
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate order number")
		}
		order.OrderNumber = number

		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
				return err
			}
			return s.emit(ctx, tx, enums.EventOrderCreated, order.ID, outbox.CustomerActor(), payloads.NewOrderEvent(order))
		})
		if err == nil {
			return nil
		}
		if isDuplicateOrderNumber(err) && attempt < maxOrderNumberAttempts {
			s.logWarn(ctx, "order number collision, regenerating", map[string]any{"order_number": number, "attempt": attempt})
			continue
		}
		if typed := pkgerrors.As(err); typed != nil {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}
}

// priceItems resolves every line against the catalog. Any missing product,
// size or stock fails the whole checkout.
func (s *Service) priceItems(ctx context.Context, lines []ItemInput) ([]models.OrderItem, decimal.Decimal, error) {
	if len(lines) == 0 {
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	if len(lines) > maxLines {
		return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("an order can contain at most %d items", maxLines))
	}

	ids := make([]uuid.UUID, 0, len(lines))
	seen := map[uuid.UUID]struct{}{}
	for i, line := range lines {
		if line.ProductID == uuid.Nil {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].productId is required", i))
		}
		if line.Quantity < 1 || line.Quantity > maxLineQuantity {
			return nil, decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("items[%d].quantity must be between 1 and %d", i, maxLineQuantity))
		}
		if _, ok := seen[line.ProductID]; !ok {
			seen[line.ProductID] = struct{}{}
			ids = append(ids, line.ProductID)
		}
	}

	products, err := s.catalog.FindByIDs(ctx, ids)
	if err != nil {
		return nil, decimal.Zero, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
	}
	byID := make(map[uuid.UUID]*models.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}

	items := make([]models.OrderItem, 0, len(lines))
	subtotal := decimal.Zero
	for _, line := range lines {
		product, ok := byID[line.ProductID]
		if !ok || !product.InStock {
			return nil, decimal.Zero, itemUnavailable(line.ProductID.String())
		}
		label, err := enums.ParseSizeLabel(line.Size)
		if err != nil {
			return nil, decimal.Zero, itemUnavailable(product.Name + " (" + line.Size + ")")
		}
		size, ok := product.Sizes.Find(label)
		if !ok {
			return nil, decimal.Zero, itemUnavailable(product.Name + " (" + string(label) + ")")
		}
		lineTotal := size.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, models.OrderItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Size:        label,
			Quantity:    line.Quantity,
			UnitPrice:   size.Price,
			LineTotal:   lineTotal,
			ImageURL:    product.PrimaryImage(),
		})
	}
	return items, subtotal, nil
}

func (s *Service) normalizeCustomer(in CustomerInput) (CustomerInput, error) {
	out := CustomerInput{
		Name:         collapseSpaces(in.Name),
		Email:        normalizeEmail(in.Email),
		Phone:        collapseSpaces(in.Phone),
		AddressLine1: collapseSpaces(in.AddressLine1),
		AddressLine2: collapseSpaces(in.AddressLine2),
		City:         collapseSpaces(in.City),
		Province:     collapseSpaces(in.Province),
		PostalCode:   strings.TrimSpace(in.PostalCode),
		Country:      collapseSpaces(in.Country),
	}
	if out.Country == "" {
		out.Country = s.country
	}

	missing := []string{}
	for field, value := range map[string]string{
		"name":         out.Name,
		"email":        out.Email,
		"phone":        out.Phone,
		"addressLine1": out.AddressLine1,
		"city":         out.City,
	} {
		if value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return out, pkgerrors.New(pkgerrors.CodeValidation, "missing required customer fields").
			WithDetails(map[string]any{"fields": missing})
	}
	if err := s.validate.Var(out.Email, "email"); err != nil {
		return out, pkgerrors.New(pkgerrors.CodeValidation, "invalid email address")
	}
	return out, nil
}

func itemUnavailable(what string) error {
	return pkgerrors.New(pkgerrors.CodeBusinessRule, "item unavailable").
		WithDetails(map[string]any{"item": what})
}

func isDuplicateOrderNumber(err error) bool {
	return db.IsUniqueViolation(err, orderNumberConstraint) || db.IsUniqueViolation(err, "orders.order_number")
}

func collapseSpaces(value string) string {
	return strings.Join(strings.Fields(value), " ")
}
