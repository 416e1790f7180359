package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/internal/coupons"
	"github.com/kitsuneprints/storefront-backend/internal/paymentmethods"
	"github.com/kitsuneprints/storefront-backend/pkg/config"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox/payloads"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
	"github.com/kitsuneprints/storefront-backend/pkg/storage/gcs"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productCatalog interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

type couponApplier interface {
	Resolve(ctx context.Context, code string, total decimal.Decimal) (*coupons.Applied, error)
	Redeem(ctx context.Context, tx *gorm.DB, couponID uuid.UUID) error
}

type instructionSource interface {
	Instructions(method enums.PaymentMethod, total decimal.Decimal, orderNumber string) (paymentmethods.Instructions, error)
	Supports(method enums.PaymentMethod) bool
}

// ConfirmationSender delivers the order confirmation while the customer
// waits on checkout.
type ConfirmationSender interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
}

// ServiceParams groups dependencies for the order service.
type ServiceParams struct {
	Repo            *Repository
	Verifications   *VerificationRepository
	Catalog         productCatalog
	Coupons         couponApplier
	Instructions    instructionSource
	Uploader        gcs.Uploader
	Outbox          outbox.Emitter
	Notifier        ConfirmationSender
	TxRunner        txRunner
	Numbers         *NumberGenerator
	Shop            config.ShopConfig
	MaxReceiptBytes int64
	Logger          *logger.Logger
}

// Service runs the order lifecycle: checkout, tracking, payment proof and
// operator transitions.
type Service struct {
	repo            *Repository
	verifications   *VerificationRepository
	catalog         productCatalog
	coupons         couponApplier
	instructions    instructionSource
	uploader        gcs.Uploader
	outbox          outbox.Emitter
	notifier        ConfirmationSender
	tx              txRunner
	numbers         *NumberGenerator
	shippingCost    decimal.Decimal
	country         string
	rejection       enums.RejectionPolicy
	maxReceiptBytes int64
	validate        *validator.Validate
	logg            *logger.Logger
	now             func() time.Time
}

// NewService builds the order service.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Verifications == nil:
		return nil, fmt.Errorf("verification repository required")
	case params.Catalog == nil:
		return nil, fmt.Errorf("product catalog required")
	case params.Coupons == nil:
		return nil, fmt.Errorf("coupon service required")
	case params.Instructions == nil:
		return nil, fmt.Errorf("payment instructions required")
	case params.Uploader == nil:
		return nil, fmt.Errorf("receipt uploader required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox emitter required")
	case params.TxRunner == nil:
		return nil, fmt.Errorf("transaction runner required")
	}

	shipping, err := params.Shop.ShippingProtection()
	if err != nil {
		return nil, err
	}
	policy, err := enums.ParseRejectionPolicy(strings.TrimSpace(params.Shop.RejectionPolicy))
	if err != nil {
		return nil, err
	}
	numbers := params.Numbers
	if numbers == nil {
		numbers = NewNumberGenerator(params.Shop.OrderNumberPrefix)
	}
	maxReceipt := params.MaxReceiptBytes
	if maxReceipt <= 0 {
		maxReceipt = 10 << 20
	}

	return &Service{
		repo:            params.Repo,
		verifications:   params.Verifications,
		catalog:         params.Catalog,
		coupons:         params.Coupons,
		instructions:    params.Instructions,
		uploader:        params.Uploader,
		outbox:          params.Outbox,
		notifier:        params.Notifier,
		tx:              params.TxRunner,
		numbers:         numbers,
		shippingCost:    shipping,
		country:         "Pakistan",
		rejection:       policy,
		maxReceiptBytes: maxReceipt,
		validate:        validator.New(),
		logg:            params.Logger,
		now:             time.Now,
	}, nil
}

// RejectionPolicy returns the configured outcome for rejected payments.
func (s *Service) RejectionPolicy() enums.RejectionPolicy {
	return s.rejection
}

// Track returns an order only when both order number and email match.
func (s *Service) Track(ctx context.Context, orderNumber, email string) (*TrackResult, error) {
	order, err := s.loadForCustomer(ctx, orderNumber, email)
	if err != nil {
		return nil, err
	}
	result := &TrackResult{Order: NewOrderView(order)}
	if order.PaymentStatus != enums.PaymentStatusPaid && order.OrderStatus != enums.OrderStatusCancelled {
		if ins, err := s.instructions.Instructions(order.PaymentMethod, order.Total, order.OrderNumber); err == nil {
			result.Instructions = &ins
		}
	}
	return result, nil
}

// Get returns the admin view of one order.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*OrderDetail, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadErr(err)
	}
	verifications, err := s.verifications.ListByOrder(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment verifications")
	}
	if verifications == nil {
		verifications = []models.PaymentVerification{}
	}
	return &OrderDetail{Order: NewOrderView(order), Verifications: verifications}, nil
}

// Find loads an order with items by id.
func (s *Service) Find(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLoadErr(err)
	}
	return order, nil
}

// FindByNumber loads an order with items by order number.
func (s *Service) FindByNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, mapLoadErr(err)
	}
	return order, nil
}

// List returns a filtered page of orders for the admin console.
func (s *Service) List(ctx context.Context, params pagination.Params, filter ListFilter) (*OrderList, error) {
	params = params.Normalize(pagination.DefaultLimit)
	rows, total, err := s.repo.List(ctx, params, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	views := make([]OrderView, 0, len(rows))
	for i := range rows {
		views = append(views, NewOrderView(&rows[i]))
	}
	return &OrderList{Orders: views, Meta: pagination.NewMeta(params, total)}, nil
}

// LockOrder loads an order FOR UPDATE inside tx.
func (s *Service) LockOrder(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.LockByID(ctx, tx, id)
	if err != nil {
		return nil, mapLoadErr(err)
	}
	return order, nil
}

// ApprovePayment marks order paid inside tx: payment status paid, order
// confirmed when still processing, coupon redeemed at most once. It emits
// order.payment_verified.
func (s *Service) ApprovePayment(ctx context.Context, tx *gorm.DB, order *models.Order, decision PaymentDecision, actor *outbox.ActorRef) error {
	if order.OrderStatus == enums.OrderStatusCancelled {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
	}
	at := decision.At
	if at.IsZero() {
		at = s.now().UTC()
	}
	if err := s.markPaid(ctx, tx, order, decision.Notes, at); err != nil {
		return err
	}

	event := payloads.NewOrderEvent(order).WithNotes(decision.Notes)
	if decision.VerificationID != nil {
		event = event.WithVerification(*decision.VerificationID)
	}
	return s.emit(ctx, tx, enums.EventOrderPaymentVerified, order.ID, actor, event)
}

// RejectPayment records a rejected payment proof inside tx. The order
// status follows the configured rejection policy. It emits
// order.payment_rejected.
func (s *Service) RejectPayment(ctx context.Context, tx *gorm.DB, order *models.Order, decision PaymentDecision, actor *outbox.ActorRef) error {
	if order.PaymentStatus.IsSettled() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is already settled")
	}
	at := decision.At
	if at.IsZero() {
		at = s.now().UTC()
	}
	updates := map[string]any{
		"payment_status": enums.PaymentStatusRejected,
		"payment_notes":  decision.Notes,
	}
	previous := order.OrderStatus
	if s.rejection == enums.RejectionPolicyCancelOrder && !order.OrderStatus.IsTerminal() {
		reason := "payment could not be verified"
		updates["order_status"] = enums.OrderStatusCancelled
		updates["cancelled_at"] = at
		updates["cancellation_reason"] = reason
		order.OrderStatus = enums.OrderStatusCancelled
		order.CancelledAt = &at
		order.CancellationReason = &reason
	}
	if err := s.repo.WithTx(tx).UpdateFields(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment")
	}
	order.PaymentStatus = enums.PaymentStatusRejected
	order.PaymentNotes = decision.Notes

	event := payloads.NewOrderEvent(order).WithNotes(decision.Notes)
	if previous != order.OrderStatus {
		event = event.WithPrevious(previous)
	}
	if decision.VerificationID != nil {
		event = event.WithVerification(*decision.VerificationID)
	}
	return s.emit(ctx, tx, enums.EventOrderPaymentRejected, order.ID, actor, event)
}

// markPaid settles the order and redeems its coupon once.
func (s *Service) markPaid(ctx context.Context, tx *gorm.DB, order *models.Order, notes *string, at time.Time) error {
	repo := s.repo.WithTx(tx)
	updates := map[string]any{
		"payment_status":       enums.PaymentStatusPaid,
		"payment_confirmed_at": at,
	}
	if notes != nil {
		updates["payment_notes"] = notes
		order.PaymentNotes = notes
	}
	if order.OrderStatus == enums.OrderStatusProcessing {
		updates["order_status"] = enums.OrderStatusConfirmed
		order.OrderStatus = enums.OrderStatusConfirmed
	}
	if err := repo.UpdateFields(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment")
	}
	order.PaymentStatus = enums.PaymentStatusPaid
	order.PaymentConfirmedAt = &at

	if order.CouponID == nil {
		return nil
	}
	first, err := repo.MarkCouponRedeemed(ctx, order.ID, at)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark coupon redeemed")
	}
	if !first {
		return nil
	}
	if err := s.coupons.Redeem(ctx, tx, *order.CouponID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redeem coupon")
	}
	order.CouponRedeemedAt = &at
	return nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, orderID uuid.UUID, actor *outbox.ActorRef, data payloads.OrderEvent) error {
	return s.emitEvent(ctx, tx, orderEvent(eventType, orderID, actor, data))
}

// emitOnce is used by the sweeps: an order is reminded and expired at most
// once even if a sweep overlaps a previous run.
func (s *Service) emitOnce(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, orderID uuid.UUID, data payloads.OrderEvent) error {
	event := orderEvent(eventType, orderID, outbox.SystemActor(), data)
	event.Once = true
	return s.emitEvent(ctx, tx, event)
}

func (s *Service) emitEvent(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(event.EventType))
	}
	return nil
}

func orderEvent(eventType enums.OutboxEventType, orderID uuid.UUID, actor *outbox.ActorRef, data payloads.OrderEvent) outbox.DomainEvent {
	if actor == nil {
		actor = outbox.SystemActor()
	}
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         actor,
		Data:          data,
	}
}

func (s *Service) loadForCustomer(ctx context.Context, orderNumber, email string) (*models.Order, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	email = normalizeEmail(email)
	if orderNumber == "" || email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order number and email are required")
	}
	order, err := s.repo.FindByNumber(ctx, orderNumber)
	if err != nil {
		return nil, mapLoadErr(err)
	}
	if !strings.EqualFold(order.CustomerEmail, email) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *Service) logWarn(ctx context.Context, msg string, fields map[string]any) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), msg)
}

func mapLoadErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
