package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/internal/orders"
	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// orderTransitions is the slice of the order service that settles payments.
type orderTransitions interface {
	LockOrder(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Order, error)
	ApprovePayment(ctx context.Context, tx *gorm.DB, order *models.Order, decision orders.PaymentDecision, actor *outbox.ActorRef) error
	RejectPayment(ctx context.Context, tx *gorm.DB, order *models.Order, decision orders.PaymentDecision, actor *outbox.ActorRef) error
}

// VerifyInput is an operator decision on one payment verification.
type VerifyInput struct {
	VerificationID uuid.UUID
	Approved       bool
	Notes          string
	OperatorID     uuid.UUID
}

// VerificationView is the admin JSON shape of a verification record.
type VerificationView struct {
	ID            uuid.UUID               `json:"id"`
	OrderID       uuid.UUID               `json:"orderId"`
	OrderNumber   string                  `json:"orderNumber"`
	TransactionID string                  `json:"transactionId"`
	ReceiptURL    *string                 `json:"receiptUrl,omitempty"`
	CustomerNotes *string                 `json:"customerNotes,omitempty"`
	State         enums.VerificationState `json:"state"`
	AdminNotes    *string                 `json:"adminNotes,omitempty"`
	VerifiedAt    *time.Time              `json:"verifiedAt,omitempty"`
	VerifiedBy    *uuid.UUID              `json:"verifiedBy,omitempty"`
	CreatedAt     time.Time               `json:"createdAt"`
}

// VerificationList is a page of verification records.
type VerificationList struct {
	Verifications []VerificationView `json:"verifications"`
	Meta          pagination.Meta    `json:"meta"`
}

// VerifyResult reports the decision and the resulting order state.
type VerifyResult struct {
	Verification VerificationView    `json:"verification"`
	OrderNumber  string              `json:"orderNumber"`
	PaymentState enums.PaymentStatus `json:"paymentStatus"`
	OrderStatus  enums.OrderStatus   `json:"orderStatus"`
}

// ReconcileResult describes what Reconcile changed, if anything.
type ReconcileResult struct {
	OrderNumber    string              `json:"orderNumber"`
	Before         enums.PaymentStatus `json:"before"`
	After          enums.PaymentStatus `json:"after"`
	Changed        bool                `json:"changed"`
	VerificationID *uuid.UUID          `json:"verificationId,omitempty"`
	Reason         string              `json:"reason,omitempty"`
}

// Service runs operator payment verification.
type Service struct {
	verifications *orders.VerificationRepository
	orders        orderTransitions
	tx            txRunner
	logg          *logger.Logger
	now           func() time.Time
}

// NewService wires the payment verification service.
func NewService(verifications *orders.VerificationRepository, ordersSvc orderTransitions, tx txRunner, logg *logger.Logger) (*Service, error) {
	switch {
	case verifications == nil:
		return nil, fmt.Errorf("verification repository required")
	case ordersSvc == nil:
		return nil, fmt.Errorf("orders service required")
	case tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	}
	return &Service{
		verifications: verifications,
		orders:        ordersSvc,
		tx:            tx,
		logg:          logg,
		now:           time.Now,
	}, nil
}

// Verify resolves a pending verification and transitions its order in the
// same transaction. Resolved records are rejected with STATE_CONFLICT.
func (s *Service) Verify(ctx context.Context, input VerifyInput) (*VerifyResult, error) {
	if input.VerificationID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "verification id is required")
	}
	notes := optionalString(input.Notes)
	var operator *uuid.UUID
	if input.OperatorID != uuid.Nil {
		id := input.OperatorID
		operator = &id
	}
	actor := outbox.AdminActor(input.OperatorID)

	var result VerifyResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.verifications.WithTx(tx)
		record, err := repo.LockByID(ctx, input.VerificationID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment verification not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment verification")
		}
		if record.IsResolved() {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment verification already resolved").
				WithDetails(map[string]any{"state": record.State()})
		}

		at := s.now().UTC()
		ok, err := repo.Resolve(ctx, record.ID, input.Approved, notes, operator, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve payment verification")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment verification already resolved")
		}
		verified := input.Approved
		record.Verified = &verified
		record.AdminNotes = notes
		record.VerifiedAt = &at
		record.VerifiedBy = operator

		order, err := s.orders.LockOrder(ctx, tx, record.OrderID)
		if err != nil {
			return err
		}
		decision := orders.PaymentDecision{
			VerificationID: &record.ID,
			Notes:          notes,
			OperatorID:     operator,
			At:             at,
		}
		if input.Approved {
			err = s.orders.ApprovePayment(ctx, tx, order, decision, actor)
		} else {
			err = s.orders.RejectPayment(ctx, tx, order, decision, actor)
		}
		if err != nil {
			return err
		}

		result = VerifyResult{
			Verification: NewVerificationView(record),
			OrderNumber:  order.OrderNumber,
			PaymentState: order.PaymentStatus,
			OrderStatus:  order.OrderStatus,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, result.OrderNumber)
		s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
			"verification_id": input.VerificationID.String(),
			"approved":        input.Approved,
		}), "payment verification resolved")
	}
	return &result, nil
}

// Reconcile re-derives an order's payment status from its latest resolved
// verification. Orders with a submission still awaiting review are left
// alone.
func (s *Service) Reconcile(ctx context.Context, orderID uuid.UUID) (*ReconcileResult, error) {
	var result ReconcileResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.orders.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		result = ReconcileResult{OrderNumber: order.OrderNumber, Before: order.PaymentStatus, After: order.PaymentStatus}

		repo := s.verifications.WithTx(tx)
		pending, err := repo.HasUnresolved(ctx, order.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment verifications")
		}
		if pending {
			result.Reason = "submission awaiting review"
			return nil
		}
		latest, err := repo.LatestResolved(ctx, order.ID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			result.Reason = "no resolved verification"
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest verification")
		}
		id := latest.ID
		result.VerificationID = &id

		decision := orders.PaymentDecision{
			VerificationID: &id,
			Notes:          latest.AdminNotes,
			OperatorID:     latest.VerifiedBy,
			At:             s.now().UTC(),
		}
		if latest.VerifiedAt != nil {
			decision.At = latest.VerifiedAt.UTC()
		}
		actor := outbox.SystemActor()

		switch {
		case *latest.Verified && order.PaymentStatus != enums.PaymentStatusPaid:
			if order.OrderStatus == enums.OrderStatusCancelled {
				result.Reason = "order is cancelled"
				return nil
			}
			if err := s.orders.ApprovePayment(ctx, tx, order, decision, actor); err != nil {
				return err
			}
		case !*latest.Verified && order.PaymentStatus == enums.PaymentStatusPending:
			if err := s.orders.RejectPayment(ctx, tx, order, decision, actor); err != nil {
				return err
			}
		default:
			result.Reason = "already consistent"
			return nil
		}
		result.After = order.PaymentStatus
		result.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Changed && s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, result.OrderNumber)
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"before": result.Before,
			"after":  result.After,
		}), "order payment status reconciled")
	}
	return &result, nil
}

// List returns a page of verification records, optionally filtered by
// state.
func (s *Service) List(ctx context.Context, params pagination.Params, state string) (*VerificationList, error) {
	params = params.Normalize(pagination.DefaultLimit)
	var filter *enums.VerificationState
	if trimmed := strings.TrimSpace(state); trimmed != "" {
		parsed, err := enums.ParseVerificationState(strings.ToLower(trimmed))
		if err != nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid verification status")
		}
		filter = &parsed
	}
	rows, total, err := s.verifications.List(ctx, params, filter)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment verifications")
	}
	views := make([]VerificationView, 0, len(rows))
	for i := range rows {
		views = append(views, NewVerificationView(&rows[i]))
	}
	return &VerificationList{Verifications: views, Meta: pagination.NewMeta(params, total)}, nil
}

// CountPending returns the number of submissions awaiting review.
func (s *Service) CountPending(ctx context.Context) (int64, error) {
	count, err := s.verifications.CountPending(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count pending verifications")
	}
	return count, nil
}

// NewVerificationView maps a record to its JSON shape.
func NewVerificationView(v *models.PaymentVerification) VerificationView {
	return VerificationView{
		ID:            v.ID,
		OrderID:       v.OrderID,
		OrderNumber:   v.OrderNumber,
		TransactionID: v.TransactionID,
		ReceiptURL:    v.ReceiptURL,
		CustomerNotes: v.CustomerNotes,
		State:         v.State(),
		AdminNotes:    v.AdminNotes,
		VerifiedAt:    v.VerifiedAt,
		VerifiedBy:    v.VerifiedBy,
		CreatedAt:     v.CreatedAt,
	}
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
