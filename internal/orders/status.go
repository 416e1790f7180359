package orders

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox/payloads"
)

// UpdateStatus applies an operator fulfilment transition. Cash on delivery
// orders settle when they are delivered.
func (s *Service) UpdateStatus(ctx context.Context, input StatusUpdateInput) (*OrderView, error) {
	next, err := enums.ParseOrderStatus(strings.ToLower(strings.TrimSpace(input.Status)))
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status")
	}
	note := optionalString(input.Note)

	var view OrderView
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.LockOrder(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		previous := order.OrderStatus
		if !previous.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot move order from "+string(previous)+" to "+string(next)).
				WithDetails(map[string]any{"from": previous, "to": next})
		}

		at := s.now().UTC()
		updates := map[string]any{"order_status": next}
		if next == enums.OrderStatusCancelled {
			reason := "cancelled by operator"
			if note != nil {
				reason = *note
			}
			updates["cancelled_at"] = at
			updates["cancellation_reason"] = reason
			order.CancelledAt = &at
			order.CancellationReason = &reason
		}
		if err := s.repo.WithTx(tx).UpdateFields(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		order.OrderStatus = next

		if next == enums.OrderStatusDelivered && order.PaymentMethod == enums.PaymentMethodCOD && order.PaymentStatus != enums.PaymentStatusPaid {
			if err := s.markPaid(ctx, tx, order, nil, at); err != nil {
				return err
			}
		}

		event := payloads.NewOrderEvent(order).WithPrevious(previous).WithNotes(note)
		if order.CancellationReason != nil && next == enums.OrderStatusCancelled {
			event = event.WithReason(*order.CancellationReason)
		}
		if err := s.emit(ctx, tx, enums.EventOrderStatusChanged, order.ID, input.Actor, event); err != nil {
			return err
		}
		view = NewOrderView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, view.OrderNumber)
		s.logg.Info(s.logg.WithField(logCtx, "order_status", next), "order status updated")
	}
	return &view, nil
}

// UpdatePaymentStatus marks an unpaid order's payment failed or a paid
// order refunded. A proof still awaiting review must be verified first.
func (s *Service) UpdatePaymentStatus(ctx context.Context, input PaymentStatusUpdateInput) (*OrderView, error) {
	next, err := enums.ParsePaymentStatus(strings.ToLower(strings.TrimSpace(input.Status)))
	if err != nil || (next != enums.PaymentStatusFailed && next != enums.PaymentStatusRefunded) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment status must be failed or refunded")
	}
	note := optionalString(input.Note)

	var view OrderView
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.LockOrder(ctx, tx, input.OrderID)
		if err != nil {
			return err
		}
		previous := order.PaymentStatus
		if !previous.CanTransitionTo(next) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cannot move payment from "+string(previous)+" to "+string(next)).
				WithDetails(map[string]any{"from": previous, "to": next})
		}
		if next == enums.PaymentStatusFailed {
			pending, err := s.verifications.WithTx(tx).HasUnresolved(ctx, order.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment verifications")
			}
			if pending {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "payment proof is awaiting review")
			}
		}

		updates := map[string]any{"payment_status": next}
		if note != nil {
			updates["payment_notes"] = note
			order.PaymentNotes = note
		}
		if err := s.repo.WithTx(tx).UpdateFields(ctx, order.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payment status")
		}
		order.PaymentStatus = next

		event := payloads.NewOrderEvent(order).WithPreviousPayment(previous).WithNotes(note)
		if err := s.emit(ctx, tx, enums.EventOrderPaymentStatusChanged, order.ID, input.Actor, event); err != nil {
			return err
		}
		view = NewOrderView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, view.OrderNumber)
		s.logg.Info(s.logg.WithField(logCtx, "payment_status", next), "order payment status updated")
	}
	return &view, nil
}
