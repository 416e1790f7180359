package orders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox/payloads"
	"github.com/kitsuneprints/storefront-backend/pkg/storage/gcs"
)

const minTransactionIDLength = 3

var allowedReceiptTypes = map[string]struct{}{
	"image/png":       {},
	"image/jpeg":      {},
	"image/webp":      {},
	"application/pdf": {},
}

// SubmitPayment stores a customer's payment proof and opens a pending
// verification for operator review. The receipt upload happens before the
// transaction; an upload failure aborts the submission.
func (s *Service) SubmitPayment(ctx context.Context, input SubmitPaymentInput) (*SubmitPaymentResult, error) {
	txID := strings.TrimSpace(input.TransactionID)
	if len(txID) < minTransactionIDLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction id must be at least 3 characters")
	}
	if input.Receipt == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment receipt is required")
	}
	contentType := strings.ToLower(strings.TrimSpace(input.ContentType))
	if i := strings.Index(contentType, ";"); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if _, ok := allowedReceiptTypes[contentType]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt must be a PNG, JPEG, WEBP or PDF file")
	}
	if input.ReceiptSize <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment receipt is required")
	}
	if input.ReceiptSize > s.maxReceiptBytes {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "receipt file is too large").
			WithDetails(map[string]any{"maxBytes": s.maxReceiptBytes})
	}

	order, err := s.loadForCustomer(ctx, input.OrderNumber, input.Email)
	if err != nil {
		return nil, err
	}
	if err := s.checkSubmittable(ctx, s.verifications, order); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	objectName := gcs.ReceiptObjectName(order.OrderNumber, input.ReceiptName, now)
	receiptURL, err := s.uploader.Upload(ctx, objectName, contentType, input.Receipt)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment receipt")
	}

	notes := optionalString(input.Notes)
	var verification *models.PaymentVerification
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		locked, err := s.LockOrder(ctx, tx, order.ID)
		if err != nil {
			return err
		}
		verifications := s.verifications.WithTx(tx)
		if err := s.checkSubmittable(ctx, verifications, locked); err != nil {
			return err
		}

		if err := s.repo.WithTx(tx).UpdateFields(ctx, locked.ID, map[string]any{
			"transaction_id":       txID,
			"receipt_url":          receiptURL,
			"payment_submitted_at": now,
			"payment_notes":        notes,
			"payment_status":       enums.PaymentStatusPending,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order payment")
		}
		locked.TransactionID = &txID
		locked.ReceiptURL = &receiptURL
		locked.PaymentSubmittedAt = &now
		locked.PaymentNotes = notes
		locked.PaymentStatus = enums.PaymentStatusPending

		verification = &models.PaymentVerification{
			OrderID:       locked.ID,
			OrderNumber:   locked.OrderNumber,
			TransactionID: txID,
			ReceiptURL:    &receiptURL,
			CustomerNotes: notes,
		}
		if err := verifications.Create(ctx, verification); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment verification")
		}

		event := payloads.NewOrderEvent(locked).WithVerification(verification.ID).WithNotes(notes)
		return s.emit(ctx, tx, enums.EventOrderPaymentSubmitted, locked.ID, outbox.CustomerActor(), event)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, order.OrderNumber)
		s.logg.Info(s.logg.WithField(logCtx, "verification_id", verification.ID.String()), "payment proof submitted")
	}

	return &SubmitPaymentResult{
		OrderNumber:    order.OrderNumber,
		PaymentStatus:  enums.PaymentStatusPending,
		VerificationID: verification.ID,
		ReceiptURL:     receiptURL,
	}, nil
}

func (s *Service) checkSubmittable(ctx context.Context, verifications *VerificationRepository, order *models.Order) error {
	switch {
	case order.OrderStatus == enums.OrderStatusCancelled:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is cancelled")
	case order.PaymentStatus.IsSettled():
		return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is already settled")
	case order.PaymentMethod == enums.PaymentMethodCOD:
		return pkgerrors.New(pkgerrors.CodeBusinessRule, "cash on delivery orders are paid on delivery")
	}
	pending, err := verifications.HasUnresolved(ctx, order.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check payment verifications")
	}
	if pending {
		return pkgerrors.New(pkgerrors.CodeConflict, "a payment submission is already awaiting review")
	}
	return nil
}

// ConfirmPayment lets an operator mark an order paid without reviewing a
// specific submission. Pending verifications on the order are resolved as
// verified in the same transaction.
func (s *Service) ConfirmPayment(ctx context.Context, orderID uuid.UUID, notes string, actor *outbox.ActorRef) (*OrderView, error) {
	var view OrderView
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.PaymentStatus == enums.PaymentStatusPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment is already confirmed")
		}
		if order.PaymentStatus == enums.PaymentStatusRefunded {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment was refunded")
		}

		at := s.now().UTC()
		decision := PaymentDecision{Notes: optionalString(notes), At: at}
		if actor != nil {
			decision.OperatorID = actor.AdminID
		}
		if _, err := s.verifications.WithTx(tx).ResolvePendingForOrder(ctx, order.ID, true, decision.Notes, decision.OperatorID, at); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve payment verifications")
		}
		if err := s.ApprovePayment(ctx, tx, order, decision, actor); err != nil {
			return err
		}
		view = NewOrderView(order)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}
