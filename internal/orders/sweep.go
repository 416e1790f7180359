package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox/payloads"
)

const expiryReason = "payment not received within 48 hours"

// ReminderWindow returns the creation-time window for orders aged
// (remindAfter, expireAfter] at now.
func ReminderWindow(now time.Time, remindAfter, expireAfter time.Duration, limit int) SweepWindow {
	return SweepWindow{
		CreatedFrom:    now.Add(-expireAfter),
		CreatedBefore:  now.Add(-remindAfter),
		OnlyUnreminded: true,
		Limit:          limit,
	}
}

// ExpiryWindow returns the creation-time window for orders older than
// expireAfter at now. Orders with a proof under review are not expired.
func ExpiryWindow(now time.Time, expireAfter time.Duration, limit int) SweepWindow {
	return SweepWindow{CreatedBefore: now.Add(-expireAfter), SkipUnderReview: true, Limit: limit}
}

// SweepCandidates lists order ids inside window.
func (s *Service) SweepCandidates(ctx context.Context, window SweepWindow) ([]uuid.UUID, error) {
	ids, err := s.repo.SweepCandidates(ctx, window)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "select sweep candidates")
	}
	return ids, nil
}

// SendPaymentReminder stamps reminder_sent_at and emits
// order.payment_reminder when the order still matches window. It reports
// false when the order no longer qualifies.
func (s *Service) SendPaymentReminder(ctx context.Context, id uuid.UUID, window SweepWindow, at time.Time) (bool, error) {
	sent := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.MarkReminderSent(ctx, id, window, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark reminder sent")
		}
		if !ok {
			return nil
		}
		order, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLoadErr(err)
		}
		sent = true
		return s.emitOnce(ctx, tx, enums.EventOrderPaymentReminder, id, payloads.NewOrderEvent(order))
	})
	if err != nil {
		return false, err
	}
	return sent, nil
}

// ExpireOrder cancels an unpaid order created before createdBefore and
// emits order.expired. It reports false when the order no longer qualifies.
func (s *Service) ExpireOrder(ctx context.Context, id uuid.UUID, createdBefore, at time.Time) (bool, error) {
	expired := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.Expire(ctx, id, createdBefore, expiryReason, at)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire order")
		}
		if !ok {
			return nil
		}
		order, err := repo.FindByID(ctx, id)
		if err != nil {
			return mapLoadErr(err)
		}
		expired = true
		event := payloads.NewOrderEvent(order).WithPrevious(enums.OrderStatusProcessing).WithReason(expiryReason)
		return s.emitOnce(ctx, tx, enums.EventOrderExpired, id, event)
	})
	if err != nil {
		return false, err
	}
	return expired, nil
}
