package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/email"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	pkgerrors "github.com/kitsuneprints/storefront-backend/pkg/errors"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox/payloads"
)

const customerNotificationConsumer = "customer-notifications"

type dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

type orderLoader interface {
	Find(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer turns order domain events into customer notifications.
type Consumer struct {
	dispatcher   dispatcher
	orders       orderLoader
	subscription *pubsub.Subscriber
	idempotency  idempotencyChecker
	logg         *logger.Logger
}

// NewConsumer builds the notification consumer. subscription may be nil
// when only Process is used.
func NewConsumer(d dispatcher, orders orderLoader, subscription *pubsub.Subscriber, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if d == nil {
		return nil, fmt.Errorf("notification dispatcher required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order loader required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		dispatcher:   d,
		orders:       orders,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("notification subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.handle(ctx, msg).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	nack bool
}

func (c *Consumer) handle(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
	})
	eventType, err := enums.ParseOutboxEventType(msg.Attributes["event_type"])
	if err != nil {
		c.logg.Warn(logCtx, "skipping unknown event type")
		return processResult{}
	}
	envelope, err := outbox.DecodeEnvelope(msg.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{}
	}
	if err := c.Process(ctx, eventType, envelope); err != nil {
		if Retryable(err) {
			c.logg.Error(logCtx, "notification failed, will retry", err)
			return processResult{nack: true}
		}
		c.logg.Error(logCtx, "notification failed permanently", err)
	}
	return processResult{}
}

// Process dispatches the notification for one outbox envelope. Errors that
// satisfy Retryable leave the event unmarked so a redelivery can retry it.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	var payload payloads.OrderEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	msg, ok := notificationFor(eventType, payload)
	if !ok {
		c.logg.Debug(logCtx, "event has no customer notification")
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}
	claimed, err := c.idempotency.Claim(ctx, customerNotificationConsumer, eventID)
	if err != nil {
		return &retryableError{err: fmt.Errorf("idempotency check: %w", err)}
	}
	if !claimed {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	err = c.deliver(ctx, payload, msg)
	if err != nil && Retryable(err) {
		_ = c.idempotency.Release(ctx, customerNotificationConsumer, eventID)
	}
	return err
}

func (c *Consumer) deliver(ctx context.Context, payload payloads.OrderEvent, msg Message) error {
	order, err := c.orders.Find(ctx, payload.OrderID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) || errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("order %s not found: %w", payload.OrderNumber, err)
		}
		return &retryableError{err: fmt.Errorf("load order: %w", err)}
	}
	msg.Order = order
	return c.dispatcher.Dispatch(c.logg.WithOrderNumber(ctx, order.OrderNumber), msg)
}

// notificationFor maps an order event to the customer message it triggers.
func notificationFor(eventType enums.OutboxEventType, payload payloads.OrderEvent) (Message, bool) {
	scope := ""
	if payload.VerificationID != nil {
		scope = payload.VerificationID.String()
	}
	reason := ""
	if payload.Reason != nil {
		reason = *payload.Reason
	}

	switch eventType {
	case enums.EventOrderCreated:
		return Message{Event: enums.NotificationOrderConfirmation}, true
	case enums.EventOrderPaymentSubmitted:
		return Message{Event: enums.NotificationPaymentReceived, Scope: scope}, true
	case enums.EventOrderPaymentVerified:
		return Message{Event: enums.NotificationPaymentApproved, Scope: scope}, true
	case enums.EventOrderPaymentRejected:
		return Message{Event: enums.NotificationPaymentRejected, Scope: scope, Reason: reason}, true
	case enums.EventOrderPaymentReminder:
		return Message{Event: enums.NotificationPaymentReminder}, true
	case enums.EventOrderExpired:
		return Message{Event: enums.NotificationOrderExpired, Reason: reason}, true
	case enums.EventOrderStatusChanged:
		switch payload.OrderStatus {
		case enums.OrderStatusShipped:
			return Message{Event: enums.NotificationOrderShipped}, true
		case enums.OrderStatusEnroute:
			return Message{Event: enums.NotificationOrderEnroute}, true
		case enums.OrderStatusDelivered:
			return Message{Event: enums.NotificationOrderDelivered}, true
		case enums.OrderStatusCancelled:
			return Message{Event: enums.NotificationOrderCancelled, Reason: reason}, true
		}
	}
	return Message{}, false
}

type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// Retryable reports whether a notification failure is worth redelivering:
// transient email errors, delivery log outages and dependency failures.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var re *retryableError
	if errors.As(err, &re) {
		return true
	}
	return errors.Is(err, errDeliveryLog) || email.IsTransient(err)
}
