// Package worker feeds the analytics subscription into the BigQuery sink.
package worker

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/kitsuneprints/storefront-backend/internal/analytics/types"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

const consumerName = "analytics"

// ErrSkip marks events the sink ignores on purpose. They are acked and
// keep their idempotency claim.
var ErrSkip = errors.New("analytics event skipped")

type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type idempotencyChecker interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Service acks or nacks each analytics message based on the handler
// outcome. Every event is claimed in Redis first so redeliveries are
// written once.
type Service struct {
	subscription *gcppubsub.Subscriber
	handler      Handler
	claims       idempotencyChecker
	logg         *logger.Logger
	isSkip       func(error) bool
}

// NewService wires the consumer. isSkip may be nil, in which case only
// ErrSkip is acked without a retry.
func NewService(subscription *gcppubsub.Subscriber, handler Handler, claims idempotencyChecker, logg *logger.Logger, isSkip func(error) bool) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case claims == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	if isSkip == nil {
		isSkip = defaultSkip
	}
	return &Service{
		subscription: subscription,
		handler:      handler,
		claims:       claims,
		logg:         logg,
		isSkip:       isSkip,
	}, nil
}

func defaultSkip(err error) bool {
	return errors.Is(err, ErrSkip)
}

// Run blocks on the subscription until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	return s.subscription.Receive(ctx, func(ctx context.Context, msg *gcppubsub.Message) {
		if s.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether msg should be acked. Malformed messages are
// acked since redelivery cannot fix them.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) bool {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := types.ParseEnvelope(msg.Attributes, msg.Data)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "dropping malformed analytics message")
		return true
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":     envelope.EventID,
		"event_type":   envelope.EventType,
		"aggregate_id": envelope.AggregateID,
		"occurred_at":  envelope.OccurredAt.Format(time.RFC3339Nano),
	})
	if orderNumber := msg.Attributes["order_number"]; orderNumber != "" {
		ctx = s.logg.WithOrderNumber(ctx, orderNumber)
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(ctx, "dropping analytics message with non-uuid event id")
		return true
	}

	claimed, err := s.claims.Claim(ctx, consumerName, eventID)
	switch {
	case err != nil:
		s.logg.Error(ctx, "analytics idempotency claim failed", err)
		return false
	case !claimed:
		s.logg.Debug(ctx, "analytics event already recorded")
		return true
	}

	err = s.handler.Handle(ctx, envelope)
	switch {
	case err == nil:
		s.logg.Info(ctx, "analytics event recorded")
		return true
	case s.isSkip(err):
		s.logg.Debug(ctx, "analytics event skipped")
		return true
	}

	s.logg.Error(ctx, "analytics handler failed", err)
	if relErr := s.claims.Release(context.WithoutCancel(ctx), consumerName, eventID); relErr != nil {
		s.logg.Error(ctx, "release analytics claim", relErr)
	}
	return false
}
