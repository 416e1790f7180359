package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/kitsuneprints/storefront-backend/internal/analytics/types"
	"github.com/kitsuneprints/storefront-backend/pkg/logger"
)

// ErrUnsupportedEventType marks envelopes the analytics sink ignores.
var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers order event rows to the warehouse.
type Writer interface {
	InsertOrderEvent(ctx context.Context, row types.OrderEventRow) error
}

// Handler turns order outbox events into order_events rows.
type Handler struct {
	writer Writer
	logg   *logger.Logger
}

// NewHandler builds the order event handler.
func NewHandler(writer Writer, logg *logger.Logger) (*Handler, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Handler{writer: writer, logg: logg}, nil
}

// Handle writes one row per order event.
func (h *Handler) Handle(ctx context.Context, envelope types.Envelope) error {
	if !envelope.IsOrderEvent() {
		return fmt.Errorf("%w: %s/%s", ErrUnsupportedEventType, envelope.AggregateType, envelope.EventType)
	}
	row, err := BuildRow(envelope)
	if err != nil {
		return err
	}
	logCtx := h.logg.WithOrderNumber(ctx, row.OrderNumber)
	if err := h.writer.InsertOrderEvent(logCtx, *row); err != nil {
		h.logg.Error(logCtx, "failed to insert order event row", err)
		return err
	}
	h.logg.Info(logCtx, "order event row inserted")
	return nil
}

// BuildRow flattens an order event envelope into a warehouse row.
func BuildRow(envelope types.Envelope) (*types.OrderEventRow, error) {
	event, err := envelope.OrderEvent()
	if err != nil {
		return nil, err
	}

	row := &types.OrderEventRow{
		EventID:       envelope.EventID,
		EventType:     string(envelope.EventType),
		OccurredAt:    envelope.OccurredAt.UTC(),
		OrderID:       event.OrderID.String(),
		OrderNumber:   event.OrderNumber,
		PaymentMethod: string(event.PaymentMethod),
		PaymentStatus: string(event.PaymentStatus),
		OrderStatus:   string(event.OrderStatus),
		Total:         event.Total.Rat(),
		Payload:       cbigquery.NullJSON{Valid: true, JSONVal: string(envelope.Payload)},
	}
	if event.PreviousStatus != nil {
		row.PreviousStatus = nullString(string(*event.PreviousStatus))
	}
	if event.DiscountCode != nil {
		row.DiscountCode = nullString(*event.DiscountCode)
	}
	if event.Reason != nil {
		row.Reason = nullString(*event.Reason)
	}
	return row, nil
}

func nullString(value string) cbigquery.NullString {
	trimmed := strings.TrimSpace(value)
	return cbigquery.NullString{StringVal: trimmed, Valid: trimmed != ""}
}
