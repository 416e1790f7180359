package enums

import "slices"

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateReview  OutboxAggregateType = "review"
	AggregateProduct OutboxAggregateType = "product"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateReview,
	AggregateProduct,
}

// IsValid reports whether the value matches the canonical aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseEnum(validAggregateTypes, value, "aggregate type")
}

// OutboxEventType maps to outbox_events.event_type.
type OutboxEventType string

const (
	EventOrderCreated              OutboxEventType = "order.created"
	EventOrderPaymentSubmitted     OutboxEventType = "order.payment_submitted"
	EventOrderPaymentVerified      OutboxEventType = "order.payment_verified"
	EventOrderPaymentRejected      OutboxEventType = "order.payment_rejected"
	EventOrderPaymentStatusChanged OutboxEventType = "order.payment_status_changed"
	EventOrderStatusChanged        OutboxEventType = "order.status_changed"
	EventOrderPaymentReminder      OutboxEventType = "order.payment_reminder"
	EventOrderExpired              OutboxEventType = "order.expired"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaymentSubmitted,
	EventOrderPaymentVerified,
	EventOrderPaymentRejected,
	EventOrderPaymentStatusChanged,
	EventOrderStatusChanged,
	EventOrderPaymentReminder,
	EventOrderExpired,
}

func (e OutboxEventType) String() string {
	return string(e)
}

// IsValid reports whether the value matches the canonical event type.
func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validOutboxEventTypes, e)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseEnum(validOutboxEventTypes, value, "event type")
}
