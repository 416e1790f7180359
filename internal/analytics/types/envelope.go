package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox"
	"github.com/kitsuneprints/storefront-backend/pkg/outbox/payloads"
)

// Envelope is one outbox event as delivered on the analytics subscription,
// rebuilt from the message body and its attributes.
type Envelope struct {
	EventID       string
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   string
	OccurredAt    time.Time
	Payload       json.RawMessage
}

// IsOrderEvent reports whether the envelope carries a known order event.
func (e Envelope) IsOrderEvent() bool {
	return e.AggregateType == enums.AggregateOrder && e.EventType.IsValid()
}

// OrderEvent decodes the payload as an order snapshot. The order number
// is required since every warehouse row is keyed by it.
func (e Envelope) OrderEvent() (payloads.OrderEvent, error) {
	var event payloads.OrderEvent
	if len(bytes.TrimSpace(e.Payload)) == 0 {
		return event, fmt.Errorf("empty payload for %s", e.EventType)
	}
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return event, fmt.Errorf("decode %s payload: %w", e.EventType, err)
	}
	if strings.TrimSpace(event.OrderNumber) == "" {
		return event, fmt.Errorf("%s payload missing order number", e.EventType)
	}
	return event, nil
}

// ParseEnvelope rebuilds an Envelope from a published message. The body
// wins over attributes for event id and timestamp; attributes fill in for
// publishers that left them out of the body.
func ParseEnvelope(attrs map[string]string, data []byte) (Envelope, error) {
	body, err := outbox.DecodeEnvelope(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("decode body: %w", err)
	}
	attr := func(key string) string { return strings.TrimSpace(attrs[key]) }

	env := Envelope{
		EventID:     strings.TrimSpace(body.EventID),
		AggregateID: attr("aggregate_id"),
		OccurredAt:  body.OccurredAt,
		Payload:     body.Data,
	}
	if env.EventType, err = enums.ParseOutboxEventType(attr("event_type")); err != nil {
		return Envelope{}, err
	}
	if env.AggregateType, err = enums.ParseOutboxAggregateType(attr("aggregate_type")); err != nil {
		return Envelope{}, err
	}
	if env.AggregateID == "" {
		return Envelope{}, errors.New("aggregate_id attribute missing")
	}
	if env.EventID == "" {
		env.EventID = attr("event_id")
	}
	if env.EventID == "" {
		return Envelope{}, errors.New("event id missing")
	}
	if env.OccurredAt.IsZero() {
		if created, err := time.Parse(time.RFC3339Nano, attr("created_at")); err == nil {
			env.OccurredAt = created
		}
	}
	env.OccurredAt = env.OccurredAt.UTC()
	return env, nil
}
