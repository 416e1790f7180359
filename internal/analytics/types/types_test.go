package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

func TestEnvelopeOrderEvent(t *testing.T) {
	env := Envelope{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		Payload:       json.RawMessage(`{"orderNumber":"KP-1042","total":"2450"}`),
	}
	if !env.IsOrderEvent() {
		t.Fatal("expected order event")
	}
	event, err := env.OrderEvent()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.OrderNumber != "KP-1042" || event.Total.String() != "2450" {
		t.Fatalf("unexpected event %+v", event)
	}
}

func TestEnvelopeOrderEventRejectsBadPayloads(t *testing.T) {
	cases := map[string]string{
		"empty":     "  ",
		"malformed": `{"orderNumber":`,
		"no number": `{"orderNumber":" "}`,
	}
	for name, payload := range cases {
		env := Envelope{EventType: enums.EventOrderCreated, Payload: json.RawMessage(payload)}
		if _, err := env.OrderEvent(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if (Envelope{AggregateType: "product", EventType: enums.EventOrderCreated}).IsOrderEvent() {
		t.Fatal("non-order aggregates are not order events")
	}
}

func TestOrderEventSchema(t *testing.T) {
	schema, err := OrderEventSchema()
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	types := map[string]cbigquery.FieldType{}
	for _, field := range schema {
		types[field.Name] = field.Type
	}
	if types["occurred_at"] != cbigquery.TimestampFieldType {
		t.Fatalf("occurred_at should be a timestamp, got %q", types["occurred_at"])
	}
	if types["total"] != cbigquery.NumericFieldType {
		t.Fatalf("total should be numeric, got %q", types["total"])
	}
	if _, ok := types["order_number"]; !ok || len(schema) != 13 {
		t.Fatalf("unexpected schema fields: %s", strings.Join(fieldNames(schema), ","))
	}
}

func fieldNames(schema cbigquery.Schema) []string {
	names := make([]string, 0, len(schema))
	for _, f := range schema {
		names = append(names, f.Name)
	}
	return names
}

func TestParseEnvelope(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body := `{"version":1,"eventId":"0b6f1c2e-5d8a-4e0f-9a11-3c2b7d9e4f10","occurredAt":"2026-03-01T12:00:00Z","data":{"orderNumber":"KP123456-ABC"}}`
	env, err := ParseEnvelope(map[string]string{
		"event_type":     "order.payment_verified",
		"aggregate_type": "order",
		"aggregate_id":   " ord-1 ",
	}, []byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.EventType != enums.EventOrderPaymentVerified || env.AggregateType != enums.AggregateOrder {
		t.Fatalf("unexpected classification %+v", env)
	}
	if env.AggregateID != "ord-1" || env.EventID != "0b6f1c2e-5d8a-4e0f-9a11-3c2b7d9e4f10" {
		t.Fatalf("unexpected ids %+v", env)
	}
	if !env.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected occurred at %v", env.OccurredAt)
	}
	if string(env.Payload) != `{"orderNumber":"KP123456-ABC"}` {
		t.Fatalf("unexpected payload %s", env.Payload)
	}
}

func TestParseEnvelopeFallsBackToAttributes(t *testing.T) {
	created := time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)
	env, err := ParseEnvelope(map[string]string{
		"event_type":     "order.created",
		"aggregate_type": "order",
		"aggregate_id":   "ord-2",
		"event_id":       "evt-attr",
		"created_at":     created.Format(time.RFC3339Nano),
	}, []byte(`{"data":{}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if env.EventID != "evt-attr" {
		t.Fatalf("expected event id from attributes, got %s", env.EventID)
	}
	if !env.OccurredAt.Equal(created) {
		t.Fatalf("expected occurred at from created_at, got %v", env.OccurredAt)
	}
}

func TestParseEnvelopeRejectsBadMessages(t *testing.T) {
	body := []byte(`{"eventId":"evt-1","data":{}}`)
	cases := map[string]struct {
		attrs map[string]string
		body  []byte
	}{
		"body":           {map[string]string{"event_type": "order.created", "aggregate_type": "order", "aggregate_id": "a"}, []byte("nope")},
		"event type":     {map[string]string{"event_type": "order_created", "aggregate_type": "order", "aggregate_id": "a"}, body},
		"aggregate type": {map[string]string{"event_type": "order.created", "aggregate_type": "vendor_order", "aggregate_id": "a"}, body},
		"aggregate id":   {map[string]string{"event_type": "order.created", "aggregate_type": "order"}, body},
		"event id":       {map[string]string{"event_type": "order.created", "aggregate_type": "order", "aggregate_id": "a"}, []byte(`{"data":{}}`)},
	}
	for name, tc := range cases {
		if _, err := ParseEnvelope(tc.attrs, tc.body); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}
