package types

import (
	"fmt"
	"math/big"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// OrderEventSchema infers the order_events table schema from OrderEventRow.
func OrderEventSchema() (cbigquery.Schema, error) {
	schema, err := cbigquery.InferSchema(OrderEventRow{})
	if err != nil {
		return nil, fmt.Errorf("infer order event schema: %w", err)
	}
	return schema, nil
}

// OrderEventRow mirrors the order_events BigQuery schema.
type OrderEventRow struct {
	EventID        string               `bigquery:"event_id"`
	EventType      string               `bigquery:"event_type"`
	OccurredAt     time.Time            `bigquery:"occurred_at"`
	OrderID        string               `bigquery:"order_id"`
	OrderNumber    string               `bigquery:"order_number"`
	PaymentMethod  string               `bigquery:"payment_method"`
	PaymentStatus  string               `bigquery:"payment_status"`
	OrderStatus    string               `bigquery:"order_status"`
	PreviousStatus cbigquery.NullString `bigquery:"previous_status"`
	Total          *big.Rat             `bigquery:"total"`
	DiscountCode   cbigquery.NullString `bigquery:"discount_code"`
	Reason         cbigquery.NullString `bigquery:"reason"`
	Payload        cbigquery.NullJSON   `bigquery:"payload"`
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert
// id so redelivered events are deduplicated by the streaming API.
func (r *OrderEventRow) Save() (map[string]cbigquery.Value, string, error) {
	var total cbigquery.Value
	if r.Total != nil {
		total = cbigquery.NumericString(r.Total)
	}
	return map[string]cbigquery.Value{
		"event_id":        r.EventID,
		"event_type":      r.EventType,
		"occurred_at":     r.OccurredAt,
		"order_id":        r.OrderID,
		"order_number":    r.OrderNumber,
		"payment_method":  r.PaymentMethod,
		"payment_status":  r.PaymentStatus,
		"order_status":    r.OrderStatus,
		"previous_status": r.PreviousStatus,
		"total":           total,
		"discount_code":   r.DiscountCode,
		"reason":          r.Reason,
		"payload":         r.Payload,
	}, r.EventID, nil
}
