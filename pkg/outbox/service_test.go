package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

func TestServiceEmitWritesEnvelope(t *testing.T) {
	conn := newOutboxTestDB(t)
	svc := NewService(NewRepository(conn), nil)
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	orderID := uuid.New()
	adminID := uuid.New()

	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderPaymentVerified,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         AdminActor(adminID),
			Data:          map[string]string{"orderNumber": "KP123456-abc"},
			OccurredAt:    occurred,
		})
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}

	var row models.OutboxEvent
	if err := conn.First(&row, "aggregate_id = ?", orderID).Error; err != nil {
		t.Fatalf("load row: %v", err)
	}
	if row.EventType != enums.EventOrderPaymentVerified || row.AggregateType != enums.AggregateOrder {
		t.Fatalf("unexpected row %+v", row)
	}

	envelope, err := DecodeEnvelope(row.Payload)
	if err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if envelope.Version != 1 {
		t.Fatalf("expected default version 1, got %d", envelope.Version)
	}
	if envelope.EventID != row.ID.String() {
		t.Fatalf("envelope event id %q does not match row id %s", envelope.EventID, row.ID)
	}
	if !envelope.OccurredAt.Equal(occurred) {
		t.Fatalf("unexpected occurred_at %v", envelope.OccurredAt)
	}
	if envelope.Actor == nil || envelope.Actor.Role != ActorAdmin || envelope.Actor.AdminID == nil || *envelope.Actor.AdminID != adminID {
		t.Fatalf("unexpected actor %+v", envelope.Actor)
	}
	var data map[string]string
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data["orderNumber"] != "KP123456-abc" {
		t.Fatalf("unexpected data %+v", data)
	}
}

func TestServiceEmitRejectsUnknownEvent(t *testing.T) {
	conn := newOutboxTestDB(t)
	svc := NewService(NewRepository(conn), nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.OutboxEventType("order.teleported"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Data:          struct{}{},
	})
	if err == nil {
		t.Fatal("expected unknown event type to fail")
	}
}

func TestServiceEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	if err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated}); err == nil {
		t.Fatal("expected error without transaction")
	}
}

func TestServiceEmitOnce(t *testing.T) {
	conn := newOutboxTestDB(t)
	svc := NewService(NewRepository(conn), nil)
	orderID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventOrderExpired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         SystemActor(),
		Data:          map[string]string{"reason": "payment not received"},
		Once:          true,
	}

	for i := 0; i < 2; i++ {
		if err := svc.Emit(context.Background(), conn, event); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}

	var count int64
	if err := conn.Model(&models.OutboxEvent{}).Where("aggregate_id = ?", orderID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single event, got %d", count)
	}
}

func TestServiceEmitRejectsUnknownAggregate(t *testing.T) {
	conn := newOutboxTestDB(t)
	svc := NewService(NewRepository(conn), nil)
	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.OutboxAggregateType("cart"),
		AggregateID:   uuid.New(),
	})
	if err == nil {
		t.Fatal("expected unknown aggregate type to fail")
	}
}
