package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kitsuneprints/storefront-backend/pkg/db/models"
	"github.com/kitsuneprints/storefront-backend/pkg/enums"
)

func newOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func insertEvent(t *testing.T, conn *gorm.DB, createdAt time.Time) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":{}}`),
		CreatedAt:     createdAt,
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("insert event: %v", err)
	}
	return row
}

func TestRepositoryFetchUnpublishedForPublish(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	base := time.Now().UTC().Add(-time.Hour)

	first := insertEvent(t, conn, base)
	second := insertEvent(t, conn, base.Add(time.Minute))
	exhausted := insertEvent(t, conn, base.Add(2*time.Minute))
	if err := conn.Model(&models.OutboxEvent{}).Where("id = ?", exhausted.ID).Update("attempt_count", 5).Error; err != nil {
		t.Fatalf("update attempts: %v", err)
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ID != first.ID || rows[1].ID != second.ID {
		t.Fatalf("rows not ordered by created_at")
	}

	if err := repo.MarkPublishedTx(conn, first.ID); err != nil {
		t.Fatalf("mark published: %v", err)
	}
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 5)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != second.ID {
		t.Fatalf("expected only the second row, got %+v", rows)
	}
}

func TestRepositoryMarkFailedIncrementsAttempts(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	row := insertEvent(t, conn, time.Now().UTC())

	if err := repo.MarkFailedTx(conn, row.ID, errors.New("publish timeout")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := repo.MarkFailedTx(conn, row.ID, errors.New("publish timeout")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	var stored models.OutboxEvent
	if err := conn.First(&stored, "id = ?", row.ID).Error; err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.AttemptCount != 2 {
		t.Fatalf("expected 2 attempts, got %d", stored.AttemptCount)
	}
	if stored.LastError == nil || *stored.LastError != "publish timeout" {
		t.Fatalf("unexpected last error %v", stored.LastError)
	}
}

func TestRepositoryDeletePublishedBefore(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	now := time.Now().UTC()

	old := insertEvent(t, conn, now.Add(-40*24*time.Hour))
	recent := insertEvent(t, conn, now.Add(-time.Hour))
	pending := insertEvent(t, conn, now.Add(-40*24*time.Hour))

	if err := conn.Model(&models.OutboxEvent{}).Where("id = ?", old.ID).Update("published_at", now.Add(-35*24*time.Hour)).Error; err != nil {
		t.Fatalf("publish old: %v", err)
	}
	if err := conn.Model(&models.OutboxEvent{}).Where("id = ?", recent.ID).Update("published_at", now.Add(-time.Minute)).Error; err != nil {
		t.Fatalf("publish recent: %v", err)
	}

	deleted, err := repo.DeletePublishedBefore(context.Background(), conn, now.Add(-30*24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", deleted)
	}

	var remaining []models.OutboxEvent
	if err := conn.Order("created_at ASC").Find(&remaining).Error; err != nil {
		t.Fatalf("list: %v", err)
	}
	ids := map[uuid.UUID]bool{}
	for _, r := range remaining {
		ids[r.ID] = true
	}
	if ids[old.ID] || !ids[recent.ID] || !ids[pending.ID] {
		t.Fatalf("unexpected remaining rows %+v", ids)
	}
}

func TestRepositoryRequiresTransaction(t *testing.T) {
	repo := NewRepository(nil)
	if err := repo.Insert(nil, models.OutboxEvent{}); err == nil {
		t.Fatal("expected insert without tx to fail")
	}
	if _, err := repo.FetchUnpublishedForPublish(nil, 1, 1); err == nil {
		t.Fatal("expected fetch without tx to fail")
	}
}

func TestDLQRepositoryTruncatesMessage(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewDLQRepository(conn)
	long := make([]byte, maxDLQErrorLen+100)
	for i := range long {
		long[i] = 'x'
	}
	msg := string(long)
	eventID := uuid.New()

	err := repo.InsertTx(conn, models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventOrderExpired,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		FailedAt:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("insert dlq: %v", err)
	}

	stored, err := repo.FindByEventID(context.Background(), eventID)
	if err != nil || stored == nil {
		t.Fatalf("find dlq: %v", err)
	}
	if len(*stored.ErrorMessage) != maxDLQErrorLen {
		t.Fatalf("expected truncated message, got %d chars", len(*stored.ErrorMessage))
	}

	missing, err := repo.FindByEventID(context.Background(), uuid.New())
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown event, got %v %v", missing, err)
	}
}

func TestDLQRepositoryRequeueResetsAttempts(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)
	event := insertEvent(t, conn, time.Now().UTC().Add(-time.Minute))

	if err := conn.Transaction(func(tx *gorm.DB) error {
		if err := repo.MarkTerminalTx(tx, event.ID, errors.New("topic missing"), 10); err != nil {
			return err
		}
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			FailedAt:      time.Now().UTC(),
		})
	}); err != nil {
		t.Fatalf("dead-letter event: %v", err)
	}

	listed, err := dlq.List(context.Background(), DLQFilter{Reason: enums.OutboxDLQReasonNonRetryable})
	if err != nil || len(listed) != 1 {
		t.Fatalf("expected one dead letter, got %d (%v)", len(listed), err)
	}
	if none, _ := dlq.List(context.Background(), DLQFilter{Reason: enums.OutboxDLQReasonMaxAttempts}); len(none) != 0 {
		t.Fatalf("reason filter ignored: %d rows", len(none))
	}

	if err := dlq.Requeue(context.Background(), event.ID); err != nil {
		t.Fatalf("requeue: %v", err)
	}
	var reloaded models.OutboxEvent
	if err := conn.First(&reloaded, "id = ?", event.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.AttemptCount != 0 || reloaded.LastError != nil {
		t.Fatalf("expected fresh attempt budget, got %d %v", reloaded.AttemptCount, reloaded.LastError)
	}
	if err := dlq.Requeue(context.Background(), event.ID); !errors.Is(err, ErrNotDeadLettered) {
		t.Fatalf("expected ErrNotDeadLettered on second requeue, got %v", err)
	}
}

func TestTruncateUTF8KeepsRunesWhole(t *testing.T) {
	if got := truncateUTF8("注文エラー", 4); got != "注" {
		t.Fatalf("unexpected truncation %q", got)
	}
	if got := truncateUTF8("ok", 10); got != "ok" {
		t.Fatalf("unexpected %q", got)
	}
}
