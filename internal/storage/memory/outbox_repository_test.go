package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vladislavdragonenkov/customers/internal/domain"
	"github.com/vladislavdragonenkov/customers/internal/storage/memory"
)

func TestOutboxRepository_SaveEnqueuesEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	customers := memory.NewCustomerRepository(store, domain.DefaultBusinessRules())
	outbox := memory.NewOutboxRepository(store)

	c := newCustomer(t, "customer-1")
	if _, err := c.PlaceNewOrder(nil, nil); err != nil {
		t.Fatalf("place order: %v", err)
	}
	if err := customers.Save(ctx, c); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	pending, err := outbox.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending messages, got %d", len(pending))
	}
	if pending[0].EventType != domain.EventTypeCustomerCreated || pending[1].EventType != domain.EventTypeOrderPlaced {
		t.Fatalf("unexpected order of events: %s, %s", pending[0].EventType, pending[1].EventType)
	}
	if pending[0].AggregateID != "customer-1" {
		t.Fatalf("unexpected aggregate id %s", pending[0].AggregateID)
	}

	// повторное сохранение тех же событий не дублирует сообщения
	if err := customers.Save(ctx, c); err != nil {
		t.Fatalf("second save failed: %v", err)
	}
	stats, err := outbox.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.PendingCount != 2 {
		t.Fatalf("expected 2 pending, got %d", stats.PendingCount)
	}
	if !stats.OldestPendingAt.Equal(pending[0].OccurredOn) {
		t.Fatalf("unexpected oldest pending %v", stats.OldestPendingAt)
	}
}

func TestOutboxRepository_MarkProcessedAndFailed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	customers := memory.NewCustomerRepository(store, domain.DefaultBusinessRules())
	outbox := memory.NewOutboxRepository(store)

	c := newCustomer(t, "customer-1")
	if _, err := c.PlaceNewOrder(nil, nil); err != nil {
		t.Fatalf("place order: %v", err)
	}
	if err := customers.Save(ctx, c); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	pending, _ := outbox.PullPending(ctx, 0)

	if err := outbox.MarkProcessed(ctx, pending[0].ID); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if err := outbox.MarkFailed(ctx, pending[1].ID, errors.New("broker down")); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	rest, err := outbox.PullPending(ctx, 10)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(rest) != 0 {
		t.Fatalf("expected no pending messages, got %d", len(rest))
	}

	if err := outbox.MarkProcessed(ctx, "unknown"); !errors.Is(err, domain.ErrOutboxMessageNotFound) {
		t.Fatalf("expected ErrOutboxMessageNotFound, got %v", err)
	}
}

func TestOutboxRepository_PullRespectsLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	customers := memory.NewCustomerRepository(store, domain.DefaultBusinessRules())
	outbox := memory.NewOutboxRepository(store)

	c := newCustomer(t, "customer-1")
	for i := 0; i < 4; i++ {
		if _, err := c.PlaceNewOrder(nil, nil); err != nil {
			t.Fatalf("place order: %v", err)
		}
	}
	if err := customers.Save(ctx, c); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	pending, err := outbox.PullPending(ctx, 3)
	if err != nil {
		t.Fatalf("pull pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(pending))
	}
}
