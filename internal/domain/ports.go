package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// CustomerRepository описывает требования к хранилищу клиентов.
type CustomerRepository interface {
	// GetByID возвращает клиента или ErrCustomerNotFound, если его нет.
	GetByID(ctx context.Context, id string) (*Customer, error)
	// Save вставляет клиента или перезаписывает существующего вместе с заказами.
	// Неотправленные события агрегата попадают в outbox в той же единице работы.
	Save(ctx context.Context, customer *Customer) error
}

// EventDispatcher уведомляет внешний мир о доменных событиях.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events []DomainEvent) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(ctx context.Context, msg OutboxMessage) error
}

// OutboxRepository отдаёт сохранённые события на публикацию.
type OutboxRepository interface {
	PullPending(ctx context.Context, limit int) ([]OutboxMessage, error)
	Stats(ctx context.Context) (OutboxStats, error)
	MarkProcessed(ctx context.Context, id string) error
	// MarkFailed фиксирует окончательную ошибку публикации; сообщение больше не выдаётся.
	MarkFailed(ctx context.Context, id string, reason error) error
}

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	OccurredOn    time.Time
	RetryCount    int
	LastError     string
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// NewOutboxMessage сериализует доменное событие в запись outbox.
func NewOutboxMessage(event DomainEvent) (OutboxMessage, error) {
	if event == nil {
		return OutboxMessage{}, nullArgument("domain event")
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, fmt.Errorf("marshal %s event: %w", event.EventType(), err)
	}

	return OutboxMessage{
		ID:            event.EventID(),
		AggregateType: AggregateTypeCustomer,
		AggregateID:   event.AggregateID(),
		EventType:     event.EventType(),
		Payload:       payload,
		OccurredOn:    event.OccurredOn().UTC(),
	}, nil
}

// NewOutboxMessages сериализует события в порядке их появления.
func NewOutboxMessages(events []DomainEvent) ([]OutboxMessage, error) {
	result := make([]OutboxMessage, 0, len(events))
	for _, event := range events {
		msg, err := NewOutboxMessage(event)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, nil
}

// DeadLetter — событие, которое не удалось опубликовать, вместе с причиной.
// Уходит в DLQ как payload сообщения outbox и читается при replay.
type DeadLetter struct {
	OutboxID       string          `json:"outbox_id"`
	AggregateType  string          `json:"aggregate_type"`
	AggregateID    string          `json:"aggregate_id"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	OccurredOn     string          `json:"occurred_on,omitempty"`
	PublishError   string          `json:"publish_error"`
	DLQPublishedAt string          `json:"dlq_published_at"`
}

// NewDeadLetter оборачивает сообщение outbox в запись DLQ.
func NewDeadLetter(msg OutboxMessage, publishErr error, at time.Time) DeadLetter {
	dl := DeadLetter{
		OutboxID:       msg.ID,
		AggregateType:  msg.AggregateType,
		AggregateID:    msg.AggregateID,
		EventType:      msg.EventType,
		Payload:        json.RawMessage(msg.Payload),
		DLQPublishedAt: at.UTC().Format(time.RFC3339Nano),
	}
	if !msg.OccurredOn.IsZero() {
		dl.OccurredOn = msg.OccurredOn.UTC().Format(time.RFC3339Nano)
	}
	if publishErr != nil {
		dl.PublishError = publishErr.Error()
	}
	return dl
}
