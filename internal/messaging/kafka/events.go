package kafka

import (
	"encoding/json"
	"time"
)

// Topics для Kafka
const (
	TopicCustomerEvents  = "customers.domain.events"
	TopicDeadLetterQueue = "customers.dlq" // события, которые не удалось опубликовать
)

// Kafka headers сообщений с событиями клиентов
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderReplayedAt    = "x-replayed-at"
)

// OutboxEnvelope — формат сообщения в topic событий клиентов.
type OutboxEnvelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredOn    time.Time       `json:"occurred_on"`
	PublishedAt   time.Time       `json:"published_at"`
}

// key возвращает ключ партиционирования: события одного клиента попадают в одну партицию.
func (e OutboxEnvelope) key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}
