package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

const (
	statusPending   = "pending"
	statusProcessed = "processed"
	statusFailed    = "failed"
)

// outboxRecord — JSON-представление сообщения в hash customer-events:messages.
type outboxRecord struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	OccurredOn    time.Time       `json:"occurred_on"`
	Status        string          `json:"status"`
	RetryCount    int             `json:"retry_count"`
	LastError     string          `json:"last_error,omitempty"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	FailedAt      *time.Time      `json:"failed_at,omitempty"`
}

func (r outboxRecord) message() domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            r.ID,
		AggregateType: r.AggregateType,
		AggregateID:   r.AggregateID,
		EventType:     r.EventType,
		Payload:       []byte(r.Payload),
		OccurredOn:    r.OccurredOn.UTC(),
		RetryCount:    r.RetryCount,
		LastError:     r.LastError,
	}
}

func encodeRecords(msgs []domain.OutboxMessage) ([]string, error) {
	result := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		data, err := json.Marshal(outboxRecord{
			ID:            msg.ID,
			AggregateType: msg.AggregateType,
			AggregateID:   msg.AggregateID,
			EventType:     msg.EventType,
			Payload:       json.RawMessage(msg.Payload),
			OccurredOn:    msg.OccurredOn,
			Status:        statusPending,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal outbox record: %w", err)
		}
		result = append(result, string(data))
	}
	return result, nil
}

func outboxScore(msg domain.OutboxMessage) float64 {
	return float64(msg.OccurredOn.UnixMicro())
}

type outboxRepository struct {
	client *goredis.Client
}

// NewOutboxRepository создаёт Redis-реализацию OutboxRepository.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{client: store.Client()}
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultPullLimit
	}

	ids, err := r.client.ZRange(ctx, outboxPendingKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis pull pending outbox ids: %w", err)
	}
	if len(ids) == 0 {
		return []domain.OutboxMessage{}, nil
	}

	raw, err := r.client.HMGet(ctx, outboxMessagesKey, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis load outbox messages: %w", err)
	}

	result := make([]domain.OutboxMessage, 0, len(ids))
	for i, value := range raw {
		s, ok := value.(string)
		if !ok {
			// запись потеряна, индекс больше не нужен
			_ = r.client.ZRem(ctx, outboxPendingKey, ids[i]).Err()
			continue
		}
		var rec outboxRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal outbox record %s: %w", ids[i], err)
		}
		result = append(result, rec.message())
	}
	return result, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	count, err := r.client.ZCard(ctx, outboxPendingKey).Result()
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("redis outbox stats: %w", err)
	}
	stats := domain.OutboxStats{PendingCount: int(count)}
	if count == 0 {
		return stats, nil
	}

	oldest, err := r.client.ZRangeWithScores(ctx, outboxPendingKey, 0, 0).Result()
	if err != nil {
		return domain.OutboxStats{}, fmt.Errorf("redis outbox oldest pending: %w", err)
	}
	if len(oldest) > 0 {
		stats.OldestPendingAt = time.UnixMicro(int64(oldest[0].Score)).UTC()
	}
	return stats, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id string) error {
	return r.update(ctx, id, func(rec *outboxRecord) {
		now := time.Now().UTC()
		rec.Status = statusProcessed
		rec.ProcessedAt = &now
	})
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason error) error {
	return r.update(ctx, id, func(rec *outboxRecord) {
		now := time.Now().UTC()
		rec.Status = statusFailed
		rec.FailedAt = &now
		rec.RetryCount++
		if reason != nil {
			rec.LastError = reason.Error()
		}
	})
}

// update переписывает запись и убирает её из индекса pending в одной транзакции.
func (r *outboxRepository) update(ctx context.Context, id string, apply func(*outboxRecord)) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	raw, err := r.client.HGet(ctx, outboxMessagesKey, id).Result()
	if errors.Is(err, goredis.Nil) {
		return domain.ErrOutboxMessageNotFound
	}
	if err != nil {
		return fmt.Errorf("redis get outbox record: %w", err)
	}

	var rec outboxRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return fmt.Errorf("unmarshal outbox record %s: %w", id, err)
	}
	apply(&rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal outbox record: %w", err)
	}

	if _, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, outboxMessagesKey, id, string(data))
		pipe.ZRem(ctx, outboxPendingKey, id)
		return nil
	}); err != nil {
		return fmt.Errorf("redis update outbox record: %w", err)
	}
	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
