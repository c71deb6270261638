package memory

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

const defaultPullLimit = 100

// outboxRepositoryInMemory отдаёт события, сохранённые customer-репозиторием того же Store.
type outboxRepositoryInMemory struct {
	store *Store
}

// NewOutboxRepository создаёт in-memory реализацию outbox.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	if store == nil {
		store = NewStore()
	}
	return &outboxRepositoryInMemory{store: store}
}

// PullPending возвращает до limit необработанных сообщений в порядке сохранения.
func (r *outboxRepositoryInMemory) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultPullLimit
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	result := make([]domain.OutboxMessage, 0, limit)
	for _, rec := range r.store.outbox {
		if !rec.pending() {
			continue
		}
		result = append(result, rec.msg)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (r *outboxRepositoryInMemory) Stats(ctx context.Context) (domain.OutboxStats, error) {
	if err := ctx.Err(); err != nil {
		return domain.OutboxStats{}, err
	}

	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var stats domain.OutboxStats
	for _, rec := range r.store.outbox {
		if !rec.pending() {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.msg.OccurredOn.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.msg.OccurredOn
		}
	}
	return stats, nil
}

// MarkProcessed помечает сообщение опубликованным.
func (r *outboxRepositoryInMemory) MarkProcessed(ctx context.Context, id string) error {
	return r.update(ctx, id, func(rec *outboxRecord) {
		rec.processed = true
	})
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepositoryInMemory) MarkFailed(ctx context.Context, id string, reason error) error {
	return r.update(ctx, id, func(rec *outboxRecord) {
		rec.msg.RetryCount++
		if reason != nil {
			rec.msg.LastError = reason.Error()
		}
		rec.failedAt = time.Now().UTC()
	})
}

func (r *outboxRepositoryInMemory) update(ctx context.Context, id string, apply func(*outboxRecord)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	rec, ok := r.store.outboxIdx[id]
	if !ok {
		return domain.ErrOutboxMessageNotFound
	}
	apply(rec)
	return nil
}

var _ domain.OutboxRepository = (*outboxRepositoryInMemory)(nil)
