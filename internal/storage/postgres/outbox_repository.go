package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

const defaultPullLimit = 100

type outboxRepository struct {
	db *sql.DB
}

// NewOutboxRepository создаёт PostgreSQL-реализацию OutboxRepository поверх таблицы domain_events.
func NewOutboxRepository(store *Store) domain.OutboxRepository {
	return &outboxRepository{db: store.DB()}
}

func (r *outboxRepository) PullPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if limit <= 0 {
		limit = defaultPullLimit
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, occurred_on, retry_count, COALESCE(last_error, '')
		FROM domain_events
		WHERE processed = FALSE AND failed_at IS NULL
		ORDER BY occurred_on, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending domain events: %w", err)
	}
	defer rows.Close()

	result := make([]domain.OutboxMessage, 0, limit)
	for rows.Next() {
		var (
			msg     domain.OutboxMessage
			payload string
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.AggregateType,
			&msg.AggregateID,
			&msg.EventType,
			&payload,
			&msg.OccurredOn,
			&msg.RetryCount,
			&msg.LastError,
		); err != nil {
			return nil, fmt.Errorf("scan domain event: %w", err)
		}
		msg.Payload = []byte(payload)
		msg.OccurredOn = msg.OccurredOn.UTC()
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate domain event rows: %w", err)
	}

	return result, nil
}

func (r *outboxRepository) Stats(ctx context.Context) (domain.OutboxStats, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var (
		stats  domain.OutboxStats
		oldest sql.NullTime
	)

	if err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), MIN(occurred_on)
		FROM domain_events
		WHERE processed = FALSE AND failed_at IS NULL
	`).Scan(&stats.PendingCount, &oldest); err != nil {
		return domain.OutboxStats{}, fmt.Errorf("outbox stats query failed: %w", err)
	}

	if oldest.Valid {
		stats.OldestPendingAt = oldest.Time.UTC()
	}

	return stats, nil
}

func (r *outboxRepository) MarkProcessed(ctx context.Context, id string) error {
	return r.exec(ctx, "processed", `
		UPDATE domain_events
		SET processed = TRUE,
		    processed_at = $2
		WHERE id = $1
	`, id, time.Now().UTC())
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id string, reason error) error {
	lastErr := ""
	if reason != nil {
		lastErr = reason.Error()
	}
	return r.exec(ctx, "failed", `
		UPDATE domain_events
		SET failed_at = $2,
		    retry_count = retry_count + 1,
		    last_error = $3
		WHERE id = $1
	`, id, time.Now().UTC(), lastErr)
}

func (r *outboxRepository) exec(ctx context.Context, status, query string, args ...any) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark domain event as %s: %w", status, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for domain event %s: %w", status, err)
	}
	if affected == 0 {
		return domain.ErrOutboxMessageNotFound
	}

	return nil
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
