// Package outbox переносит доменные события клиентов из outbox-хранилища в брокер.
//
// Relay гарантирует доставку at-least-once: событие помечается processed только
// после успешной публикации. Событие, не опубликованное за maxAttempts попыток,
// уходит в DLQ и помечается failed; повторно relay его не берёт.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/customers/internal/domain"
	"github.com/vladislavdragonenkov/customers/internal/metrics"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 30 * time.Second
)

// BatchResult — итог одного прохода relay.
type BatchResult struct {
	Pulled       int
	Published    int
	DeadLettered int
	// Failed — события, которые не удалось ни опубликовать, ни отправить в DLQ.
	Failed int
}

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger relay.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics включает метрики relay.
func WithMetrics(m *metrics.OutboxMetrics) Option {
	return func(w *Worker) {
		w.metrics = m
	}
}

// WithDLQPublisher задаёт publisher для событий, которые не удалось отправить.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) {
		w.dlq = publisher
	}
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт число событий за один проход.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		w.retryBaseDelay = max(delay, 0)
	}
}

// WithClock подменяет часы для меток DLQ и возраста backlog.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Worker публикует накопленные события клиентов.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	logger    *log.Entry
	metrics   *metrics.OutboxMetrics
	now       func() time.Time

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
}

// NewWorker создаёт relay. Без repo или publisher Run сразу завершается.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "customer-outbox-relay"),
		now:            time.Now,
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("customer event relay disabled: outbox or publisher is not configured")
		return
	}

	w.logger.WithFields(log.Fields{
		"poll_interval": w.pollInterval.String(),
		"batch_size":    w.batchSize,
		"max_attempts":  w.maxAttempts,
		"dlq":           w.dlq != nil,
	}).Info("customer event relay started")
	defer w.logger.Info("customer event relay stopped")

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessOnce публикует одну пачку событий в порядке их появления.
func (w *Worker) ProcessOnce(ctx context.Context) BatchResult {
	var result BatchResult
	if ctx.Err() != nil {
		return result
	}
	defer w.observeBacklog(ctx)

	pending, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending customer events")
		return result
	}
	result.Pulled = len(pending)

	for _, msg := range pending {
		if ctx.Err() != nil {
			break
		}
		if !w.relay(ctx, msg, &result) {
			break
		}
	}

	if result.Pulled > 0 {
		w.logger.WithFields(log.Fields{
			"pulled":        result.Pulled,
			"published":     result.Published,
			"dead_lettered": result.DeadLettered,
			"failed":        result.Failed,
		}).Debug("customer event batch relayed")
	}
	return result
}

// relay обрабатывает одно событие; false означает, что проход нужно прервать.
func (w *Worker) relay(ctx context.Context, msg domain.OutboxMessage, result *BatchResult) bool {
	entry := w.logger.WithFields(log.Fields{
		"event_id":    msg.ID,
		"event_type":  msg.EventType,
		"customer_id": msg.AggregateID,
	})

	publishErr := w.publishWithRetry(ctx, msg)
	if errors.Is(publishErr, context.Canceled) || errors.Is(publishErr, context.DeadlineExceeded) {
		return false
	}

	if publishErr == nil {
		if err := w.repo.MarkProcessed(ctx, msg.ID); err != nil {
			// событие уже в Kafka и будет опубликовано повторно
			entry.WithError(err).Warn("customer event published but not marked processed")
			return true
		}
		result.Published++
		w.metrics.RecordEvent(msg.EventType, metrics.OutcomePublished)
		return true
	}

	entry.WithError(publishErr).Error("customer event publish exhausted retries")
	outcome := metrics.OutcomeDeadLettered
	if err := w.deadLetter(ctx, msg, publishErr); err != nil {
		entry.WithError(err).Warn("customer event not written to DLQ")
		outcome = metrics.OutcomeFailed
	}
	if err := w.repo.MarkFailed(ctx, msg.ID, publishErr); err != nil {
		entry.WithError(err).Warn("failed to mark customer event as failed")
	}

	if outcome == metrics.OutcomeDeadLettered {
		result.DeadLettered++
	} else {
		result.Failed++
	}
	w.metrics.RecordEvent(msg.EventType, outcome)
	return true
}

func (w *Worker) publishWithRetry(ctx context.Context, msg domain.OutboxMessage) error {
	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if lastErr = w.publisher.Publish(ctx, msg); lastErr == nil {
			return nil
		}
		w.metrics.RecordPublishRetry()
		if attempt == w.maxAttempts {
			break
		}
		if err := sleepCtx(ctx, w.retryBackoff(attempt)); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: %d attempts: %w", domain.ErrOutboxPublish, w.maxAttempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryBackoff удваивает паузу с каждой попыткой, не больше maxRetryDelay.
func (w *Worker) retryBackoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		if delay >= maxRetryDelay/2 {
			return maxRetryDelay
		}
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}

// deadLetter публикует событие в DLQ. Без DLQ publisher событие считается потерянным.
func (w *Worker) deadLetter(ctx context.Context, msg domain.OutboxMessage, publishErr error) error {
	if w.dlq == nil {
		return errors.New("dlq publisher is not configured")
	}

	payload, err := json.Marshal(domain.NewDeadLetter(msg, publishErr, w.now()))
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	dead := msg
	dead.Payload = payload
	if err := w.dlq.Publish(ctx, dead); err != nil {
		return fmt.Errorf("publish to dlq: %w", err)
	}
	return nil
}

func (w *Worker) observeBacklog(ctx context.Context) {
	if w.metrics == nil || ctx.Err() != nil {
		return
	}
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to read outbox backlog")
		return
	}
	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetBacklog(stats.PendingCount, age)
}
