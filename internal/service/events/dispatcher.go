// Package events содержит диспетчер доменных событий клиентов.
package events

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/customers/internal/domain"
	"github.com/vladislavdragonenkov/customers/internal/metrics"
)

// LoggingDispatcher пишет каждое событие в лог и учитывает его в метриках.
type LoggingDispatcher struct {
	logger  *log.Entry
	metrics *metrics.CustomerMetrics
}

// NewLoggingDispatcher создаёт диспетчер. Nil-logger заменяется компонентным логгером,
// nil-метрики отключают учёт.
func NewLoggingDispatcher(logger *log.Entry, m *metrics.CustomerMetrics) *LoggingDispatcher {
	if logger == nil {
		logger = log.WithField("component", "event-dispatcher")
	}
	return &LoggingDispatcher{logger: logger, metrics: m}
}

// Dispatch обрабатывает события в порядке их появления.
func (d *LoggingDispatcher) Dispatch(ctx context.Context, events []domain.DomainEvent) error {
	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return err
		}
		if event == nil {
			continue
		}

		d.logger.WithFields(log.Fields{
			"event_type":   event.EventType(),
			"event_id":     event.EventID(),
			"aggregate_id": event.AggregateID(),
			"occurred_on":  event.OccurredOn().UTC().Format(time.RFC3339Nano),
		}).Info("domain event dispatched")
		d.metrics.RecordEventDispatched(event.EventType())
	}
	return nil
}

var _ domain.EventDispatcher = (*LoggingDispatcher)(nil)
