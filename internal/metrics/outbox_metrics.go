package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Исход обработки события outbox relay для label outcome.
const (
	OutcomePublished    = "published"
	OutcomeDeadLettered = "dead_lettered"
	OutcomeFailed       = "failed"
)

// OutboxMetrics — метрики relay событий клиентов из outbox в Kafka.
type OutboxMetrics struct {
	events         *prometheus.CounterVec
	publishRetries prometheus.Counter
	pending        prometheus.Gauge
	oldestAge      prometheus.Gauge
}

// NewOutboxMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewOutboxMetrics() *OutboxMetrics {
	return NewOutboxMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewOutboxMetricsWithRegisterer регистрирует метрики в переданном registerer.
func NewOutboxMetricsWithRegisterer(registerer prometheus.Registerer) *OutboxMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OutboxMetrics{
		events: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "customers_outbox_events_total",
			Help: "Customer events handled by the outbox relay grouped by event type and outcome",
		}, []string{"event_type", "outcome"}),
		publishRetries: registerCounter(registerer, prometheus.CounterOpts{
			Name: "customers_outbox_publish_retries_total",
			Help: "Failed publish attempts that were retried or exhausted",
		}),
		pending: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "customers_outbox_pending_events",
			Help: "Customer events waiting in the outbox",
		}),
		oldestAge: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "customers_outbox_oldest_pending_age_seconds",
			Help: "Age of the oldest customer event waiting in the outbox",
		}),
	}
}

func registerGauge(registerer prometheus.Registerer, opts prometheus.GaugeOpts) prometheus.Gauge {
	collector := prometheus.NewGauge(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Gauge)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register gauge %q: %v", opts.Name, err))
	}
	return collector
}

// RecordEvent учитывает исход обработки одного события.
func (m *OutboxMetrics) RecordEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(eventType, outcome).Inc()
}

// RecordPublishRetry учитывает неудачную попытку публикации.
func (m *OutboxMetrics) RecordPublishRetry() {
	if m == nil {
		return
	}
	m.publishRetries.Inc()
}

// SetBacklog выставляет размер backlog и возраст самого старого события.
func (m *OutboxMetrics) SetBacklog(pending int, oldestAge time.Duration) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.oldestAge.Set(max(oldestAge, 0).Seconds())
}
