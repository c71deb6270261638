// Package metrics описывает Prometheus-метрики сервиса клиентов.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты use case для label result.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// CustomerMetrics содержит метрики агрегата клиента и use case.
type CustomerMetrics struct {
	// Счётчики операций агрегата
	customersCreated prometheus.Counter
	ordersPlaced     prometheus.Counter
	itemsAdded       prometheus.Counter
	limitRejections  prometheus.Counter

	// События, прошедшие через dispatcher
	eventsDispatched *prometheus.CounterVec

	useCaseDuration *prometheus.HistogramVec
}

// NewCustomerMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCustomerMetrics() *CustomerMetrics {
	return NewCustomerMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCustomerMetricsWithRegisterer регистрирует метрики в переданном registerer.
// Повторная регистрация возвращает уже существующие коллекторы.
func NewCustomerMetricsWithRegisterer(registerer prometheus.Registerer) *CustomerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &CustomerMetrics{
		customersCreated: registerCounter(registerer, prometheus.CounterOpts{
			Name: "customers_created_total",
			Help: "Total number of customers created",
		}),
		ordersPlaced: registerCounter(registerer, prometheus.CounterOpts{
			Name: "customers_orders_placed_total",
			Help: "Total number of orders placed",
		}),
		itemsAdded: registerCounter(registerer, prometheus.CounterOpts{
			Name: "customers_order_items_added_total",
			Help: "Total number of items added to orders",
		}),
		limitRejections: registerCounter(registerer, prometheus.CounterOpts{
			Name: "customers_order_limit_rejections_total",
			Help: "Total number of orders rejected by the outstanding orders limit",
		}),
		eventsDispatched: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "customers_domain_events_dispatched_total",
			Help: "Total number of domain events dispatched grouped by event type",
		}, []string{"event_type"}),
		useCaseDuration: registerHistogramVec(registerer, prometheus.HistogramOpts{
			Name:    "customers_use_case_duration_seconds",
			Help:    "Duration of customer use cases in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"use_case", "result"}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogramVec(registerer prometheus.Registerer, opts prometheus.HistogramOpts, labels []string) *prometheus.HistogramVec {
	collector := prometheus.NewHistogramVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram vec %q: %v", opts.Name, err))
	}
	return collector
}

// Методы допускают nil-получатель: компоненты без метрик просто ничего не пишут.

// RecordCustomerCreated увеличивает счётчик созданных клиентов.
func (m *CustomerMetrics) RecordCustomerCreated() {
	if m == nil {
		return
	}
	m.customersCreated.Inc()
}

// RecordOrderPlaced увеличивает счётчик оформленных заказов.
func (m *CustomerMetrics) RecordOrderPlaced() {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
}

// RecordItemAdded увеличивает счётчик добавленных позиций.
func (m *CustomerMetrics) RecordItemAdded() {
	if m == nil {
		return
	}
	m.itemsAdded.Inc()
}

// RecordLimitRejection увеличивает счётчик отказов по лимиту заказов.
func (m *CustomerMetrics) RecordLimitRejection() {
	if m == nil {
		return
	}
	m.limitRejections.Inc()
}

// RecordEventDispatched учитывает отправленное доменное событие.
func (m *CustomerMetrics) RecordEventDispatched(eventType string) {
	if m == nil {
		return
	}
	m.eventsDispatched.WithLabelValues(eventType).Inc()
}

// ObserveUseCase записывает длительность use case.
func (m *CustomerMetrics) ObserveUseCase(useCase string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.useCaseDuration.WithLabelValues(useCase, result).Observe(duration.Seconds())
}
