package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/customers/internal/domain"
	"github.com/vladislavdragonenkov/customers/internal/metrics"
)

func newBufferLogger() (*log.Entry, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := log.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&log.JSONFormatter{})
	return log.NewEntry(logger), &buf
}

func sampleEvents(t *testing.T) []domain.DomainEvent {
	t.Helper()

	rules := domain.DefaultBusinessRules()
	c, err := domain.NewCustomer("customer-1", "John Doe", &rules)
	require.NoError(t, err)
	_, err = c.PlaceNewOrder(nil, nil)
	require.NoError(t, err)
	return c.DomainEvents()
}

func TestLoggingDispatcher_LogsEveryEvent(t *testing.T) {
	logger, buf := newBufferLogger()
	reg := prometheus.NewRegistry()
	m := metrics.NewCustomerMetricsWithRegisterer(reg)

	events := sampleEvents(t)
	require.NoError(t, NewLoggingDispatcher(logger, m).Dispatch(context.Background(), events))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"event_type":"CustomerCreated"`)
	assert.Contains(t, lines[0], `"event_id":"`+events[0].EventID()+`"`)
	assert.Contains(t, lines[1], `"event_type":"OrderPlaced"`)
	assert.Contains(t, lines[1], `"aggregate_id":"customer-1"`)

	count, err := testutil.GatherAndCount(reg, "customers_domain_events_dispatched_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLoggingDispatcher_EmptyAndNilEvents(t *testing.T) {
	logger, buf := newBufferLogger()
	d := NewLoggingDispatcher(logger, nil)

	require.NoError(t, d.Dispatch(context.Background(), nil))
	require.NoError(t, d.Dispatch(context.Background(), []domain.DomainEvent{nil}))
	assert.Empty(t, buf.String())
}

func TestLoggingDispatcher_CanceledContext(t *testing.T) {
	logger, buf := newBufferLogger()
	d := NewLoggingDispatcher(logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.Dispatch(ctx, sampleEvents(t))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, buf.String())
}

func TestLoggingDispatcher_DefaultLogger(t *testing.T) {
	d := NewLoggingDispatcher(nil, nil)
	require.NotNil(t, d.logger)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, d.Dispatch(ctx, sampleEvents(t)))
}
