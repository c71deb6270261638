package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/vladislavdragonenkov/customers/internal/domain"
	"github.com/vladislavdragonenkov/customers/internal/httpserver"
	"github.com/vladislavdragonenkov/customers/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/customers/internal/metrics"
	"github.com/vladislavdragonenkov/customers/internal/service/customer"
	"github.com/vladislavdragonenkov/customers/internal/service/events"
	"github.com/vladislavdragonenkov/customers/internal/service/outbox"
	"github.com/vladislavdragonenkov/customers/internal/storage/redis"
)

const address = `{"street":"1 Main St","city":"Springfield","state":"IL","postalCode":"62701","country":"US"}`

// CustomerLifecycleTestSuite прогоняет клиента через HTTP API, Redis и outbox relay до Kafka.
type CustomerLifecycleTestSuite struct {
	suite.Suite
	logger *log.Entry
	redis  *miniredis.Miniredis
	outbox domain.OutboxRepository
	server *httptest.Server
}

func (s *CustomerLifecycleTestSuite) SetupTest() {
	baseLogger := log.New()
	baseLogger.SetLevel(log.WarnLevel) // Уменьшаем шум в тестах
	s.logger = baseLogger.WithField("component", "integration-test")

	s.redis = miniredis.RunT(s.T())
	store, err := redis.Open(context.Background(), s.redis.Addr())
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = store.Close() })

	rules := domain.DefaultBusinessRules()
	rules.MaxOutstandingOrders = 2
	registry := prometheus.NewRegistry()
	m := metrics.NewCustomerMetricsWithRegisterer(registry)

	svc, err := customer.NewService(
		redis.NewCustomerRepository(store, rules),
		events.NewLoggingDispatcher(s.logger, m),
		&rules,
		customer.WithLogger(s.logger),
		customer.WithMetrics(m),
	)
	s.Require().NoError(err)

	s.outbox = redis.NewOutboxRepository(store)
	s.server = httptest.NewServer(httpserver.NewRouter(svc, nil, registry, s.logger))
	s.T().Cleanup(s.server.Close)
}

func (s *CustomerLifecycleTestSuite) request(method, path, body string, wantStatus int) map[string]any {
	req, err := http.NewRequest(method, s.server.URL+path, strings.NewReader(body))
	s.Require().NoError(err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded map[string]any
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&decoded))
	s.Require().Equal(wantStatus, resp.StatusCode, "%s %s: %v", method, path, decoded)
	return decoded
}

func (s *CustomerLifecycleTestSuite) newWorker(producer sarama.SyncProducer, opts ...outbox.Option) *outbox.Worker {
	kafkaProducer := kafka.NewProducerFromSync(producer, s.logger)
	opts = append([]outbox.Option{outbox.WithLogger(s.logger), outbox.WithRetryBaseDelay(0)}, opts...)
	return outbox.NewWorker(s.outbox, kafka.NewOutboxPublisher(kafkaProducer, kafka.TopicCustomerEvents), opts...)
}

func (s *CustomerLifecycleTestSuite) TestFullLifecycle_EventsReachKafka() {
	ctx := context.Background()

	s.request(http.MethodPost, "/customers", `{"id":"customer-1","name":"John Doe"}`, http.StatusCreated)
	s.request(http.MethodPut, "/customers/customer-1/addresses",
		`{"shippingAddress":`+address+`,"billingAddress":`+address+`}`, http.StatusOK)
	order := s.request(http.MethodPost, "/customers/customer-1/orders", "", http.StatusCreated)
	orderID, _ := order["id"].(string)
	s.Require().NotEmpty(orderID)

	updated := s.request(http.MethodPost, "/customers/customer-1/orders/"+orderID+"/items",
		`{"product":"Widget","quantity":3,"price":"2.50"}`, http.StatusOK)
	s.Equal("7.50", updated["totalAmount"])

	stats, err := s.outbox.Stats(ctx)
	s.Require().NoError(err)
	s.Equal(5, stats.PendingCount)

	mockProducer := mocks.NewSyncProducer(s.T(), nil)
	var published []string
	for range 5 {
		mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			s.Equal(kafka.TopicCustomerEvents, msg.Topic)
			for _, h := range msg.Headers {
				if string(h.Key) == kafka.HeaderEventType {
					published = append(published, string(h.Value))
				}
			}
			return nil
		})
	}

	s.Equal(5, s.newWorker(mockProducer).ProcessOnce(ctx).Published)
	s.Require().NoError(mockProducer.Close())

	s.ElementsMatch([]string{
		domain.EventTypeCustomerCreated,
		domain.EventTypeCustomerAddressUpdated,
		domain.EventTypeCustomerAddressUpdated,
		domain.EventTypeOrderPlaced,
		domain.EventTypeOrderItemAdded,
	}, published)

	stats, err = s.outbox.Stats(ctx)
	s.Require().NoError(err)
	s.Zero(stats.PendingCount)
}

func (s *CustomerLifecycleTestSuite) TestOrderLimitIsEnforcedAcrossRequests() {
	s.request(http.MethodPost, "/customers", `{"id":"customer-2","name":"Jane Doe"}`, http.StatusCreated)
	s.request(http.MethodPost, "/customers/customer-2/orders", "", http.StatusCreated)
	s.request(http.MethodPost, "/customers/customer-2/orders", "", http.StatusCreated)

	body := s.request(http.MethodPost, "/customers/customer-2/orders", "", http.StatusUnprocessableEntity)
	s.Contains(body["error"], "maximum allowed is 2")

	view := s.request(http.MethodGet, "/customers/customer-2", "", http.StatusOK)
	s.EqualValues(2, view["outstandingOrders"])
}

func (s *CustomerLifecycleTestSuite) TestPublishFailureGoesToDeadLetterQueue() {
	ctx := context.Background()
	s.request(http.MethodPost, "/customers", `{"id":"customer-3","name":"Jim Doe"}`, http.StatusCreated)

	mainProducer := mocks.NewSyncProducer(s.T(), nil)
	mainProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	mainProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	dlqProducer := mocks.NewSyncProducer(s.T(), nil)
	dlqProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		value, err := msg.Value.Encode()
		if err != nil {
			return err
		}
		envelope, err := kafka.DecodeDeadLetter(value)
		if err != nil {
			return err
		}
		s.Equal(domain.EventTypeCustomerCreated, envelope.EventType)
		s.Equal("customer-3", envelope.AggregateID)
		return nil
	})

	dlq := kafka.NewOutboxPublisher(kafka.NewProducerFromSync(dlqProducer, s.logger), kafka.TopicDeadLetterQueue)
	worker := s.newWorker(mainProducer, outbox.WithMaxAttempts(2), outbox.WithDLQPublisher(dlq))

	result := worker.ProcessOnce(ctx)
	s.Zero(result.Published)
	s.Equal(1, result.DeadLettered)
	s.Require().NoError(mainProducer.Close())
	s.Require().NoError(dlqProducer.Close())

	stats, err := s.outbox.Stats(ctx)
	s.Require().NoError(err)
	s.Zero(stats.PendingCount, "failed messages leave the pending set")
}

func TestCustomerLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(CustomerLifecycleTestSuite))
}
