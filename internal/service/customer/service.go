// Package customer реализует use case сервиса клиентов поверх агрегата domain.Customer.
//
// Каждый сценарий выполняется по одной схеме: загрузить или создать агрегат,
// изменить его, сохранить, разослать накопленные события и очистить буфер.
// Если сохранение не удалось, события не рассылаются.
package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/customers/internal/domain"
	"github.com/vladislavdragonenkov/customers/internal/metrics"
)

// Имена use case для логов и метрик.
const (
	useCaseCreateCustomer  = "create_customer"
	useCaseGetCustomer     = "get_customer"
	useCasePlaceOrder      = "place_order"
	useCaseAddItemToOrder  = "add_item_to_order"
	useCaseUpdateAddresses = "update_default_addresses"
)

// Service оркестрирует сценарии работы с клиентами.
type Service struct {
	repo       domain.CustomerRepository
	dispatcher domain.EventDispatcher
	rules      domain.CustomerBusinessRules
	logger     *log.Entry
	metrics    *metrics.CustomerMetrics
	aggOpts    []domain.Option
	newID      func() string
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics включает запись метрик.
func WithMetrics(m *metrics.CustomerMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithAggregateOptions передаёт опции во все создаваемые агрегаты.
func WithAggregateOptions(opts ...domain.Option) Option {
	return func(s *Service) {
		s.aggOpts = append(s.aggOpts, opts...)
	}
}

// WithIDGenerator задаёт генератор id клиентов, если id не передан явно.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// NewService создаёт сервис. Репозиторий, диспетчер и правила обязательны.
func NewService(repo domain.CustomerRepository, dispatcher domain.EventDispatcher, rules *domain.CustomerBusinessRules, opts ...Option) (*Service, error) {
	switch {
	case repo == nil:
		return nil, fmt.Errorf("%w: repository", domain.ErrNullArgument)
	case dispatcher == nil:
		return nil, fmt.Errorf("%w: dispatcher", domain.ErrNullArgument)
	case rules == nil:
		return nil, fmt.Errorf("%w: business rules", domain.ErrNullArgument)
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		repo:       repo,
		dispatcher: dispatcher,
		rules:      *rules,
		logger:     log.WithField("component", "customer-service"),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Rules возвращает бизнес-правила, с которыми создаются клиенты.
func (s *Service) Rules() domain.CustomerBusinessRules {
	return s.rules
}

// CreateCustomer регистрирует нового клиента. Пустой id заменяется сгенерированным.
func (s *Service) CreateCustomer(ctx context.Context, id, name string) (customer *domain.Customer, err error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = s.newID()
	}
	logger := s.logger.WithFields(log.Fields{"use_case": useCaseCreateCustomer, "customer_id": id})
	defer s.observe(useCaseCreateCustomer, time.Now(), &err)

	_, err = s.repo.GetByID(ctx, id)
	switch {
	case err == nil:
		err = fmt.Errorf("%w: %s", domain.ErrCustomerAlreadyExists, id)
		logger.WithError(err).Warn("customer already exists")
		return nil, err
	case !errors.Is(err, domain.ErrCustomerNotFound):
		logger.WithError(err).Error("failed to check customer existence")
		return nil, err
	}

	customer, err = domain.NewCustomer(id, name, &s.rules, s.aggregateOptions(logger)...)
	if err != nil {
		logger.WithError(err).Warn("failed to create customer")
		return nil, err
	}

	if err = s.commit(ctx, logger, customer); err != nil {
		return nil, err
	}
	s.metrics.RecordCustomerCreated()
	logger.Info("customer created")
	return customer, nil
}

// GetCustomer загружает клиента по id.
func (s *Service) GetCustomer(ctx context.Context, id string) (customer *domain.Customer, err error) {
	logger := s.logger.WithFields(log.Fields{"use_case": useCaseGetCustomer, "customer_id": id})
	defer s.observe(useCaseGetCustomer, time.Now(), &err)

	customer, err = s.load(ctx, logger, id)
	if err != nil {
		return nil, err
	}
	return customer, nil
}

// PlaceOrder оформляет новый заказ клиента.
func (s *Service) PlaceOrder(ctx context.Context, customerID string, shipping, billing *domain.Address) (order *domain.Order, err error) {
	logger := s.logger.WithFields(log.Fields{"use_case": useCasePlaceOrder, "customer_id": customerID})
	defer s.observe(useCasePlaceOrder, time.Now(), &err)

	customer, err := s.load(ctx, logger, customerID)
	if err != nil {
		return nil, err
	}

	order, err = customer.PlaceNewOrder(shipping, billing)
	if err != nil {
		if domain.IsLimitExceeded(err) {
			s.metrics.RecordLimitRejection()
		}
		logger.WithError(err).Warn("failed to place order")
		return nil, err
	}

	if err = s.commit(ctx, logger, customer); err != nil {
		return nil, err
	}
	s.metrics.RecordOrderPlaced()
	logger.WithField("order_id", order.ID()).Info("order placed")
	return order, nil
}

// AddItemToOrder добавляет позицию в заказ клиента и возвращает обновлённый заказ.
func (s *Service) AddItemToOrder(ctx context.Context, customerID, orderID string, item domain.OrderItem) (order *domain.Order, err error) {
	logger := s.logger.WithFields(log.Fields{
		"use_case":    useCaseAddItemToOrder,
		"customer_id": customerID,
		"order_id":    orderID,
	})
	defer s.observe(useCaseAddItemToOrder, time.Now(), &err)

	customer, err := s.load(ctx, logger, customerID)
	if err != nil {
		return nil, err
	}

	if err = customer.AddItemToOrder(orderID, item); err != nil {
		logger.WithError(err).Warn("failed to add item to order")
		return nil, err
	}

	if err = s.commit(ctx, logger, customer); err != nil {
		return nil, err
	}
	s.metrics.RecordItemAdded()

	order, _ = customer.GetOrder(orderID)
	logger.WithField("product", item.Product()).Info("item added to order")
	return order, nil
}

// UpdateDefaultAddresses заменяет адреса клиента по умолчанию.
func (s *Service) UpdateDefaultAddresses(ctx context.Context, customerID string, shipping, billing *domain.Address) (customer *domain.Customer, err error) {
	logger := s.logger.WithFields(log.Fields{"use_case": useCaseUpdateAddresses, "customer_id": customerID})
	defer s.observe(useCaseUpdateAddresses, time.Now(), &err)

	customer, err = s.load(ctx, logger, customerID)
	if err != nil {
		return nil, err
	}

	customer.UpdateDefaultAddresses(shipping, billing)
	if err = s.commit(ctx, logger, customer); err != nil {
		return nil, err
	}
	logger.Info("default addresses updated")
	return customer, nil
}

func (s *Service) load(ctx context.Context, logger *log.Entry, id string) (*domain.Customer, error) {
	customer, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			logger.WithError(err).Warn("customer not found")
		} else {
			logger.WithError(err).Error("failed to load customer")
		}
		return nil, err
	}
	return customer, nil
}

// commit сохраняет агрегат, рассылает его события и очищает буфер.
// Ошибка рассылки возвращается, но буфер всё равно очищается: события уже в outbox.
func (s *Service) commit(ctx context.Context, logger *log.Entry, customer *domain.Customer) error {
	if err := s.repo.Save(ctx, customer); err != nil {
		logger.WithError(err).Error("failed to save customer")
		return err
	}

	events := customer.DomainEvents()
	defer customer.ClearDomainEvents()

	if err := s.dispatcher.Dispatch(ctx, events); err != nil {
		logger.WithError(err).WithField("events", len(events)).Error("failed to dispatch domain events")
		return fmt.Errorf("dispatch domain events: %w", err)
	}
	return nil
}

func (s *Service) aggregateOptions(logger *log.Entry) []domain.Option {
	opts := make([]domain.Option, 0, len(s.aggOpts)+1)
	opts = append(opts, domain.WithLogger(logger))
	return append(opts, s.aggOpts...)
}

func (s *Service) observe(useCase string, started time.Time, err *error) {
	s.metrics.ObserveUseCase(useCase, *err, time.Since(started))
}
