package domain

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// Customer — корень агрегата. Все изменения заказов проходят через него,
// а каждое изменение добавляет доменное событие в буфер. Отправкой событий
// и очисткой буфера занимается прикладной слой.
type Customer struct {
	id              string
	name            string
	shippingAddress *Address
	billingAddress  *Address
	orders          []*Order
	events          []DomainEvent

	rules  CustomerBusinessRules
	logger *log.Entry
	now    func() time.Time
	newID  func() string
}

var discardLogger = func() *log.Entry {
	l := log.New()
	l.SetOutput(io.Discard)
	return log.NewEntry(l)
}()

// Option настраивает агрегат.
type Option func(*Customer)

// WithLogger подключает логгер. Без него агрегат ничего не пишет.
func WithLogger(logger *log.Entry) Option {
	return func(c *Customer) {
		c.logger = logger
	}
}

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(c *Customer) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов заказов и событий.
func WithIDGenerator(newID func() string) Option {
	return func(c *Customer) {
		if newID != nil {
			c.newID = newID
		}
	}
}

func newCustomer(rules CustomerBusinessRules, opts []Option) *Customer {
	c := &Customer{
		rules:  rules,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
		orders: make([]*Order, 0),
		events: make([]DomainEvent, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewCustomer создаёт клиента и добавляет событие CustomerCreated.
func NewCustomer(id, name string, rules *CustomerBusinessRules, opts ...Option) (*Customer, error) {
	if rules == nil {
		return nil, nullArgument("business rules")
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrCustomerIDRequired
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrCustomerNameRequired
	}

	c := newCustomer(*rules, opts)
	c.id = id
	c.name = name

	c.record(CustomerCreatedEvent{
		BaseEvent: c.baseEvent(EventTypeCustomerCreated),
		Name:      name,
	})
	c.log().Debug("customer created")

	return c, nil
}

func (c *Customer) ID() string   { return c.id }
func (c *Customer) Name() string { return c.name }

// Rules возвращает правила, с которыми работает агрегат.
func (c *Customer) Rules() CustomerBusinessRules { return c.rules }

// DefaultShippingAddress возвращает копию адреса доставки по умолчанию.
func (c *Customer) DefaultShippingAddress() *Address { return cloneAddress(c.shippingAddress) }

// DefaultBillingAddress возвращает копию адреса оплаты по умолчанию.
func (c *Customer) DefaultBillingAddress() *Address { return cloneAddress(c.billingAddress) }

// Orders возвращает заказы клиента в порядке оформления.
func (c *Customer) Orders() []*Order {
	result := make([]*Order, len(c.orders))
	copy(result, c.orders)
	return result
}

// DomainEvents возвращает копию буфера неотправленных событий.
func (c *Customer) DomainEvents() []DomainEvent {
	result := make([]DomainEvent, len(c.events))
	copy(result, c.events)
	return result
}

// ClearDomainEvents очищает буфер событий. На сохранённое состояние не влияет.
func (c *Customer) ClearDomainEvents() {
	c.events = make([]DomainEvent, 0)
}

// OutstandingOrdersCount считает заказы внутри окна OutstandingOrderDays.
func (c *Customer) OutstandingOrdersCount() int {
	now := c.now()
	return lo.CountBy(c.orders, func(o *Order) bool {
		return o.IsOutstandingAt(c.rules.OutstandingOrderDays, now)
	})
}

// PlaceNewOrder оформляет новый заказ. Незаданные адреса берутся из адресов по умолчанию.
// При достижении лимита незакрытых заказов возвращает ErrLimitExceeded и ничего не меняет.
func (c *Customer) PlaceNewOrder(shipping, billing *Address) (*Order, error) {
	if shipping == nil {
		shipping = c.shippingAddress
	}
	if billing == nil {
		billing = c.billingAddress
	}
	if c.rules.RequireOrderAddresses && (shipping == nil || billing == nil) {
		return nil, ErrAddressUnresolved
	}

	if outstanding := c.OutstandingOrdersCount(); outstanding >= c.rules.MaxOutstandingOrders {
		c.log().WithField("outstanding", outstanding).Warn("outstanding orders limit reached")
		return nil, fmt.Errorf("%w: customer %s already has %d outstanding orders, maximum allowed is %d",
			ErrLimitExceeded, c.id, outstanding, c.rules.MaxOutstandingOrders)
	}

	now := c.now()
	order, err := NewOrder(c.newID(), now, shipping, billing, c.rules.RequireOrderAddresses, now)
	if err != nil {
		return nil, err
	}
	c.orders = append(c.orders, order)

	c.record(OrderPlacedEvent{
		BaseEvent: c.baseEvent(EventTypeOrderPlaced),
		OrderID:   order.ID(),
		OrderDate: order.OrderDate(),
	})
	c.log().WithField("order_id", order.ID()).Debug("order placed")

	return order, nil
}

// GetOrder ищет заказ по идентификатору; ok=false, если заказа нет.
func (c *Customer) GetOrder(orderID string) (*Order, bool) {
	return lo.Find(c.orders, func(o *Order) bool {
		return o.id == orderID
	})
}

// AddItemToOrder добавляет позицию в заказ клиента.
func (c *Customer) AddItemToOrder(orderID string, item OrderItem) error {
	order, ok := c.GetOrder(orderID)
	if !ok {
		return fmt.Errorf("%w: order %q does not belong to customer %s", ErrOrderNotFound, orderID, c.id)
	}
	if err := order.addItem(item); err != nil {
		return err
	}

	c.record(OrderItemAddedEvent{
		BaseEvent: c.baseEvent(EventTypeOrderItemAdded),
		OrderID:   order.ID(),
		Product:   item.Product(),
		Quantity:  item.Quantity(),
		Price:     item.Price(),
	})
	c.log().WithFields(log.Fields{
		"order_id": order.ID(),
		"product":  item.Product(),
	}).Debug("order item added")

	return nil
}

// UpdateDefaultAddresses перезаписывает адреса по умолчанию. Для каждого адреса,
// значение которого изменилось (в том числе на nil), добавляется CustomerAddressUpdated.
func (c *Customer) UpdateDefaultAddresses(shipping, billing *Address) {
	if !sameAddress(c.shippingAddress, shipping) {
		c.shippingAddress = cloneAddress(shipping)
		c.recordAddressChange(AddressKindShipping, shipping)
	}
	if !sameAddress(c.billingAddress, billing) {
		c.billingAddress = cloneAddress(billing)
		c.recordAddressChange(AddressKindBilling, billing)
	}
}

func (c *Customer) recordAddressChange(kind AddressKind, address *Address) {
	c.record(CustomerAddressUpdatedEvent{
		BaseEvent: c.baseEvent(EventTypeCustomerAddressUpdated),
		Kind:      kind,
		Address:   cloneAddress(address),
		Cleared:   address == nil,
	})
	c.log().WithFields(log.Fields{
		"kind":    kind,
		"cleared": address == nil,
	}).Debug("default address updated")
}

func (c *Customer) baseEvent(eventType string) BaseEvent {
	return BaseEvent{
		ID:         c.newID(),
		Type:       eventType,
		OccurredAt: c.now(),
		CustomerID: c.id,
	}
}

func (c *Customer) record(event DomainEvent) {
	c.events = append(c.events, event)
}

// log возвращает entry для записи; без логгера запись уходит в discard.
func (c *Customer) log() *log.Entry {
	if c.logger == nil {
		return discardLogger
	}
	return c.logger.WithField("customer_id", c.id)
}
