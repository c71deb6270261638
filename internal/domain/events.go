package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Типы доменных событий; используются в outbox и в логах.
const (
	EventTypeCustomerCreated        = "CustomerCreated"
	EventTypeCustomerAddressUpdated = "CustomerAddressUpdated"
	EventTypeOrderPlaced            = "OrderPlaced"
	EventTypeOrderItemAdded         = "OrderItemAdded"
)

// AggregateTypeCustomer — тип агрегата в записях outbox.
const AggregateTypeCustomer = "customer"

// AddressKind различает адрес доставки и адрес оплаты.
type AddressKind string

const (
	AddressKindShipping AddressKind = "shipping"
	AddressKindBilling  AddressKind = "billing"
)

// DomainEvent — неизменяемая запись о том, что произошло внутри агрегата.
type DomainEvent interface {
	EventID() string
	EventType() string
	OccurredOn() time.Time
	AggregateID() string
}

// BaseEvent содержит общие поля всех событий и встраивается в конкретные события.
type BaseEvent struct {
	ID         string    `json:"eventId"`
	Type       string    `json:"eventType"`
	OccurredAt time.Time `json:"occurredOn"`
	CustomerID string    `json:"customerId"`
}

func (e BaseEvent) EventID() string       { return e.ID }
func (e BaseEvent) EventType() string     { return e.Type }
func (e BaseEvent) OccurredOn() time.Time { return e.OccurredAt }
func (e BaseEvent) AggregateID() string   { return e.CustomerID }

// CustomerCreatedEvent фиксирует создание клиента.
type CustomerCreatedEvent struct {
	BaseEvent
	Name string `json:"name"`
}

// CustomerAddressUpdatedEvent фиксирует смену адреса по умолчанию.
// При очистке адреса Address=nil и Cleared=true.
type CustomerAddressUpdatedEvent struct {
	BaseEvent
	Kind    AddressKind `json:"kind"`
	Address *Address    `json:"address,omitempty"`
	Cleared bool        `json:"cleared"`
}

// OrderPlacedEvent фиксирует оформление нового заказа.
type OrderPlacedEvent struct {
	BaseEvent
	OrderID   string    `json:"orderId"`
	OrderDate time.Time `json:"orderDate"`
}

// OrderItemAddedEvent фиксирует добавление позиции в заказ.
type OrderItemAddedEvent struct {
	BaseEvent
	OrderID  string          `json:"orderId"`
	Product  string          `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

var (
	_ DomainEvent = CustomerCreatedEvent{}
	_ DomainEvent = CustomerAddressUpdatedEvent{}
	_ DomainEvent = OrderPlacedEvent{}
	_ DomainEvent = OrderItemAddedEvent{}
)
