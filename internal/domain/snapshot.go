package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

// CustomerSnapshot — сохраняемое состояние клиента без буфера событий.
// Репозитории пишут и читают агрегат только через снимок.
type CustomerSnapshot struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	ShippingAddress *Address        `json:"shippingAddress,omitempty"`
	BillingAddress  *Address        `json:"billingAddress,omitempty"`
	Orders          []OrderSnapshot `json:"orders"`
}

// OrderSnapshot — сохраняемое состояние заказа.
type OrderSnapshot struct {
	ID              string      `json:"id"`
	OrderDate       time.Time   `json:"orderDate"`
	ShippingAddress *Address    `json:"shippingAddress,omitempty"`
	BillingAddress  *Address    `json:"billingAddress,omitempty"`
	Items           []OrderItem `json:"items"`
}

// Snapshot возвращает глубокую копию состояния агрегата.
func (c *Customer) Snapshot() CustomerSnapshot {
	return CustomerSnapshot{
		ID:              c.id,
		Name:            c.name,
		ShippingAddress: cloneAddress(c.shippingAddress),
		BillingAddress:  cloneAddress(c.billingAddress),
		Orders: lo.Map(c.orders, func(o *Order, _ int) OrderSnapshot {
			return o.snapshot()
		}),
	}
}

func (o *Order) snapshot() OrderSnapshot {
	return OrderSnapshot{
		ID:              o.id,
		OrderDate:       o.orderDate,
		ShippingAddress: cloneAddress(o.shippingAddress),
		BillingAddress:  cloneAddress(o.billingAddress),
		Items:           o.Items(),
	}
}

// Clone возвращает независимую копию снимка.
func (s CustomerSnapshot) Clone() CustomerSnapshot {
	clone := s
	clone.ShippingAddress = cloneAddress(s.ShippingAddress)
	clone.BillingAddress = cloneAddress(s.BillingAddress)
	clone.Orders = lo.Map(s.Orders, func(o OrderSnapshot, _ int) OrderSnapshot {
		o.ShippingAddress = cloneAddress(o.ShippingAddress)
		o.BillingAddress = cloneAddress(o.BillingAddress)
		o.Items = append([]OrderItem(nil), o.Items...)
		return o
	})
	return clone
}

// RestoreCustomer собирает агрегат из сохранённого состояния.
// События не генерируются, буфер восстановленного агрегата пуст.
func RestoreCustomer(snapshot CustomerSnapshot, rules *CustomerBusinessRules, opts ...Option) (*Customer, error) {
	if rules == nil {
		return nil, nullArgument("business rules")
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	id := strings.TrimSpace(snapshot.ID)
	if id == "" {
		return nil, ErrCustomerIDRequired
	}
	name := strings.TrimSpace(snapshot.Name)
	if name == "" {
		return nil, ErrCustomerNameRequired
	}

	c := newCustomer(*rules, opts)
	c.id = id
	c.name = name
	c.shippingAddress = cloneAddress(snapshot.ShippingAddress)
	c.billingAddress = cloneAddress(snapshot.BillingAddress)

	for _, snap := range snapshot.Orders {
		order, err := restoreOrder(snap)
		if err != nil {
			return nil, fmt.Errorf("restore customer %s: %w", id, err)
		}
		c.orders = append(c.orders, order)
	}

	return c, nil
}

func restoreOrder(s OrderSnapshot) (*Order, error) {
	id := strings.TrimSpace(s.ID)
	if id == "" {
		return nil, ErrOrderIDRequired
	}

	order := &Order{
		id:              id,
		orderDate:       s.OrderDate,
		shippingAddress: cloneAddress(s.ShippingAddress),
		billingAddress:  cloneAddress(s.BillingAddress),
		items:           make([]OrderItem, 0, len(s.Items)),
	}
	// дубликаты товар+цена сливаются по тому же правилу, что и при добавлении
	for _, item := range s.Items {
		if err := order.addItem(item); err != nil {
			return nil, fmt.Errorf("restore order %s: %w", id, err)
		}
	}
	return order, nil
}
