package domain

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Order — заказ клиента. Создаётся только агрегатом Customer через PlaceNewOrder.
type Order struct {
	id              string
	orderDate       time.Time
	shippingAddress *Address
	billingAddress  *Address
	items           []OrderItem
}

// NewOrder создаёт заказ. Дата заказа не может быть позже now.
// Если requireAddresses=true, оба адреса обязательны.
func NewOrder(id string, orderDate time.Time, shipping, billing *Address, requireAddresses bool, now time.Time) (*Order, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrOrderIDRequired
	}
	if orderDate.After(now) {
		return nil, ErrOrderDateInFuture
	}
	if requireAddresses && (shipping == nil || billing == nil) {
		return nil, ErrOrderAddressRequired
	}

	return &Order{
		id:              id,
		orderDate:       orderDate,
		shippingAddress: cloneAddress(shipping),
		billingAddress:  cloneAddress(billing),
		items:           make([]OrderItem, 0),
	}, nil
}

func (o *Order) ID() string           { return o.id }
func (o *Order) OrderDate() time.Time { return o.orderDate }

// ShippingAddress возвращает копию адреса доставки (nil, если не задан).
func (o *Order) ShippingAddress() *Address { return cloneAddress(o.shippingAddress) }

// BillingAddress возвращает копию адреса оплаты (nil, если не задан).
func (o *Order) BillingAddress() *Address { return cloneAddress(o.billingAddress) }

// Items возвращает копию позиций в порядке добавления.
func (o *Order) Items() []OrderItem {
	result := make([]OrderItem, len(o.items))
	copy(result, o.items)
	return result
}

// addItem добавляет позицию. Позиция с тем же товаром и ценой не дублируется:
// старая удаляется, а в конец списка добавляется позиция с суммарным количеством.
// Изменять заказ может только агрегат Customer, чтобы каждое изменение попадало в события.
func (o *Order) addItem(item OrderItem) error {
	if item.IsZero() {
		return nullArgument("order item")
	}
	if item.quantity <= 0 {
		return ErrQuantityInvalid
	}

	existing, idx, found := lo.FindIndexOf(o.items, item.sameLine)
	if !found {
		o.items = append(o.items, item)
		return nil
	}
	if existing.quantity > math.MaxInt-item.quantity {
		return fmt.Errorf("%w: %s %d + %d", ErrQuantityOverflow, item.product, existing.quantity, item.quantity)
	}

	merged := OrderItem{
		product:  item.product,
		quantity: existing.quantity + item.quantity,
		price:    item.price,
	}
	o.items = append(o.items[:idx], o.items[idx+1:]...)
	o.items = append(o.items, merged)
	return nil
}

// TotalAmount пересчитывает сумму заказа при каждом вызове.
func (o *Order) TotalAmount() decimal.Decimal {
	return lo.Reduce(o.items, func(acc decimal.Decimal, item OrderItem, _ int) decimal.Decimal {
		return acc.Add(item.LineTotal())
	}, decimal.Zero)
}

// IsOutstanding сообщает, попадает ли заказ в окно последних days дней.
func (o *Order) IsOutstanding(days int) bool {
	return o.IsOutstandingAt(days, time.Now().UTC())
}

// IsOutstandingAt — orderDate + days > now. Заказ ровно days-дневной давности уже не считается.
func (o *Order) IsOutstandingAt(days int, now time.Time) bool {
	return o.orderDate.AddDate(0, 0, days).After(now)
}
