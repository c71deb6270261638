package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderItem — позиция заказа (value object): товар, количество и цена за единицу.
type OrderItem struct {
	product  string
	quantity int
	price    decimal.Decimal
}

// NewOrderItem создаёт позицию и проверяет её инварианты.
func NewOrderItem(product string, quantity int, price decimal.Decimal) (OrderItem, error) {
	product = strings.TrimSpace(product)
	if product == "" {
		return OrderItem{}, ErrProductRequired
	}
	if quantity <= 0 {
		return OrderItem{}, ErrQuantityInvalid
	}
	if !price.IsPositive() {
		return OrderItem{}, ErrPriceInvalid
	}

	return OrderItem{product: product, quantity: quantity, price: price}, nil
}

func (i OrderItem) Product() string        { return i.product }
func (i OrderItem) Quantity() int          { return i.quantity }
func (i OrderItem) Price() decimal.Decimal { return i.price }

// LineTotal возвращает quantity × price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.price.Mul(decimal.NewFromInt(int64(i.quantity)))
}

// IsZero сообщает, что позиция не была создана через конструктор.
func (i OrderItem) IsZero() bool {
	return i.product == "" && i.quantity == 0 && i.price.IsZero()
}

// Equal сравнивает позиции по значению; цены сравниваются как числа (1.50 == 1.5).
func (i OrderItem) Equal(other OrderItem) bool {
	return i.product == other.product && i.quantity == other.quantity && i.price.Equal(other.price)
}

// sameLine — позиции с одинаковыми товаром и ценой объединяются в одну.
func (i OrderItem) sameLine(other OrderItem) bool {
	return i.product == other.product && i.price.Equal(other.price)
}

func (i OrderItem) String() string {
	return fmt.Sprintf("%s x%d @ %s", i.product, i.quantity, i.price.String())
}

type orderItemJSON struct {
	Product  string          `json:"product"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

func (i OrderItem) MarshalJSON() ([]byte, error) {
	return json.Marshal(orderItemJSON{Product: i.product, Quantity: i.quantity, Price: i.price})
}

// UnmarshalJSON декодирует позицию и повторно проверяет инварианты.
func (i *OrderItem) UnmarshalJSON(data []byte) error {
	var raw orderItemJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode order item: %w", err)
	}
	parsed, err := NewOrderItem(raw.Product, raw.Quantity, raw.Price)
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}
