package domain_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

var fixedNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() func() time.Time {
	return func() time.Time { return fixedNow }
}

// sequentialIDs выдаёт предсказуемые идентификаторы id-1, id-2, ...
func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func mustAddress(t *testing.T, street string) domain.Address {
	t.Helper()
	addr, err := domain.NewAddress(street, "Springfield", "IL", "62701", "US")
	if err != nil {
		t.Fatalf("new address: %v", err)
	}
	return addr
}

func mustItem(t *testing.T, product string, qty int, price string) domain.OrderItem {
	t.Helper()
	item, err := domain.NewOrderItem(product, qty, decimal.RequireFromString(price))
	if err != nil {
		t.Fatalf("new order item: %v", err)
	}
	return item
}

func newTestCustomer(t *testing.T, rules domain.CustomerBusinessRules, opts ...domain.Option) *domain.Customer {
	t.Helper()
	opts = append([]domain.Option{
		domain.WithClock(fixedClock()),
		domain.WithIDGenerator(sequentialIDs("id")),
	}, opts...)
	c, err := domain.NewCustomer("customer-1", "John Doe", &rules, opts...)
	if err != nil {
		t.Fatalf("new customer: %v", err)
	}
	return c
}

func rulesWithMax(max int) domain.CustomerBusinessRules {
	rules := domain.DefaultBusinessRules()
	rules.MaxOutstandingOrders = max
	return rules
}
