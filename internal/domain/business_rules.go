package domain

import "fmt"

const (
	// DefaultMaxOutstandingOrders — лимит незакрытых заказов по умолчанию.
	DefaultMaxOutstandingOrders = 10
	// DefaultOutstandingOrderDays — окно (в днях), в течение которого заказ считается незакрытым.
	DefaultOutstandingOrderDays = 30
)

// CustomerBusinessRules задаёт настраиваемые правила агрегата. Агрегат их только читает.
type CustomerBusinessRules struct {
	MaxOutstandingOrders int
	OutstandingOrderDays int
	// RequireOrderAddresses включает вариант, в котором заказ обязан иметь оба адреса.
	RequireOrderAddresses bool
}

// DefaultBusinessRules возвращает правила со значениями по умолчанию.
func DefaultBusinessRules() CustomerBusinessRules {
	return CustomerBusinessRules{
		MaxOutstandingOrders: DefaultMaxOutstandingOrders,
		OutstandingOrderDays: DefaultOutstandingOrderDays,
	}
}

// Validate проверяет, что правила имеют смысл.
func (r CustomerBusinessRules) Validate() error {
	if r.MaxOutstandingOrders <= 0 {
		return fmt.Errorf("%w: max outstanding orders must be positive, got %d", ErrBusinessRulesInvalid, r.MaxOutstandingOrders)
	}
	if r.OutstandingOrderDays < 0 {
		return fmt.Errorf("%w: outstanding order days must be non-negative, got %d", ErrBusinessRulesInvalid, r.OutstandingOrderDays)
	}
	return nil
}
