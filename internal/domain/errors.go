package domain

import (
	"errors"
	"fmt"
)

// Категории ошибок домена. Конкретные ошибки ниже оборачивают одну из категорий,
// поэтому errors.Is срабатывает и на конкретную ошибку, и на её категорию.
var (
	// ErrValidation — некорректные входные данные конструктора.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState — операция невозможна в текущем состоянии агрегата.
	ErrInvalidState = errors.New("invalid state")
	// ErrLimitExceeded — достигнут лимит незакрытых заказов клиента.
	ErrLimitExceeded = errors.New("limit exceeded")
	// ErrNullArgument — не передан обязательный аргумент или зависимость.
	ErrNullArgument = errors.New("required argument is missing")
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerIDRequired = fmt.Errorf("%w: customer id is required", ErrValidation)
	// Ошибка пустого имени клиента.
	ErrCustomerNameRequired = fmt.Errorf("%w: customer name is required", ErrValidation)
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = fmt.Errorf("%w: order id is required", ErrValidation)
	// Ошибка даты заказа из будущего.
	ErrOrderDateInFuture = fmt.Errorf("%w: order date cannot be in the future", ErrValidation)
	// Ошибка отсутствия адреса доставки/оплаты у заказа, когда адреса обязательны.
	ErrOrderAddressRequired = fmt.Errorf("%w: shipping and billing addresses are required", ErrValidation)
	// Ошибка пустого названия товара.
	ErrProductRequired = fmt.Errorf("%w: product is required", ErrValidation)
	// Ошибка при некорректном количестве товара (<= 0).
	ErrQuantityInvalid = fmt.Errorf("%w: quantity must be greater than zero", ErrValidation)
	// Суммарное количество объединённой позиции не помещается в int.
	ErrQuantityOverflow = fmt.Errorf("%w: quantity overflow", ErrValidation)
	// Ошибка при некорректной цене (<= 0).
	ErrPriceInvalid = fmt.Errorf("%w: price must be greater than zero", ErrValidation)
	// Ошибка некорректных бизнес-правил клиента.
	ErrBusinessRulesInvalid = fmt.Errorf("%w: business rules are invalid", ErrValidation)

	// ErrCustomerNotFound возвращается репозиторием, если клиента нет.
	ErrCustomerNotFound = fmt.Errorf("%w: customer not found", ErrInvalidState)
	// ErrOrderNotFound возвращается агрегатом при обращении к несуществующему заказу.
	ErrOrderNotFound = fmt.Errorf("%w: order not found", ErrInvalidState)
	// ErrAddressUnresolved — адрес не передан и не задан по умолчанию.
	ErrAddressUnresolved = fmt.Errorf("%w: shipping and billing addresses must be provided or set as defaults", ErrInvalidState)
	// ErrCustomerAlreadyExists — попытка создать клиента с занятым идентификатором.
	ErrCustomerAlreadyExists = fmt.Errorf("%w: customer already exists", ErrInvalidState)

	// ErrOutboxMessageNotFound — сообщение outbox не найдено при смене статуса.
	ErrOutboxMessageNotFound = errors.New("outbox message not found")
	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsValidation проверяет, относится ли ошибка к ошибкам валидации.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsInvalidState проверяет, относится ли ошибка к ошибкам состояния агрегата.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsLimitExceeded проверяет, является ли ошибка превышением лимита заказов.
func IsLimitExceeded(err error) bool {
	return errors.Is(err, ErrLimitExceeded)
}

// IsNullArgument проверяет, является ли ошибка отсутствием обязательного аргумента.
func IsNullArgument(err error) bool {
	return errors.Is(err, ErrNullArgument)
}

// IsNotFound проверяет, что клиент или заказ не найден.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) || errors.Is(err, ErrOrderNotFound)
}

func nullArgument(name string) error {
	return fmt.Errorf("%w: %s", ErrNullArgument, name)
}
