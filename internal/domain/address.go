package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Address — неизменяемый value object адреса. Все поля обязательны и хранятся обрезанными.
type Address struct {
	street     string
	city       string
	state      string
	postalCode string
	country    string
}

// NewAddress создаёт адрес и проверяет, что ни одно поле не пустое.
func NewAddress(street, city, state, postalCode, country string) (Address, error) {
	a := Address{
		street:     strings.TrimSpace(street),
		city:       strings.TrimSpace(city),
		state:      strings.TrimSpace(state),
		postalCode: strings.TrimSpace(postalCode),
		country:    strings.TrimSpace(country),
	}

	fields := []struct {
		name  string
		value string
	}{
		{"street", a.street},
		{"city", a.city},
		{"state", a.state},
		{"postal code", a.postalCode},
		{"country", a.country},
	}
	for _, f := range fields {
		if f.value == "" {
			return Address{}, fmt.Errorf("%w: address %s is required", ErrValidation, f.name)
		}
	}

	return a, nil
}

func (a Address) Street() string     { return a.street }
func (a Address) City() string       { return a.city }
func (a Address) State() string      { return a.state }
func (a Address) PostalCode() string { return a.postalCode }
func (a Address) Country() string    { return a.country }

// Equal сравнивает адреса по значению.
func (a Address) Equal(other Address) bool {
	return a == other
}

func (a Address) String() string {
	return fmt.Sprintf("%s, %s, %s %s, %s", a.street, a.city, a.state, a.postalCode, a.country)
}

// sameAddress сравнивает опциональные адреса: nil равен только nil.
func sameAddress(a, b *Address) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func cloneAddress(a *Address) *Address {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

type addressJSON struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// MarshalJSON кодирует адрес в формат, который хранится в JSON-колонках.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(addressJSON{
		Street:     a.street,
		City:       a.city,
		State:      a.state,
		PostalCode: a.postalCode,
		Country:    a.country,
	})
}

// UnmarshalJSON декодирует адрес и повторно прогоняет валидацию конструктора.
func (a *Address) UnmarshalJSON(data []byte) error {
	var raw addressJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	parsed, err := NewAddress(raw.Street, raw.City, raw.State, raw.PostalCode, raw.Country)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
