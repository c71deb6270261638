package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/customers/internal/domain"
)

func TestNewAddress_TrimsAndValidates(t *testing.T) {
	addr, err := domain.NewAddress("  1 Main St ", "Springfield", " IL", "62701 ", "US")
	require.NoError(t, err)
	assert.Equal(t, "1 Main St", addr.Street())
	assert.Equal(t, "IL", addr.State())
	assert.Equal(t, "62701", addr.PostalCode())

	cases := map[string][5]string{
		"street":  {" ", "c", "s", "p", "co"},
		"city":    {"st", "", "s", "p", "co"},
		"state":   {"st", "c", "\t", "p", "co"},
		"postal":  {"st", "c", "s", "", "co"},
		"country": {"st", "c", "s", "p", " "},
	}
	for name, f := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := domain.NewAddress(f[0], f[1], f[2], f[3], f[4])
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestAddress_EqualByValue(t *testing.T) {
	a := mustAddress(t, "1 Main St")
	b := mustAddress(t, "1 Main St")
	c := mustAddress(t, "2 Main St")

	assert.True(t, a.Equal(b))
	assert.True(t, a == b)
	assert.False(t, a.Equal(c))
}

func TestAddress_JSONRoundTrip(t *testing.T) {
	gofakeit.Seed(42)
	for i := 0; i < 20; i++ {
		fake := gofakeit.Address()
		addr, err := domain.NewAddress(fake.Street, fake.City, fake.State, fake.Zip, fake.Country)
		require.NoError(t, err)

		data, err := json.Marshal(addr)
		require.NoError(t, err)

		var decoded domain.Address
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.True(t, addr.Equal(decoded), "address %s changed after round trip: %s", addr, decoded)
	}
}

func TestAddress_UnmarshalRejectsInvalid(t *testing.T) {
	var addr domain.Address
	err := json.Unmarshal([]byte(`{"street":"1 Main St","city":"","state":"IL","postalCode":"1","country":"US"}`), &addr)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
}

func TestNewOrderItem_Validation(t *testing.T) {
	tests := []struct {
		name    string
		product string
		qty     int
		price   decimal.Decimal
		wantErr error
	}{
		{name: "blank product", product: "  ", qty: 1, price: decimal.NewFromInt(1), wantErr: domain.ErrProductRequired},
		{name: "zero quantity", product: "pen", qty: 0, price: decimal.NewFromInt(1), wantErr: domain.ErrQuantityInvalid},
		{name: "negative quantity", product: "pen", qty: -2, price: decimal.NewFromInt(1), wantErr: domain.ErrQuantityInvalid},
		{name: "zero price", product: "pen", qty: 1, price: decimal.Zero, wantErr: domain.ErrPriceInvalid},
		{name: "negative price", product: "pen", qty: 1, price: decimal.RequireFromString("-0.01"), wantErr: domain.ErrPriceInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := domain.NewOrderItem(tt.product, tt.qty, tt.price)
			require.ErrorIs(t, err, tt.wantErr)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestOrderItem_LineTotalIsQuantityTimesPrice(t *testing.T) {
	faker := gofakeit.New(7)
	for i := 0; i < 100; i++ {
		qty := faker.IntRange(1, 1000)
		price := decimal.NewFromFloat(faker.Price(0.01, 999.99)).Round(2)
		if !price.IsPositive() {
			continue
		}

		item, err := domain.NewOrderItem(faker.ProductName(), qty, price)
		require.NoError(t, err)

		want := price.Mul(decimal.NewFromInt(int64(qty)))
		assert.Truef(t, item.LineTotal().Equal(want), "line total %s, want %s", item.LineTotal(), want)
	}
}

func TestOrderItem_JSONRoundTrip(t *testing.T) {
	item := mustItem(t, "Widget", 3, "19.99")

	data, err := json.Marshal(item)
	require.NoError(t, err)
	assert.JSONEq(t, `{"product":"Widget","quantity":3,"price":"19.99"}`, string(data))

	var decoded domain.OrderItem
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, item.Equal(decoded))
}

func TestOrderItem_EqualIsDecimalAware(t *testing.T) {
	a := mustItem(t, "Widget", 1, "1.50")
	b := mustItem(t, "Widget", 1, "1.5")
	assert.True(t, a.Equal(b))
}
