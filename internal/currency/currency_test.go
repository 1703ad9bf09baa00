package currency

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_Lookup(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		code     string
		ok       bool
		decimals int
	}{
		{"EUR", true, 2},
		{" usd ", true, 2},
		{"JPY", true, 0},
		{"KWD", true, 3},
		{"XXX", false, DefaultDecimals},
		{"EURO", false, DefaultDecimals},
		{"", false, DefaultDecimals},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.ok, r.IsValid(tt.code))
			assert.Equal(t, tt.decimals, r.Decimals(tt.code))
		})
	}
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	r.Register(Meta{Code: "btc", Decimals: 8})
	m, ok := r.Lookup("BTC")
	assert.True(t, ok)
	assert.Equal(t, 8, m.Decimals)

	r.Register(Meta{Code: "B1C", Decimals: 2})
	assert.False(t, r.IsValid("B1C"))

	r.Register(Meta{Code: "ABC", Decimals: 12})
	assert.Equal(t, DefaultDecimals, r.Decimals("ABC"))
}
