package ingest

import (
	"errors"
	"strings"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/currency"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatorAcceptsWellFormedRows(t *testing.T) {
	v := NewValidator(currency.NewRegistry(), "", "eur")

	tests := []struct {
		name     string
		row      RawRow
		amount   string
		dir      core.Direction
		currency string
	}{
		{
			name:   "defaults currency",
			row:    RawRow{Row: 1, Date: "2026-10-03", Amount: "12.50", Type: "expense", Description: " Bakery "},
			amount: "12.5", dir: core.Expense, currency: "EUR",
		},
		{
			name:   "comma decimal and bank label",
			row:    RawRow{Row: 2, Date: "2026-10-03", Amount: "12,5", Type: "Credit", Description: "x"},
			amount: "12.5", dir: core.Income, currency: "EUR",
		},
		{
			name: "thousands separator rejected",
			row:  RawRow{Row: 2, Date: "2026-10-03", Amount: "1.234,5", Type: "Credit", Description: "x"},
		},
		{
			name:   "negative amount stored as magnitude",
			row:    RawRow{Row: 3, Date: "2026-10-03", Amount: "-45,10", Type: "DEBIT", Description: "Fuel", Currency: "usd"},
			amount: "45.1", dir: core.Expense, currency: "USD",
		},
		{
			name:   "sign implies expense when type is blank",
			row:    RawRow{Row: 4, Date: "2026-10-03", Amount: "-3", Description: "Coffee"},
			amount: "3", dir: core.Expense, currency: "EUR",
		},
		{
			name:   "zero decimal currency",
			row:    RawRow{Row: 5, Date: "2026-10-03", Amount: "1500", Type: "income", Description: "Refund", Currency: "JPY"},
			amount: "1500", dir: core.Income, currency: "JPY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := v.Validate(tt.row)
			if tt.amount == "" {
				// thousands separators are not supported
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.amount, core.Canonical(c.Amount))
			assert.Equal(t, tt.dir, c.Type)
			assert.Equal(t, tt.currency, c.Currency)
			assert.Equal(t, tt.row.Row, c.Row)
			assert.Equal(t, strings.TrimSpace(tt.row.Description), c.Description)
		})
	}
}

func TestValidatorRejectsRowsWithReason(t *testing.T) {
	v := NewValidator(currency.NewRegistry(), "02/01/2006", "EUR")

	tests := []struct {
		name   string
		row    RawRow
		reason string
		target error
	}{
		{"bad date", RawRow{Row: 4, Date: "2026-10-03", Amount: "1", Type: "expense", Description: "x"}, "invalid date", nil},
		{"zero amount", RawRow{Row: 5, Date: "03/10/2026", Amount: "0.00", Type: "expense", Description: "x"}, "invalid amount", core.ErrZeroAmount},
		{"too precise for JPY", RawRow{Row: 6, Date: "03/10/2026", Amount: "10.5", Type: "expense", Description: "x", Currency: "JPY"}, "invalid amount", core.ErrTooManyDecimal},
		{"unknown type", RawRow{Row: 7, Date: "03/10/2026", Amount: "1", Type: "transfer", Description: "x"}, "invalid type", core.ErrInvalidDirection},
		{"missing type", RawRow{Row: 8, Date: "03/10/2026", Amount: "1", Description: "x"}, "missing type", core.ErrInvalidDirection},
		{"unknown currency", RawRow{Row: 9, Date: "03/10/2026", Amount: "1", Type: "expense", Description: "x", Currency: "XYZ"}, "invalid currency", core.ErrInvalidCurrency},
		{"blank description", RawRow{Row: 10, Date: "03/10/2026", Amount: "1", Type: "expense", Description: "  "}, "description is required", core.ErrEmptyDescription},
		{"long description", RawRow{Row: 11, Date: "03/10/2026", Amount: "1", Type: "expense", Description: strings.Repeat("é", 256)}, "description too long", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(tt.row)
			var rowErr *core.RowError
			require.True(t, errors.As(err, &rowErr), "expected RowError, got %v", err)
			assert.Equal(t, tt.row.Row, rowErr.Row)
			assert.Contains(t, rowErr.Reason, tt.reason)
			assert.True(t, strings.HasPrefix(err.Error(), "Row "), err.Error())
			if tt.target != nil {
				assert.ErrorIs(t, err, tt.target)
			}
		})
	}

	// 255 multi-byte runes are within the limit
	_, err := v.Validate(RawRow{Row: 12, Date: "03/10/2026", Amount: "1", Type: "expense", Description: strings.Repeat("é", 255)})
	assert.NoError(t, err)
}
