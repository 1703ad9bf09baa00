// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// taken out of bank exports and normalising them to exact decimals.
package core

import (
	"errors"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount  = errors.New("invalid amount")
	ErrZeroAmount     = errors.New("amount must be non-zero")
	ErrTooManyDecimal = errors.New("too many decimal places for currency")
)

// ParseAmount converts a decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators, an optional
// leading sign and surrounding spaces. The scale may not exceed decimals, the
// minor-unit precision of the currency. Zero is rejected.
//
// Examples:
//
//	ParseAmount("12.34", 2)  -> 12.34, nil
//	ParseAmount("-12,34", 2) -> -12.34, nil
//	ParseAmount("12.345", 2) -> error (too many decimals)
//	ParseAmount("1500", 0)   -> 1500, nil
func ParseAmount(s string, decimals int) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	body := strings.TrimLeft(s, "+-")
	if len(s)-len(body) > 1 || body == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	parts := strings.Split(body, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, p := range parts {
		for _, r := range p {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if len(parts) == 2 && len(parts[1]) > decimals {
		return decimal.Zero, ErrTooManyDecimal
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if d.IsZero() {
		return decimal.Zero, ErrZeroAmount
	}
	return d, nil
}

// Canonical is the persisted and compared form of an amount: no trailing
// zeros, so 12.50 and 12.5 share one representation.
func Canonical(d decimal.Decimal) string {
	return d.String()
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
