// Package currency holds the ISO 4217 codes the ledger accepts and the
// number of minor-unit digits each one allows.
package currency

import (
	"strings"
	"sync"
)

const (
	// DefaultCode is used when neither the row nor the import options name a currency.
	DefaultCode = "EUR"
	// DefaultDecimals applies to a registered code without explicit metadata.
	DefaultDecimals = 2
)

// Meta describes a registered currency.
type Meta struct {
	Code     string
	Decimals int
	Symbol   string
}

// Registry is a concurrency-safe set of accepted currencies.
type Registry struct {
	mu    sync.RWMutex
	codes map[string]Meta
}

// NewRegistry returns a registry seeded with the common currencies.
func NewRegistry() *Registry {
	r := &Registry{codes: make(map[string]Meta)}
	for _, m := range []Meta{
		{Code: "USD", Decimals: 2, Symbol: "$"},
		{Code: "EUR", Decimals: 2, Symbol: "€"},
		{Code: "GBP", Decimals: 2, Symbol: "£"},
		{Code: "CHF", Decimals: 2, Symbol: "CHF"},
		{Code: "CAD", Decimals: 2, Symbol: "C$"},
		{Code: "AUD", Decimals: 2, Symbol: "A$"},
		{Code: "SEK", Decimals: 2, Symbol: "kr"},
		{Code: "NOK", Decimals: 2, Symbol: "kr"},
		{Code: "DKK", Decimals: 2, Symbol: "kr"},
		{Code: "PLN", Decimals: 2, Symbol: "zł"},
		{Code: "CNY", Decimals: 2, Symbol: "¥"},
		{Code: "INR", Decimals: 2, Symbol: "₹"},
		{Code: "EGP", Decimals: 2, Symbol: "£"},
		{Code: "JPY", Decimals: 0, Symbol: "¥"},
		{Code: "KRW", Decimals: 0, Symbol: "₩"},
		{Code: "KWD", Decimals: 3, Symbol: "د.ك"},
		{Code: "BHD", Decimals: 3, Symbol: ".د.ب"},
	} {
		r.codes[m.Code] = m
	}
	return r
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry { return defaultRegistry }

// Register adds or replaces a currency. Codes that are not three ASCII
// letters are ignored.
func (r *Registry) Register(m Meta) {
	m.Code = strings.ToUpper(strings.TrimSpace(m.Code))
	if !wellFormed(m.Code) {
		return
	}
	if m.Decimals < 0 || m.Decimals > 8 {
		m.Decimals = DefaultDecimals
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[m.Code] = m
}

// Lookup returns the metadata for code, normalising case and whitespace.
func (r *Registry) Lookup(code string) (Meta, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.codes[code]
	return m, ok
}

// IsValid reports whether code is a registered currency.
func (r *Registry) IsValid(code string) bool {
	_, ok := r.Lookup(code)
	return ok
}

// Decimals returns the minor-unit precision of code, or DefaultDecimals when
// the code is unknown.
func (r *Registry) Decimals(code string) int {
	if m, ok := r.Lookup(code); ok {
		return m.Decimals
	}
	return DefaultDecimals
}

func wellFormed(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}
