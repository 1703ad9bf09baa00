// Package ingest turns raw import rows into categorized candidate
// transactions.
package ingest

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"fintrack/internal/core"
	"fintrack/internal/currency"

	"github.com/shopspring/decimal"
)

const maxDescriptionRunes = 255

// RawRow is one decoded row of a bulk upload. Row is 1-based. DecodeErr is
// set when the upload format could not be parsed for this row; such a row
// always fails validation.
type RawRow struct {
	Row         int
	Date        string
	Amount      string
	Type        string
	Description string
	Category    string
	Currency    string
	DecodeErr   error
}

// Candidate is a validated row that has not been written yet.
type Candidate struct {
	Row           int
	Date          core.Date
	Amount        decimal.Decimal
	Type          core.Direction
	Description   string
	CategoryLabel string
	Currency      string
}

// Validator parses raw rows under one date layout and currency default.
type Validator struct {
	currencies      *currency.Registry
	layout          string
	defaultCurrency string
}

func NewValidator(currencies *currency.Registry, layout, defaultCurrency string) *Validator {
	if currencies == nil {
		currencies = currency.Default()
	}
	if layout == "" {
		layout = core.DateLayout
	}
	if defaultCurrency == "" {
		defaultCurrency = currency.DefaultCode
	}
	return &Validator{
		currencies:      currencies,
		layout:          layout,
		defaultCurrency: strings.ToUpper(strings.TrimSpace(defaultCurrency)),
	}
}

// Validate returns a candidate or a *core.RowError describing the first
// problem found. A negative amount is stored as its magnitude; when the type
// column is blank the sign decides, and a blank type on an unsigned amount
// is rejected.
func (v *Validator) Validate(row RawRow) (Candidate, error) {
	if row.DecodeErr != nil {
		return Candidate{}, rowErr(row.Row, fmt.Sprintf("malformed row: %v", row.DecodeErr), row.DecodeErr)
	}
	date, err := core.ParseDate(v.layout, row.Date)
	if err != nil {
		return Candidate{}, rowErr(row.Row, fmt.Sprintf("invalid date %q (expected format %s)", row.Date, v.layout), err)
	}

	code := strings.ToUpper(strings.TrimSpace(row.Currency))
	if code == "" {
		code = v.defaultCurrency
	}
	if !v.currencies.IsValid(code) {
		return Candidate{}, rowErr(row.Row, fmt.Sprintf("invalid currency %q", code), core.ErrInvalidCurrency)
	}

	amount, err := core.ParseAmount(row.Amount, v.currencies.Decimals(code))
	if err != nil {
		return Candidate{}, rowErr(row.Row, fmt.Sprintf("invalid amount %q: %v", row.Amount, err), err)
	}

	var dir core.Direction
	switch {
	case strings.TrimSpace(row.Type) != "":
		if dir, err = core.ParseDirection(row.Type); err != nil {
			return Candidate{}, rowErr(row.Row, fmt.Sprintf("invalid type %q", row.Type), err)
		}
	case amount.IsNegative():
		dir = core.Expense
	default:
		return Candidate{}, rowErr(row.Row, "missing type", core.ErrInvalidDirection)
	}

	desc := strings.TrimSpace(row.Description)
	if desc == "" {
		return Candidate{}, rowErr(row.Row, "description is required", core.ErrEmptyDescription)
	}
	if utf8.RuneCountInString(desc) > maxDescriptionRunes {
		return Candidate{}, rowErr(row.Row, fmt.Sprintf("description too long (max %d characters)", maxDescriptionRunes), errors.New("description too long"))
	}

	return Candidate{
		Row:           row.Row,
		Date:          date,
		Amount:        amount.Abs(),
		Type:          dir,
		Description:   desc,
		CategoryLabel: strings.TrimSpace(row.Category),
		Currency:      code,
	}, nil
}

func rowErr(row int, reason string, err error) *core.RowError {
	return &core.RowError{Row: row, Reason: reason, Err: err}
}
