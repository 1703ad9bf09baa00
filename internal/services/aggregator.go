package services

import (
	"context"
	"fmt"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LedgerReader is the ledger query the aggregator runs on. Passing the
// transaction-bound store keeps reads inside the evaluation's transaction.
type LedgerReader interface {
	ListTransactions(ctx context.Context, q ports.TransactionQuery) ([]core.Transaction, error)
}

// Spending is an exact aggregate of ledger entries. Uncategorized entries are
// grouped under uuid.Nil.
type Spending struct {
	Total      decimal.Decimal
	Count      int
	ByCategory map[uuid.UUID]decimal.Decimal
}

// For returns the sum for one category, zero when it has no entries.
func (s Spending) For(categoryID uuid.UUID) decimal.Decimal {
	if v, ok := s.ByCategory[categoryID]; ok {
		return v
	}
	return decimal.Zero
}

// Aggregate sums the amounts selected by q straight from the ledger. It never
// consults cached spent amounts, so it can be rerun at any time.
func Aggregate(ctx context.Context, ledger LedgerReader, q ports.TransactionQuery) (Spending, error) {
	txs, err := ledger.ListTransactions(ctx, q)
	if err != nil {
		return Spending{}, fmt.Errorf("aggregate spending: %w", err)
	}

	out := Spending{Total: decimal.Zero, ByCategory: make(map[uuid.UUID]decimal.Decimal)}
	for _, t := range txs {
		key := uuid.Nil
		if t.CategoryID != nil {
			key = *t.CategoryID
		}
		out.ByCategory[key] = out.For(key).Add(t.Amount)
		out.Total = out.Total.Add(t.Amount)
		out.Count++
	}
	return out, nil
}

// SumByCategory is the expense total of one category over an inclusive range.
func SumByCategory(ctx context.Context, ledger LedgerReader, userID, categoryID uuid.UUID, r core.DateRange) (decimal.Decimal, error) {
	s, err := Aggregate(ctx, ledger, ports.TransactionQuery{
		UserID:      userID,
		CategoryIDs: []uuid.UUID{categoryID},
		Type:        core.Expense,
		Range:       r,
	})
	if err != nil {
		return decimal.Zero, err
	}
	return s.Total, nil
}

// SumQuery selects the entries Sum adds up.
type SumQuery = ports.TransactionQuery

// Sum is the exact total of the entries selected by q.
func Sum(ctx context.Context, ledger LedgerReader, q SumQuery) (decimal.Decimal, error) {
	s, err := Aggregate(ctx, ledger, q)
	if err != nil {
		return decimal.Zero, err
	}
	return s.Total, nil
}
