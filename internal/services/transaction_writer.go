package services

import (
	"context"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ingest"
	"fintrack/internal/ports"

	"github.com/google/uuid"
)

// WriteResult is a stored transaction and the budgets it touches.
type WriteResult struct {
	Transaction core.Transaction
	// Budgets are the non-archived budgets whose range covers the date and
	// which carry a limit for the transaction's category.
	Budgets []uuid.UUID
}

// TransactionWriter persists categorized candidates.
type TransactionWriter struct {
	store ports.Store
	now   func() time.Time
}

func NewTransactionWriter(store ports.Store) *TransactionWriter {
	return &TransactionWriter{store: store, now: time.Now}
}

// Write stores c under categoryID. Any store failure is returned as a
// *core.StorageError so the caller can fail just this row.
func (w *TransactionWriter) Write(ctx context.Context, userID uuid.UUID, c ingest.Candidate, categoryID uuid.UUID) (WriteResult, error) {
	t := core.Transaction{
		ID:          uuid.New(),
		UserID:      userID,
		Date:        c.Date,
		Amount:      c.Amount,
		Currency:    c.Currency,
		Description: c.Description,
		Type:        c.Type,
		CreatedAt:   w.now(),
	}
	if categoryID != uuid.Nil {
		id := categoryID
		t.CategoryID = &id
	}
	if err := t.Validate(); err != nil {
		return WriteResult{}, &core.StorageError{Op: "write transaction", Err: err}
	}

	var result WriteResult
	err := w.store.WithinTx(ctx, func(tx ports.Store) error {
		if err := tx.CreateTransaction(ctx, t); err != nil {
			return err
		}
		if t.CategoryID == nil {
			return nil
		}
		budgets, err := tx.ListBudgetsCovering(ctx, userID, t.Date, *t.CategoryID)
		if err != nil {
			return err
		}
		for _, b := range budgets {
			result.Budgets = append(result.Budgets, b.ID)
		}
		return nil
	})
	if err != nil {
		return WriteResult{}, &core.StorageError{Op: "write transaction", Err: err}
	}
	result.Transaction = t

	slog.DebugContext(ctx, "Transaction written",
		"row", c.Row,
		"transaction_id", t.ID,
		"type", t.Type,
		"amount", t.Amount.String(),
		"budgets", len(result.Budgets))
	return result, nil
}
