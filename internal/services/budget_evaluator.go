package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BudgetEvaluation is the outcome of one budget evaluation.
type BudgetEvaluation struct {
	BudgetID           uuid.UUID
	Status             core.BudgetStatus
	ExceededCategories []uuid.UUID
	AlertCreated       bool
}

// BudgetService owns budget creation, archiving and evaluation.
type BudgetService struct {
	store ports.Store
	locks *EntityLocks
	now   func() time.Time
}

func NewBudgetService(store ports.Store, locks *EntityLocks) *BudgetService {
	if locks == nil {
		locks = NewEntityLocks()
	}
	return &BudgetService{store: store, locks: locks, now: time.Now}
}

// CreateBudget validates b, assigns ids and stores it ACTIVE together with
// its category limits.
func (s *BudgetService) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, &core.ConfigurationError{Kind: "budget", EntityID: b.ID, Reason: err.Error()}
	}

	now := s.now()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.Status = core.BudgetActive
	b.CreatedAt, b.UpdatedAt = now, now
	for i := range b.Categories {
		if b.Categories[i].ID == uuid.Nil {
			b.Categories[i].ID = uuid.New()
		}
		b.Categories[i].BudgetID = b.ID
		b.Categories[i].SpentAmount = decimal.Zero
	}

	err := s.store.WithinTx(ctx, func(tx ports.Store) error {
		if err := tx.EnsureUser(ctx, b.UserID); err != nil {
			return err
		}
		return tx.CreateBudget(ctx, b)
	})
	if err != nil {
		return core.Budget{}, &core.StorageError{Op: "create budget", Err: err}
	}

	slog.InfoContext(ctx, "Budget created",
		"budget_id", b.ID,
		"user_id", b.UserID,
		"range", b.Range().String(),
		"categories", len(b.Categories))
	return b, nil
}

// ArchiveBudget moves a budget to ARCHIVED. Archiving twice is a no-op.
func (s *BudgetService) ArchiveBudget(ctx context.Context, id uuid.UUID) error {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	return s.store.WithinTx(ctx, func(tx ports.Store) error {
		b, err := tx.GetBudget(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == core.BudgetArchived {
			return nil
		}
		if err := tx.UpdateBudgetStatus(ctx, id, core.BudgetArchived); err != nil {
			return err
		}
		slog.InfoContext(ctx, "Budget archived", "budget_id", id, "previous_status", b.Status)
		return nil
	})
}

// EvaluateBudget recomputes every spent amount of the budget from the ledger,
// moves the status between ACTIVE and EXCEEDED and raises at most one unread
// alert per budget period. The read-aggregate-write runs under the budget's
// lock and in one store transaction, so reruns without new transactions
// leave the same state.
func (s *BudgetService) EvaluateBudget(ctx context.Context, id uuid.UUID) (BudgetEvaluation, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return BudgetEvaluation{}, err
	}
	defer unlock()

	var result BudgetEvaluation
	err = s.store.WithinTx(ctx, func(tx ports.Store) error {
		b, err := tx.GetBudget(ctx, id)
		if err != nil {
			return err
		}
		if b.Status == core.BudgetArchived {
			return core.ErrBudgetArchived
		}
		if err := b.Validate(); err != nil {
			return &core.ConfigurationError{Kind: "budget", EntityID: id, Reason: err.Error()}
		}

		catIDs := make([]uuid.UUID, len(b.Categories))
		for i, bc := range b.Categories {
			catIDs[i] = bc.CategoryID
		}
		spending, err := Aggregate(ctx, tx, ports.TransactionQuery{
			UserID:      b.UserID,
			CategoryIDs: catIDs,
			Type:        core.Expense,
			Range:       b.Range(),
		})
		if err != nil {
			return err
		}

		var exceeded []core.BudgetCategory
		for i := range b.Categories {
			b.Categories[i].SpentAmount = spending.For(b.Categories[i].CategoryID)
			if b.Categories[i].Exceeded() {
				exceeded = append(exceeded, b.Categories[i])
			}
		}

		previous := b.Status
		switch {
		case len(exceeded) > 0:
			b.Status = core.BudgetExceeded
		default:
			b.Status = core.BudgetActive
		}
		b.UpdatedAt = s.now()
		if err := tx.SaveBudgetEvaluation(ctx, b); err != nil {
			return err
		}
		if previous != b.Status {
			slog.InfoContext(ctx, "Budget status changed", "budget_id", id, "from", previous, "to", b.Status)
		}

		result = BudgetEvaluation{BudgetID: id, Status: b.Status}
		for _, bc := range exceeded {
			result.ExceededCategories = append(result.ExceededCategories, bc.CategoryID)
		}
		if len(exceeded) == 0 {
			return nil
		}

		created, err := s.raiseAlert(ctx, tx, b, exceeded)
		result.AlertCreated = created
		return err
	})
	if err != nil {
		var cfgErr *core.ConfigurationError
		if errors.As(err, &cfgErr) || errors.Is(err, core.ErrBudgetArchived) || errors.Is(err, core.ErrNotFound) {
			return BudgetEvaluation{}, err
		}
		return BudgetEvaluation{}, &core.EvaluationError{Kind: "budget", EntityID: id, Err: err}
	}
	return result, nil
}

// ExceededCategories lists the categories over their limit as of the last
// evaluation.
func (s *BudgetService) ExceededCategories(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	b, err := s.store.GetBudget(ctx, id)
	if err != nil {
		return nil, err
	}
	var out []uuid.UUID
	for _, bc := range b.Categories {
		if bc.Exceeded() {
			out = append(out, bc.CategoryID)
		}
	}
	return out, nil
}

func (s *BudgetService) raiseAlert(ctx context.Context, tx ports.Store, b core.Budget, exceeded []core.BudgetCategory) (bool, error) {
	periodKey := b.PeriodKey()
	has, err := tx.HasUnreadAlert(ctx, core.SourceBudget, b.ID, periodKey)
	if err != nil {
		return false, err
	}
	if has {
		slog.DebugContext(ctx, "Budget alert suppressed, unread alert exists", "budget_id", b.ID, "period_key", periodKey)
		return false, nil
	}

	names, err := categoryNames(ctx, tx, b.UserID)
	if err != nil {
		return false, err
	}
	parts := make([]string, len(exceeded))
	for i, bc := range exceeded {
		parts[i] = fmt.Sprintf("%s %s/%s", names.name(bc.CategoryID), bc.SpentAmount.String(), bc.LimitAmount.String())
	}

	alert := core.Alert{
		ID:         uuid.New(),
		UserID:     b.UserID,
		SourceType: core.SourceBudget,
		SourceID:   b.ID,
		PeriodKey:  periodKey,
		Message:    fmt.Sprintf("Budget %q exceeded: %s", b.Name, strings.Join(parts, ", ")),
		CreatedAt:  s.now(),
	}
	if err := tx.CreateAlert(ctx, alert); err != nil {
		return false, err
	}

	slog.InfoContext(ctx, "Budget alert created",
		"budget_id", b.ID,
		"period_key", periodKey,
		"exceeded", len(exceeded))
	return true, nil
}

type nameIndex map[uuid.UUID]string

func (n nameIndex) name(id uuid.UUID) string {
	if v, ok := n[id]; ok {
		return v
	}
	return id.String()
}

func categoryNames(ctx context.Context, store ports.CategoryStore, userID uuid.UUID) (nameIndex, error) {
	cats, err := store.ListCategories(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(nameIndex, len(cats))
	for _, c := range cats {
		out[c.ID] = c.Name
	}
	return out, nil
}
