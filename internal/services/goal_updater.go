package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GoalProgress is the state of one goal after contributions were applied.
type GoalProgress struct {
	GoalID        uuid.UUID
	Contributed   decimal.Decimal
	CurrentAmount decimal.Decimal
	Completed     bool
	// JustCompleted is set only by the call that completed the goal.
	JustCompleted bool
}

// GoalUpdate is the outcome of applying one transaction to the user's goals.
type GoalUpdate struct {
	TransactionID uuid.UUID
	Goals         []GoalProgress
	Errors        []error
}

// GoalService owns goal creation and progress.
type GoalService struct {
	store           ports.Store
	locks           *EntityLocks
	currencies      *currency.Registry
	defaultCurrency string
	now             func() time.Time
}

// NewGoalService builds the service. Goals created without a currency get
// defaultCurrency, or currency.DefaultCode when that is blank.
func NewGoalService(store ports.Store, locks *EntityLocks, defaultCurrency string) *GoalService {
	if locks == nil {
		locks = NewEntityLocks()
	}
	defaultCurrency = strings.ToUpper(strings.TrimSpace(defaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = currency.DefaultCode
	}
	return &GoalService{
		store:           store,
		locks:           locks,
		currencies:      currency.Default(),
		defaultCurrency: defaultCurrency,
		now:             time.Now,
	}
}

// CreateGoal validates g and stores it. The currency must be registered.
func (s *GoalService) CreateGoal(ctx context.Context, g core.Goal) (core.Goal, error) {
	if err := g.Validate(); err != nil {
		return core.Goal{}, &core.ConfigurationError{Kind: "goal", EntityID: g.ID, Reason: err.Error()}
	}
	g.Currency = strings.ToUpper(strings.TrimSpace(g.Currency))
	if g.Currency == "" {
		g.Currency = s.defaultCurrency
	}
	if !s.currencies.IsValid(g.Currency) {
		return core.Goal{}, fmt.Errorf("%w: goal currency %q", core.ErrInvalidCurrency, g.Currency)
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	g.CreatedAt = s.now()
	g.Completed, g.CompletedAt = false, nil
	g.Contribute(decimal.Zero, g.CreatedAt)

	err := s.store.WithinTx(ctx, func(tx ports.Store) error {
		if err := tx.EnsureUser(ctx, g.UserID); err != nil {
			return err
		}
		return tx.CreateGoal(ctx, g)
	})
	if err != nil {
		return core.Goal{}, &core.StorageError{Op: "create goal", Err: err}
	}

	slog.InfoContext(ctx, "Goal created", "goal_id", g.ID, "user_id", g.UserID, "type", g.Type, "target", g.TargetAmount.String())
	return g, nil
}

// ApplyTransactions adds every matching transaction of txs to the goal. Each
// (goal, transaction) pair counts once, so replaying a batch changes nothing.
func (s *GoalService) ApplyTransactions(ctx context.Context, goalID uuid.UUID, txs []core.Transaction) (GoalProgress, error) {
	unlock, err := s.locks.Lock(ctx, goalID)
	if err != nil {
		return GoalProgress{}, err
	}
	defer unlock()

	var progress GoalProgress
	err = s.store.WithinTx(ctx, func(tx ports.Store) error {
		g, err := tx.GetGoal(ctx, goalID)
		if err != nil {
			return err
		}
		progress = GoalProgress{GoalID: g.ID, Contributed: decimal.Zero}

		changed := false
		for _, t := range txs {
			if !g.Matches(t) {
				continue
			}
			recorded, err := tx.RecordContribution(ctx, g.ID, t.ID, t.Amount)
			if err != nil {
				return err
			}
			if !recorded {
				continue
			}
			changed = true
			progress.Contributed = progress.Contributed.Add(t.Amount)
			if g.Contribute(t.Amount, s.now()) {
				progress.JustCompleted = true
			}
		}
		progress.CurrentAmount = g.CurrentAmount
		progress.Completed = g.Completed

		if !changed {
			return nil
		}
		if err := tx.SaveGoalProgress(ctx, g); err != nil {
			return err
		}
		if progress.JustCompleted {
			slog.InfoContext(ctx, "Goal completed", "goal_id", g.ID, "current", g.CurrentAmount.String(), "target", g.TargetAmount.String())
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return GoalProgress{}, err
		}
		return GoalProgress{}, &core.EvaluationError{Kind: "goal", EntityID: goalID, Err: err}
	}
	return progress, nil
}

// UpdateGoalsForTransaction applies one stored transaction to every open goal
// of its user that it matches.
func (s *GoalService) UpdateGoalsForTransaction(ctx context.Context, transactionID uuid.UUID) (GoalUpdate, error) {
	t, err := s.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return GoalUpdate{}, fmt.Errorf("load transaction: %w", err)
	}
	goals, err := s.store.ListOpenGoals(ctx, t.UserID)
	if err != nil {
		return GoalUpdate{}, fmt.Errorf("list goals: %w", err)
	}

	update := GoalUpdate{TransactionID: t.ID}
	for _, g := range goals {
		if !g.Matches(t) {
			continue
		}
		p, err := s.ApplyTransactions(ctx, g.ID, []core.Transaction{t})
		if err != nil {
			slog.WarnContext(ctx, "Goal update failed", "goal_id", g.ID, "transaction_id", t.ID, "error", err)
			update.Errors = append(update.Errors, err)
			continue
		}
		update.Goals = append(update.Goals, p)
	}
	return update, nil
}

// MatchingGoals returns the ids of goals at least one of txs contributes to.
func MatchingGoals(goals []core.Goal, txs []core.Transaction) []uuid.UUID {
	var out []uuid.UUID
	for _, g := range goals {
		for _, t := range txs {
			if g.Matches(t) {
				out = append(out, g.ID)
				break
			}
		}
	}
	return out
}
