package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrDuplicateCategory = errors.New("category name already exists")
	ErrDuplicateAlert    = errors.New("unread alert already exists for period")
)

type contributionKey struct {
	goal uuid.UUID
	tx   uuid.UUID
}

type state struct {
	users         []uuid.UUID
	categories    []core.Category
	transactions  []core.Transaction
	budgets       []core.Budget
	rules         []core.Rule
	alerts        []core.Alert
	goals         []core.Goal
	contributions map[contributionKey]decimal.Decimal
}

func (st state) clone() state {
	out := state{
		users:         slices.Clone(st.users),
		categories:    slices.Clone(st.categories),
		transactions:  slices.Clone(st.transactions),
		budgets:       make([]core.Budget, len(st.budgets)),
		rules:         slices.Clone(st.rules),
		alerts:        slices.Clone(st.alerts),
		goals:         slices.Clone(st.goals),
		contributions: maps.Clone(st.contributions),
	}
	for i, b := range st.budgets {
		out.budgets[i] = cloneBudget(b)
	}
	return out
}

// Store is an in-process ports.Store for tests and local runs. Entries keep
// insertion order, which stands in for creation order.
//
// Writes made outside WithinTx wait for any running transaction, so a
// rollback only ever discards the transaction's own writes.
type Store struct {
	txMu sync.Mutex
	*data
}

// data holds the state and the unguarded operations shared by Store and
// the transaction view.
type data struct {
	mu sync.RWMutex
	st state
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return &Store{data: &data{st: state{contributions: map[contributionKey]decimal.Decimal{}}}}
}

// WithinTx serialises transactions and restores a snapshot when fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ports.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.st.clone()
	s.mu.RUnlock()

	if err := fn(txStore{s.data}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// txStore is the view handed to WithinTx callbacks; nested calls join it.
// It writes without txMu, which its WithinTx caller already holds.
type txStore struct {
	*data
}

func (t txStore) WithinTx(_ context.Context, fn func(ports.Store) error) error {
	return fn(t)
}

func (s *Store) exclusive(fn func() error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn()
}

func (s *Store) EnsureUser(ctx context.Context, id uuid.UUID) error {
	return s.exclusive(func() error { return s.data.EnsureUser(ctx, id) })
}

func (s *Store) CreateCategory(ctx context.Context, c core.Category) error {
	return s.exclusive(func() error { return s.data.CreateCategory(ctx, c) })
}

func (s *Store) CreateTransaction(ctx context.Context, t core.Transaction) error {
	return s.exclusive(func() error { return s.data.CreateTransaction(ctx, t) })
}

func (s *Store) CreateBudget(ctx context.Context, b core.Budget) error {
	return s.exclusive(func() error { return s.data.CreateBudget(ctx, b) })
}

func (s *Store) SaveBudgetEvaluation(ctx context.Context, b core.Budget) error {
	return s.exclusive(func() error { return s.data.SaveBudgetEvaluation(ctx, b) })
}

func (s *Store) UpdateBudgetStatus(ctx context.Context, id uuid.UUID, status core.BudgetStatus) error {
	return s.exclusive(func() error { return s.data.UpdateBudgetStatus(ctx, id, status) })
}

func (s *Store) CreateRule(ctx context.Context, r core.Rule) error {
	return s.exclusive(func() error { return s.data.CreateRule(ctx, r) })
}

func (s *Store) CreateAlert(ctx context.Context, a core.Alert) error {
	return s.exclusive(func() error { return s.data.CreateAlert(ctx, a) })
}

func (s *Store) MarkAlertRead(ctx context.Context, id uuid.UUID) error {
	return s.exclusive(func() error { return s.data.MarkAlertRead(ctx, id) })
}

func (s *Store) CreateGoal(ctx context.Context, g core.Goal) error {
	return s.exclusive(func() error { return s.data.CreateGoal(ctx, g) })
}

func (s *Store) RecordContribution(ctx context.Context, goalID, transactionID uuid.UUID, amount decimal.Decimal) (bool, error) {
	var recorded bool
	err := s.exclusive(func() error {
		var err error
		recorded, err = s.data.RecordContribution(ctx, goalID, transactionID, amount)
		return err
	})
	return recorded, err
}

func (s *Store) SaveGoalProgress(ctx context.Context, g core.Goal) error {
	return s.exclusive(func() error { return s.data.SaveGoalProgress(ctx, g) })
}

func (s *data) EnsureUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.Contains(s.st.users, id) {
		s.st.users = append(s.st.users, id)
	}
	return nil
}

func (s *data) ListUserIDs(_ context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.st.users), nil
}

func (s *data) ListCategories(_ context.Context, userID uuid.UUID) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Category
	for _, c := range s.st.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *data) CreateCategory(_ context.Context, c core.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.st.categories {
		if existing.UserID == c.UserID && strings.EqualFold(existing.Name, c.Name) {
			return fmt.Errorf("create category %q: %w", c.Name, ErrDuplicateCategory)
		}
	}
	s.st.categories = append(s.st.categories, c)
	return nil
}

func (s *data) TransactionExists(_ context.Context, userID uuid.UUID, date core.Date, amount decimal.Decimal, dir core.Direction, description string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.st.transactions {
		if t.UserID == userID && t.Date.Equal(date.Time) && t.Amount.Equal(amount) && t.Type == dir && t.Description == description {
			return true, nil
		}
	}
	return false, nil
}

func (s *data) CreateTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.transactions = append(s.st.transactions, t)
	return nil
}

func (s *data) GetTransaction(_ context.Context, id uuid.UUID) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.st.transactions {
		if t.ID == id {
			return t, nil
		}
	}
	return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *data) LastCategoryForDescription(_ context.Context, userID uuid.UUID, description string, dir core.Direction) (*uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *core.Transaction
	for i := range s.st.transactions {
		t := &s.st.transactions[i]
		if t.UserID != userID || t.Type != dir || t.CategoryID == nil || !strings.EqualFold(t.Description, description) {
			continue
		}
		// later insertion wins among equal dates
		if best == nil || !t.Date.Before(best.Date.Time) {
			best = t
		}
	}
	if best == nil {
		return nil, nil
	}
	id := *best.CategoryID
	return &id, nil
}

func (s *data) ListTransactions(_ context.Context, q ports.TransactionQuery) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Transaction
	for _, t := range s.st.transactions {
		if t.UserID != q.UserID || !q.Range.Contains(t.Date) {
			continue
		}
		if q.Type != "" && t.Type != q.Type {
			continue
		}
		if len(q.CategoryIDs) > 0 && (t.CategoryID == nil || !slices.Contains(q.CategoryIDs, *t.CategoryID)) {
			continue
		}
		out = append(out, t)
	}
	slices.SortStableFunc(out, func(a, b core.Transaction) int { return a.Date.Compare(b.Date.Time) })
	return out, nil
}

func (s *data) CreateBudget(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b = cloneBudget(b)
	for i := range b.Categories {
		b.Categories[i].BudgetID = b.ID
	}
	s.st.budgets = append(s.st.budgets, b)
	return nil
}

func (s *data) GetBudget(_ context.Context, id uuid.UUID) (core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.budgetIndex(id); i >= 0 {
		return cloneBudget(s.st.budgets[i]), nil
	}
	return core.Budget{}, fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
}

func (s *data) ListBudgets(_ context.Context, userID uuid.UUID, includeArchived bool) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Budget
	for _, b := range s.st.budgets {
		if b.UserID != userID || (!includeArchived && b.Status == core.BudgetArchived) {
			continue
		}
		out = append(out, cloneBudget(b))
	}
	return out, nil
}

func (s *data) ListBudgetsCovering(_ context.Context, userID uuid.UUID, date core.Date, categoryID uuid.UUID) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Budget
	for _, b := range s.st.budgets {
		if b.UserID != userID || b.Status == core.BudgetArchived || !b.Range().Contains(date) {
			continue
		}
		if slices.ContainsFunc(b.Categories, func(bc core.BudgetCategory) bool { return bc.CategoryID == categoryID }) {
			out = append(out, cloneBudget(b))
		}
	}
	return out, nil
}

func (s *data) SaveBudgetEvaluation(_ context.Context, b core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.budgetIndex(b.ID)
	if i < 0 {
		return fmt.Errorf("budget %s: %w", b.ID, core.ErrNotFound)
	}
	stored := &s.st.budgets[i]
	stored.Status = b.Status
	stored.UpdatedAt = b.UpdatedAt
	for _, bc := range b.Categories {
		for j := range stored.Categories {
			if stored.Categories[j].ID == bc.ID {
				stored.Categories[j].SpentAmount = bc.SpentAmount
			}
		}
	}
	return nil
}

func (s *data) UpdateBudgetStatus(_ context.Context, id uuid.UUID, status core.BudgetStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.budgetIndex(id)
	if i < 0 {
		return fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
	}
	s.st.budgets[i].Status = status
	s.st.budgets[i].UpdatedAt = time.Now()
	return nil
}

func (s *data) CreateRule(_ context.Context, r core.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.rules = append(s.st.rules, r)
	return nil
}

func (s *data) GetRule(_ context.Context, id uuid.UUID) (core.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.st.rules {
		if r.ID == id {
			return r, nil
		}
	}
	return core.Rule{}, fmt.Errorf("rule %s: %w", id, core.ErrNotFound)
}

func (s *data) ListActiveRules(_ context.Context, userID uuid.UUID) ([]core.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Rule
	for _, r := range s.st.rules {
		if r.UserID == userID && r.Active {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *data) HasUnreadAlert(_ context.Context, source core.AlertSource, sourceID uuid.UUID, periodKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasUnread(source, sourceID, periodKey), nil
}

func (s *data) CreateAlert(_ context.Context, a core.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !a.Read && s.hasUnread(a.SourceType, a.SourceID, a.PeriodKey) {
		return fmt.Errorf("create alert for %s %s: %w", a.SourceType, a.SourceID, ErrDuplicateAlert)
	}
	s.st.alerts = append(s.st.alerts, a)
	return nil
}

func (s *data) ListAlerts(_ context.Context, userID uuid.UUID, unreadOnly bool) ([]core.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Alert
	for _, a := range s.st.alerts {
		if a.UserID == userID && (!unreadOnly || !a.Read) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *data) MarkAlertRead(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.alerts {
		if s.st.alerts[i].ID == id {
			s.st.alerts[i].Read = true
			return nil
		}
	}
	return fmt.Errorf("alert %s: %w", id, core.ErrNotFound)
}

func (s *data) CreateGoal(_ context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.goals = append(s.st.goals, g)
	return nil
}

func (s *data) GetGoal(_ context.Context, id uuid.UUID) (core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.goalIndex(id); i >= 0 {
		return s.st.goals[i], nil
	}
	return core.Goal{}, fmt.Errorf("goal %s: %w", id, core.ErrNotFound)
}

func (s *data) ListOpenGoals(_ context.Context, userID uuid.UUID) ([]core.Goal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Goal
	for _, g := range s.st.goals {
		if g.UserID == userID && !g.Completed {
			out = append(out, g)
		}
	}
	return out, nil
}

func (s *data) RecordContribution(_ context.Context, goalID, transactionID uuid.UUID, amount decimal.Decimal) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := contributionKey{goal: goalID, tx: transactionID}
	if _, seen := s.st.contributions[key]; seen {
		return false, nil
	}
	s.st.contributions[key] = amount
	return true, nil
}

func (s *data) SaveGoalProgress(_ context.Context, g core.Goal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.goalIndex(g.ID)
	if i < 0 {
		return fmt.Errorf("goal %s: %w", g.ID, core.ErrNotFound)
	}
	stored := &s.st.goals[i]
	stored.CurrentAmount = g.CurrentAmount
	if g.Completed && !stored.Completed {
		stored.Completed = true
		stored.CompletedAt = g.CompletedAt
	}
	return nil
}

func (s *data) budgetIndex(id uuid.UUID) int {
	return slices.IndexFunc(s.st.budgets, func(b core.Budget) bool { return b.ID == id })
}

func (s *data) goalIndex(id uuid.UUID) int {
	return slices.IndexFunc(s.st.goals, func(g core.Goal) bool { return g.ID == id })
}

func (s *data) hasUnread(source core.AlertSource, sourceID uuid.UUID, periodKey string) bool {
	return slices.ContainsFunc(s.st.alerts, func(a core.Alert) bool {
		return !a.Read && a.SourceType == source && a.SourceID == sourceID && a.PeriodKey == periodKey
	})
}

func cloneBudget(b core.Budget) core.Budget {
	b.Categories = slices.Clone(b.Categories)
	return b
}
