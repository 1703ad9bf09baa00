package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ingest"
	"fintrack/internal/storage/memory"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

type capturePublisher struct {
	mu    sync.Mutex
	facts []core.SpendingFacts
	err   error
}

func (p *capturePublisher) PublishFacts(_ context.Context, f core.SpendingFacts) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.facts = append(p.facts, f)
	return nil
}

type pipeline struct {
	store   *memory.Store
	budgets *BudgetService
	rules   *RuleService
	goals   *GoalService
	ingest  *IngestionService
	pub     *capturePublisher
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	store := memory.New()
	locks := NewEntityLocks()

	budgets := NewBudgetService(store, locks)
	budgets.now = fixedNow
	rules := NewRuleService(store, locks)
	rules.now = fixedNow
	goals := NewGoalService(store, locks, "")
	goals.now = fixedNow
	pub := &capturePublisher{}

	svc := NewIngestionService(IngestionDeps{
		Store:       store,
		Categorizer: ingest.NewCategorizer(store, ingest.CategorizerConfig{}),
		Budgets:     budgets,
		Rules:       rules,
		Goals:       goals,
		Publisher:   pub,
	}, IngestionConfig{MaxRows: 100})
	svc.now = fixedNow
	svc.writer.now = fixedNow

	return &pipeline{store: store, budgets: budgets, rules: rules, goals: goals, ingest: svc, pub: pub}
}

func seedCategory(t *testing.T, p *pipeline, user uuid.UUID, name string, dir core.Direction) core.Category {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, p.store.EnsureUser(ctx, user))
	c := core.Category{ID: uuid.New(), UserID: user, Name: name, Type: dir, CreatedAt: testNow}
	require.NoError(t, p.store.CreateCategory(ctx, c))
	return c
}

func seedExpense(t *testing.T, p *pipeline, user, category uuid.UUID, date core.Date, amount, desc string) core.Transaction {
	t.Helper()
	tx := core.Transaction{
		ID:          uuid.New(),
		UserID:      user,
		CategoryID:  &category,
		Date:        date,
		Amount:      decimal.RequireFromString(amount),
		Currency:    "EUR",
		Description: desc,
		Type:        core.Expense,
		CreatedAt:   testNow,
	}
	require.NoError(t, p.store.CreateTransaction(context.Background(), tx))
	return tx
}

func expenseRow(n int, date, amount, desc, category string) ingest.RawRow {
	return ingest.RawRow{Row: n, Date: date, Amount: amount, Type: "expense", Description: desc, Category: category}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
