package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/google/uuid"
)

// BuildFacts aggregates the user's expenses over the calendar month
// containing at, together with budget states and the given rule breaches.
func BuildFacts(ctx context.Context, store ports.Store, userID uuid.UUID, at time.Time, breaches []RuleResult) (core.SpendingFacts, error) {
	window := MonthlyWindow{}.Window(at)
	r := window.Range()

	spending, err := Aggregate(ctx, store, ports.TransactionQuery{UserID: userID, Type: core.Expense, Range: r})
	if err != nil {
		return core.SpendingFacts{}, err
	}
	names, err := categoryNames(ctx, store, userID)
	if err != nil {
		return core.SpendingFacts{}, fmt.Errorf("list categories: %w", err)
	}
	budgets, err := store.ListBudgets(ctx, userID, false)
	if err != nil {
		return core.SpendingFacts{}, fmt.Errorf("list budgets: %w", err)
	}

	facts := core.SpendingFacts{
		UserID:      userID,
		PeriodKey:   window.Key,
		From:        r.From.String(),
		To:          r.To.String(),
		Total:       spending.Total,
		GeneratedAt: time.Now().UTC(),
	}
	for id, amount := range spending.ByCategory {
		name := "Uncategorized"
		if id != uuid.Nil {
			name = names.name(id)
		}
		facts.ByCategory = append(facts.ByCategory, core.CategoryAmount{CategoryID: id, Name: name, Amount: amount})
	}
	// Largest first, then by name for a stable payload.
	sort.Slice(facts.ByCategory, func(i, j int) bool {
		a, b := facts.ByCategory[i], facts.ByCategory[j]
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c > 0
		}
		return a.Name < b.Name
	})

	for _, b := range budgets {
		bf := core.BudgetFact{BudgetID: b.ID, Name: b.Name, Status: b.Status}
		for _, bc := range b.Categories {
			if bc.Exceeded() {
				bf.ExceededCategories = append(bf.ExceededCategories, bc.CategoryID)
			}
		}
		facts.Budgets = append(facts.Budgets, bf)
	}
	for _, res := range breaches {
		if !res.Breached {
			continue
		}
		facts.RuleBreaches = append(facts.RuleBreaches, core.RuleBreach{
			RuleID:    res.RuleID,
			Name:      res.Name,
			PeriodKey: res.PeriodKey,
			Spent:     res.Spent,
			Threshold: res.Threshold,
		})
	}
	return facts, nil
}

// PublishFacts builds and publishes the user's facts. A nil publisher is a
// no-op.
func PublishFacts(ctx context.Context, store ports.Store, pub ports.FactPublisher, userID uuid.UUID, at time.Time, breaches []RuleResult) error {
	if pub == nil {
		return nil
	}
	facts, err := BuildFacts(ctx, store, userID, at, breaches)
	if err != nil {
		return fmt.Errorf("build facts: %w", err)
	}
	if err := pub.PublishFacts(ctx, facts); err != nil {
		return fmt.Errorf("publish facts: %w", err)
	}
	slog.DebugContext(ctx, "Spending facts published", "user_id", userID, "period_key", facts.PeriodKey)
	return nil
}
