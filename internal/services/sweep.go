package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// SweepReport counts the outcome of one sweep over all users.
type SweepReport struct {
	Users            int
	BudgetsEvaluated int
	RulesEvaluated   int
	AlertsCreated    int
	Failures         int
}

// Sweeper re-evaluates every user's budgets and rules, several users at a
// time.
type Sweeper struct {
	store       ports.Store
	budgets     *BudgetService
	rules       *RuleService
	publisher   ports.FactPublisher
	concurrency int
}

func NewSweeper(store ports.Store, budgets *BudgetService, rules *RuleService, publisher ports.FactPublisher, concurrency int) *Sweeper {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Sweeper{store: store, budgets: budgets, rules: rules, publisher: publisher, concurrency: concurrency}
}

// SweepAll evaluates all users. One user's failures never stop the others;
// only listing users or a cancelled ctx fails the sweep.
func (s *Sweeper) SweepAll(ctx context.Context, at time.Time) (SweepReport, error) {
	users, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return SweepReport{}, fmt.Errorf("list users: %w", err)
	}

	var (
		mu     sync.Mutex
		report = SweepReport{Users: len(users)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, userID := range users {
		g.Go(func() error {
			r := s.SweepUser(gctx, userID, at)
			mu.Lock()
			report.BudgetsEvaluated += r.BudgetsEvaluated
			report.RulesEvaluated += r.RulesEvaluated
			report.AlertsCreated += r.AlertsCreated
			report.Failures += r.Failures
			mu.Unlock()
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	slog.InfoContext(ctx, "Evaluation sweep completed",
		"users", report.Users,
		"budgets", report.BudgetsEvaluated,
		"rules", report.RulesEvaluated,
		"alerts", report.AlertsCreated,
		"failures", report.Failures)
	return report, nil
}

// SweepUser evaluates the user's non-archived budgets and active rules.
func (s *Sweeper) SweepUser(ctx context.Context, userID uuid.UUID, at time.Time) SweepReport {
	var report SweepReport

	budgets, err := s.store.ListBudgets(ctx, userID, false)
	if err != nil {
		slog.WarnContext(ctx, "Budget listing failed", "user_id", userID, "error", err)
		report.Failures++
	}
	for _, b := range budgets {
		if b.Status == core.BudgetArchived {
			continue
		}
		res, err := s.budgets.EvaluateBudget(ctx, b.ID)
		if err != nil {
			slog.WarnContext(ctx, "Budget evaluation failed", "budget_id", b.ID, "error", err)
			report.Failures++
			continue
		}
		report.BudgetsEvaluated++
		if res.AlertCreated {
			report.AlertsCreated++
		}
	}

	sweep, err := s.rules.EvaluateRulesForUser(ctx, userID, at)
	if err != nil {
		slog.WarnContext(ctx, "Rule sweep failed", "user_id", userID, "error", err)
		report.Failures++
	}
	report.RulesEvaluated += len(sweep.Results)
	report.Failures += len(sweep.Errors)
	for _, res := range sweep.Results {
		if res.AlertCreated {
			report.AlertsCreated++
		}
	}

	if err := PublishFacts(ctx, s.store, s.publisher, userID, at, sweep.Results); err != nil {
		slog.WarnContext(ctx, "Spending facts not published", "user_id", userID, "error", err)
		report.Failures++
	}
	return report
}
