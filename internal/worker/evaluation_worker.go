package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/ports"
	"fintrack/internal/services"
)

// EvaluationWorker handles queued evaluation requests and runs the periodic
// sweep that re-evaluates every user.
type EvaluationWorker struct {
	store     ports.Store
	budgets   *services.BudgetService
	rules     *services.RuleService
	goals     *services.GoalService
	sweeper   *services.Sweeper
	publisher ports.FactPublisher
	now       func() time.Time
}

// Deps wires the services the worker dispatches to. Publisher is optional.
type Deps struct {
	Store     ports.Store
	Budgets   *services.BudgetService
	Rules     *services.RuleService
	Goals     *services.GoalService
	Sweeper   *services.Sweeper
	Publisher ports.FactPublisher
}

func NewEvaluationWorker(d Deps) *EvaluationWorker {
	return &EvaluationWorker{
		store:     d.Store,
		budgets:   d.Budgets,
		rules:     d.Rules,
		goals:     d.Goals,
		sweeper:   d.Sweeper,
		publisher: d.Publisher,
		now:       time.Now,
	}
}

// HandleRequest processes one evaluation request from AMQP. Requests that can
// never succeed (unknown or archived entities, bad definitions) are logged and
// acknowledged; only transient failures are returned for redelivery.
func (w *EvaluationWorker) HandleRequest(ctx context.Context, req *amqp.EvaluationRequest) error {
	at := req.At
	if at.IsZero() {
		at = w.now()
	}

	slog.InfoContext(ctx, "Processing evaluation request",
		"kind", req.Kind,
		"user_id", req.UserID,
		"entity_id", req.EntityID)

	var err error
	switch req.Kind {
	case amqp.EvaluateBudget:
		var res services.BudgetEvaluation
		res, err = w.budgets.EvaluateBudget(ctx, req.EntityID)
		if err == nil {
			slog.InfoContext(ctx, "Budget evaluated", "budget_id", req.EntityID, "status", res.Status, "alert_created", res.AlertCreated)
		}
	case amqp.EvaluateRules:
		var sweep services.RuleSweep
		sweep, err = w.rules.EvaluateRulesForUser(ctx, req.UserID, at)
		if err == nil {
			if pubErr := services.PublishFacts(ctx, w.store, w.publisher, req.UserID, at, sweep.Results); pubErr != nil {
				slog.WarnContext(ctx, "Spending facts not published", "user_id", req.UserID, "error", pubErr)
			}
		}
	case amqp.EvaluateTransaction:
		var upd services.GoalUpdate
		upd, err = w.goals.UpdateGoalsForTransaction(ctx, req.EntityID)
		if err == nil {
			slog.InfoContext(ctx, "Goals updated", "transaction_id", req.EntityID, "goals", len(upd.Goals), "failed", len(upd.Errors))
		}
	case amqp.EvaluateUser:
		report := w.sweeper.SweepUser(ctx, req.UserID, at)
		slog.InfoContext(ctx, "User swept",
			"user_id", req.UserID,
			"budgets", report.BudgetsEvaluated,
			"rules", report.RulesEvaluated,
			"alerts", report.AlertsCreated,
			"failures", report.Failures)
	default:
		err = fmt.Errorf("unknown evaluation kind %q", req.Kind)
	}

	if err == nil || permanent(err) {
		if err != nil {
			slog.WarnContext(ctx, "Discarding evaluation request", "kind", req.Kind, "entity_id", req.EntityID, "error", err)
		}
		return nil
	}
	return fmt.Errorf("evaluate %s: %w", req.Kind, err)
}

func permanent(err error) bool {
	var cfgErr *core.ConfigurationError
	return errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrBudgetArchived) ||
		errors.As(err, &cfgErr)
}

// StartupSweep evaluates everything once, to catch up on requests missed
// while the worker was down.
func (w *EvaluationWorker) StartupSweep(ctx context.Context) error {
	slog.InfoContext(ctx, "Performing startup evaluation sweep")
	if _, err := w.sweeper.SweepAll(ctx, w.now()); err != nil {
		return fmt.Errorf("startup sweep: %w", err)
	}
	return nil
}

// RunPeriodic sweeps all users every interval until ctx is done.
func (w *EvaluationWorker) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.sweeper.SweepAll(ctx, w.now()); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Periodic sweep failed", "error", err)
			}
		}
	}
}
