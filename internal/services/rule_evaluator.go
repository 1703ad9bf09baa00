package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RuleResult is the outcome of one rule evaluation.
type RuleResult struct {
	RuleID       uuid.UUID
	Name         string
	PeriodKey    string
	Window       core.DateRange
	Spent        decimal.Decimal
	Threshold    decimal.Decimal
	Count        int
	Breached     bool
	AlertCreated bool
	Skipped      bool
}

// RuleSweep collects per-rule results and failures of a user sweep. A failing
// rule never stops the others.
type RuleSweep struct {
	Results []RuleResult
	Errors  []error
}

// Breaches returns the breached results of the sweep.
func (s RuleSweep) Breaches() []RuleResult {
	var out []RuleResult
	for _, r := range s.Results {
		if r.Breached {
			out = append(out, r)
		}
	}
	return out
}

// RuleService owns rule creation and periodic rule evaluation.
type RuleService struct {
	store      ports.Store
	locks      *EntityLocks
	conditions *conditionCompiler
	now        func() time.Time
}

func NewRuleService(store ports.Store, locks *EntityLocks) *RuleService {
	if locks == nil {
		locks = NewEntityLocks()
	}
	return &RuleService{
		store:      store,
		locks:      locks,
		conditions: newConditionCompiler(),
		now:        time.Now,
	}
}

// CreateRule validates r, checks its condition compiles and stores it.
// Active is stored as given.
func (s *RuleService) CreateRule(ctx context.Context, r core.Rule) (core.Rule, error) {
	if err := r.Validate(); err != nil {
		return core.Rule{}, &core.ConfigurationError{Kind: "rule", EntityID: r.ID, Reason: err.Error()}
	}
	if _, err := s.conditions.Compile(r); err != nil {
		return core.Rule{}, err
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.CreatedAt = s.now()

	err := s.store.WithinTx(ctx, func(tx ports.Store) error {
		if err := tx.EnsureUser(ctx, r.UserID); err != nil {
			return err
		}
		return tx.CreateRule(ctx, r)
	})
	if err != nil {
		return core.Rule{}, &core.StorageError{Op: "create rule", Err: err}
	}

	slog.InfoContext(ctx, "Rule created",
		"rule_id", r.ID,
		"user_id", r.UserID,
		"condition", r.Condition,
		"period", r.Period)
	return r, nil
}

// Window returns the period window of r containing at.
func Window(r core.Rule, at time.Time) (PeriodWindow, error) {
	strategy, err := GetPeriodStrategy(r.Period)
	if err != nil {
		return PeriodWindow{}, &core.ConfigurationError{Kind: "rule", EntityID: r.ID, Reason: err.Error()}
	}
	return strategy.Window(at), nil
}

// Measure computes the rule's spend over the window containing at and checks
// its condition. It writes nothing.
func (s *RuleService) Measure(ctx context.Context, ledger LedgerReader, r core.Rule, at time.Time) (RuleResult, error) {
	if err := r.Validate(); err != nil {
		return RuleResult{}, &core.ConfigurationError{Kind: "rule", EntityID: r.ID, Reason: err.Error()}
	}
	cond, err := s.conditions.Compile(r)
	if err != nil {
		return RuleResult{}, err
	}
	window, err := Window(r, at)
	if err != nil {
		return RuleResult{}, err
	}

	q := ports.TransactionQuery{UserID: r.UserID, Type: core.Expense, Range: window.Range()}
	if r.CategoryID != nil {
		q.CategoryIDs = []uuid.UUID{*r.CategoryID}
	}
	spending, err := Aggregate(ctx, ledger, q)
	if err != nil {
		return RuleResult{}, err
	}

	breached, err := cond.Breached(ConditionInput{Spent: spending.Total, Threshold: r.Threshold, Count: spending.Count})
	if err != nil {
		return RuleResult{}, &core.ConfigurationError{Kind: "rule", EntityID: r.ID, Reason: err.Error()}
	}
	return RuleResult{
		RuleID:    r.ID,
		Name:      r.Name,
		PeriodKey: window.Key,
		Window:    window.Range(),
		Spent:     spending.Total,
		Threshold: r.Threshold,
		Count:     spending.Count,
		Breached:  breached,
	}, nil
}

// EvaluateRule evaluates r over the window containing at and raises at most
// one unread alert per rule and period key. Inactive rules are skipped.
func (s *RuleService) EvaluateRule(ctx context.Context, r core.Rule, at time.Time) (RuleResult, error) {
	if !r.Active {
		return RuleResult{RuleID: r.ID, Name: r.Name, Skipped: true}, nil
	}

	unlock, err := s.locks.Lock(ctx, r.ID)
	if err != nil {
		return RuleResult{}, err
	}
	defer unlock()

	var result RuleResult
	err = s.store.WithinTx(ctx, func(tx ports.Store) error {
		res, err := s.Measure(ctx, tx, r, at)
		if err != nil {
			return err
		}
		result = res
		if !res.Breached {
			return nil
		}
		created, err := s.raiseAlert(ctx, tx, r, res)
		result.AlertCreated = created
		return err
	})
	if err != nil {
		var cfgErr *core.ConfigurationError
		if errors.As(err, &cfgErr) {
			return RuleResult{}, err
		}
		return RuleResult{}, &core.EvaluationError{Kind: "rule", EntityID: r.ID, Err: err}
	}
	return result, nil
}

// EvaluateRuleByID loads a rule and evaluates it.
func (s *RuleService) EvaluateRuleByID(ctx context.Context, id uuid.UUID, at time.Time) (RuleResult, error) {
	r, err := s.store.GetRule(ctx, id)
	if err != nil {
		return RuleResult{}, err
	}
	return s.EvaluateRule(ctx, r, at)
}

// EvaluateRulesForUser evaluates every active rule of the user over the
// window containing at. Only listing the rules can fail the sweep.
func (s *RuleService) EvaluateRulesForUser(ctx context.Context, userID uuid.UUID, at time.Time) (RuleSweep, error) {
	rules, err := s.store.ListActiveRules(ctx, userID)
	if err != nil {
		return RuleSweep{}, fmt.Errorf("list rules: %w", err)
	}

	var sweep RuleSweep
	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return sweep, err
		}
		res, err := s.EvaluateRule(ctx, r, at)
		if err != nil {
			slog.WarnContext(ctx, "Rule evaluation failed", "rule_id", r.ID, "user_id", userID, "error", err)
			sweep.Errors = append(sweep.Errors, err)
			continue
		}
		if res.Skipped {
			continue
		}
		sweep.Results = append(sweep.Results, res)
	}

	slog.DebugContext(ctx, "Rules evaluated",
		"user_id", userID,
		"rules", len(rules),
		"breached", len(sweep.Breaches()),
		"failed", len(sweep.Errors))
	return sweep, nil
}

func (s *RuleService) raiseAlert(ctx context.Context, tx ports.Store, r core.Rule, res RuleResult) (bool, error) {
	has, err := tx.HasUnreadAlert(ctx, core.SourceRule, r.ID, res.PeriodKey)
	if err != nil {
		return false, err
	}
	if has {
		slog.DebugContext(ctx, "Rule alert suppressed, unread alert exists", "rule_id", r.ID, "period_key", res.PeriodKey)
		return false, nil
	}

	alert := core.Alert{
		ID:         uuid.New(),
		UserID:     r.UserID,
		SourceType: core.SourceRule,
		SourceID:   r.ID,
		PeriodKey:  res.PeriodKey,
		Message: fmt.Sprintf("Rule %q triggered for %s: spent %s against threshold %s",
			r.Name, res.PeriodKey, res.Spent.String(), res.Threshold.String()),
		CreatedAt: s.now(),
	}
	if err := tx.CreateAlert(ctx, alert); err != nil {
		return false, err
	}

	slog.InfoContext(ctx, "Rule alert created",
		"rule_id", r.ID,
		"period_key", res.PeriodKey,
		"spent", res.Spent.String())
	return true, nil
}
