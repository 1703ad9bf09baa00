package services

import (
	"context"
	"errors"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/ingest"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func octoberBudget(t *testing.T, p *pipeline, user, category uuid.UUID, limit string) core.Budget {
	t.Helper()
	b, err := p.budgets.CreateBudget(context.Background(), core.Budget{
		UserID:     user,
		Name:       "October groceries",
		StartDate:  core.NewDate(2026, 10, 1),
		EndDate:    core.NewDate(2026, 10, 31),
		Categories: []core.BudgetCategory{{CategoryID: category, LimitAmount: dec(limit)}},
	})
	require.NoError(t, err)
	return b
}

func TestEvaluateBudgetStrictlyGreater(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	user := uuid.New()
	groceries := seedCategory(t, p, user, "Groceries", core.Expense)
	b := octoberBudget(t, p, user, groceries.ID, "500.00")

	seedExpense(t, p, user, groceries.ID, core.NewDate(2026, 10, 3), "300.00", "Market")
	seedExpense(t, p, user, groceries.ID, core.NewDate(2026, 10, 9), "200.00", "Market")

	res, err := p.budgets.EvaluateBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BudgetActive, res.Status, "spending exactly at the limit is within budget")
	assert.Empty(t, res.ExceededCategories)
	assert.False(t, res.AlertCreated)

	seedExpense(t, p, user, groceries.ID, core.NewDate(2026, 10, 10), "0.01", "Bag")

	res, err = p.budgets.EvaluateBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BudgetExceeded, res.Status)
	assert.Equal(t, []uuid.UUID{groceries.ID}, res.ExceededCategories)
	assert.True(t, res.AlertCreated)

	exceeded, err := p.budgets.ExceededCategories(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{groceries.ID}, exceeded)
}

func TestEvaluateBudgetIsIdempotent(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	user := uuid.New()
	groceries := seedCategory(t, p, user, "Groceries", core.Expense)
	other := seedCategory(t, p, user, "Other", core.Expense)
	b := octoberBudget(t, p, user, groceries.ID, "100")

	seedExpense(t, p, user, groceries.ID, core.NewDate(2026, 10, 1), "80.10", "Market")
	seedExpense(t, p, user, groceries.ID, core.NewDate(2026, 10, 31), "20.20", "Market")
	seedExpense(t, p, user, groceries.ID, core.NewDate(2026, 11, 1), "999", "Outside range")
	seedExpense(t, p, user, other.ID, core.NewDate(2026, 10, 5), "999", "Other category")

	var first BudgetEvaluation
	for i := 0; i < 3; i++ {
		res, err := p.budgets.EvaluateBudget(ctx, b.ID)
		require.NoError(t, err)
		if i == 0 {
			first = res
			assert.True(t, res.AlertCreated)
			continue
		}
		assert.Equal(t, first.Status, res.Status)
		assert.Equal(t, first.ExceededCategories, res.ExceededCategories)
		assert.False(t, res.AlertCreated, "unread alert suppresses a second one")

		stored, err := p.store.GetBudget(ctx, b.ID)
		require.NoError(t, err)
		ledger, err := SumByCategory(ctx, p.store, user, groceries.ID, b.Range())
		require.NoError(t, err)
		assert.True(t, stored.Categories[0].SpentAmount.Equal(ledger))
		assert.True(t, ledger.Equal(dec("100.30")))
	}

	alerts, err := p.store.ListAlerts(ctx, user, false)
	require.NoError(t, err)
	assert.Len(t, alerts, 1)
}

func TestEvaluateBudgetIgnoresIncome(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	user := uuid.New()
	groceries := seedCategory(t, p, user, "Groceries", core.Expense)
	b := octoberBudget(t, p, user, groceries.ID, "10")

	refund := core.Transaction{
		ID: uuid.New(), UserID: user, CategoryID: &groceries.ID, Date: core.NewDate(2026, 10, 2),
		Amount: dec("50"), Currency: "EUR", Description: "Refund", Type: core.Income,
	}
	require.NoError(t, p.store.CreateTransaction(ctx, refund))

	res, err := p.budgets.EvaluateBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BudgetActive, res.Status)
}

func TestEvaluateBudgetArchivedAndMissing(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	user := uuid.New()
	groceries := seedCategory(t, p, user, "Groceries", core.Expense)
	b := octoberBudget(t, p, user, groceries.ID, "10")

	require.NoError(t, p.budgets.ArchiveBudget(ctx, b.ID))
	require.NoError(t, p.budgets.ArchiveBudget(ctx, b.ID))

	_, err := p.budgets.EvaluateBudget(ctx, b.ID)
	assert.ErrorIs(t, err, core.ErrBudgetArchived)

	_, err = p.budgets.EvaluateBudget(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateBudgetRejectsBadDefinitions(t *testing.T) {
	p := newPipeline(t)
	cat := uuid.New()

	tests := []struct {
		name   string
		budget core.Budget
	}{
		{
			name:   "end before start",
			budget: core.Budget{Name: "x", StartDate: core.NewDate(2026, 10, 2), EndDate: core.NewDate(2026, 10, 1)},
		},
		{
			name: "zero limit",
			budget: core.Budget{Name: "x", StartDate: core.NewDate(2026, 10, 1), EndDate: core.NewDate(2026, 10, 31),
				Categories: []core.BudgetCategory{{CategoryID: cat, LimitAmount: dec("0")}}},
		},
		{
			name: "category twice",
			budget: core.Budget{Name: "x", StartDate: core.NewDate(2026, 10, 1), EndDate: core.NewDate(2026, 10, 31),
				Categories: []core.BudgetCategory{{CategoryID: cat, LimitAmount: dec("1")}, {CategoryID: cat, LimitAmount: dec("2")}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.budget.UserID = uuid.New()
			_, err := p.budgets.CreateBudget(context.Background(), tt.budget)
			var cfgErr *core.ConfigurationError
			assert.True(t, errors.As(err, &cfgErr), "got %v", err)
		})
	}
}

func TestRuleGroceriesMonthlyThreshold(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	user := uuid.New()
	groceries := seedCategory(t, p, user, "Groceries", core.Expense)

	rule, err := p.rules.CreateRule(ctx, core.Rule{
		UserID:     user,
		Name:       "Groceries cap",
		CategoryID: &groceries.ID,
		Condition:  core.ThresholdExceeded,
		Threshold:  dec("500"),
		Period:     core.Monthly,
		Active:     true,
	})
	require.NoError(t, err)

	res, err := p.ingest.Ingest(ctx, user, []ingest.RawRow{
		expenseRow(1, "2026-10-02", "200", "Market", "Groceries"),
		expenseRow(2, "2026-10-05", "250", "Market", "Groceries"),
		expenseRow(3, "2026-10-09", "100", "Market", "Groceries"),
	}, ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, res.SuccessfulTransactions)

	alerts, err := p.store.ListAlerts(ctx, user, true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, core.SourceRule, alerts[0].SourceType)
	assert.Equal(t, rule.ID, alerts[0].SourceID)
	assert.Equal(t, "2026-10", alerts[0].PeriodKey)

	sweep, err := p.rules.EvaluateRulesForUser(ctx, user, testNow)
	require.NoError(t, err)
	require.Len(t, sweep.Results, 1)
	assert.True(t, sweep.Results[0].Breached)
	assert.True(t, sweep.Results[0].Spent.Equal(dec("550")))
	assert.False(t, sweep.Results[0].AlertCreated)

	alerts, err = p.store.ListAlerts(ctx, user, false)
	require.NoError(t, err)
	assert.Len(t, alerts, 1, "same period never gets a second unread alert")

	require.NoError(t, p.store.MarkAlertRead(ctx, alerts[0].ID))
	r, err := p.rules.EvaluateRule(ctx, rule, testNow)
	require.NoError(t, err)
	assert.True(t, r.AlertCreated, "a read alert no longer suppresses")
}

func TestRuleConditions(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	user := uuid.New()
	food := seedCategory(t, p, user, "Food", core.Expense)
	seedExpense(t, p, user, food.ID, core.NewDate(2026, 10, 13), "30", "Lunch")
	seedExpense(t, p, user, food.ID, core.NewDate(2026, 10, 14), "70", "Dinner")
	seedExpense(t, p, user, food.ID, core.NewDate(2026, 10, 1), "500", "Last week")

	tests := []struct {
		name       string
		condition  core.ConditionType
		expression string
		threshold  string
		period     core.Period
		want       bool
	}{
		{name: "exceeded is strict", condition: core.ThresholdExceeded, threshold: "100", period: core.Weekly, want: false},
		{name: "reached includes equality", condition: core.ThresholdReached, threshold: "100", period: core.Weekly, want: true},
		{name: "daily window", condition: core.ThresholdReached, threshold: "1", period: core.Daily, want: false},
		{name: "monthly window", condition: core.ThresholdExceeded, threshold: "599", period: core.Monthly, want: true},
		{name: "expression on count", condition: core.Expression, expression: "count >= 2 && spent >= threshold", threshold: "100", period: core.Weekly, want: true},
		{name: "expression false", condition: core.Expression, expression: "count > 5", period: core.Weekly, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threshold := dec("0")
			if tt.threshold != "" {
				threshold = dec(tt.threshold)
			}
			r, err := p.rules.CreateRule(ctx, core.Rule{
				UserID: user, Name: tt.name, Condition: tt.condition, Expression: tt.expression,
				Threshold: threshold, Period: tt.period,
			})
			require.NoError(t, err)

			res, err := p.rules.Measure(ctx, p.store, r, testNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Breached, "spent %s", res.Spent)
		})
	}
}

func TestRuleConfigurationErrors(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	user := uuid.New()

	_, err := p.rules.CreateRule(ctx, core.Rule{UserID: user, Name: "bad", Condition: core.Expression, Expression: "spent >", Period: core.Monthly})
	var cfgErr *core.ConfigurationError
	require.True(t, errors.As(err, &cfgErr), "got %v", err)

	_, err = p.rules.CreateRule(ctx, core.Rule{UserID: user, Name: "bad period", Condition: core.ThresholdExceeded, Threshold: dec("1"), Period: "HOURLY"})
	require.True(t, errors.As(err, &cfgErr), "got %v", err)

	// An expression that does not yield a bool fails only its own rule.
	require.NoError(t, p.store.CreateRule(ctx, core.Rule{
		ID: uuid.New(), UserID: user, Name: "numeric", Condition: core.Expression, Expression: "spent + 1",
		Period: core.Monthly, Active: true,
	}))
	good, err := p.rules.CreateRule(ctx, core.Rule{
		UserID: user, Name: "good", Condition: core.ThresholdReached, Threshold: dec("0.01"), Period: core.Monthly, Active: true,
	})
	require.NoError(t, err)
	require.NoError(t, p.store.CreateRule(ctx, core.Rule{ID: uuid.New(), UserID: user, Name: "off", Condition: core.ThresholdReached, Threshold: dec("1"), Period: core.Monthly}))

	sweep, err := p.rules.EvaluateRulesForUser(ctx, user, testNow)
	require.NoError(t, err)
	require.Len(t, sweep.Errors, 1)
	assert.True(t, errors.As(sweep.Errors[0], &cfgErr))
	require.Len(t, sweep.Results, 1)
	assert.Equal(t, good.ID, sweep.Results[0].RuleID)
}

func TestGoalProgressIsMonotonicAndIdempotent(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	user := uuid.New()

	goal, err := p.goals.CreateGoal(ctx, core.Goal{
		UserID: user, Name: "Holiday", Type: core.Savings, TargetAmount: dec("1000"), TargetDate: core.NewDate(2027, 6, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, "EUR", goal.Currency)

	income := func(amount, currency string) core.Transaction {
		tx := core.Transaction{
			ID: uuid.New(), UserID: user, Date: core.NewDate(2026, 10, 1), Amount: dec(amount),
			Currency: currency, Description: "Salary " + amount, Type: core.Income,
		}
		require.NoError(t, p.store.CreateTransaction(ctx, tx))
		return tx
	}
	first := income("600", "EUR")
	usd := income("900", "USD")

	pr, err := p.goals.ApplyTransactions(ctx, goal.ID, []core.Transaction{first, usd})
	require.NoError(t, err)
	assert.True(t, pr.CurrentAmount.Equal(dec("600")), "other currencies never count")
	assert.False(t, pr.Completed)

	pr, err = p.goals.ApplyTransactions(ctx, goal.ID, []core.Transaction{first})
	require.NoError(t, err)
	assert.True(t, pr.CurrentAmount.Equal(dec("600")), "replays are idempotent")

	second := income("500", "EUR")
	upd, err := p.goals.UpdateGoalsForTransaction(ctx, second.ID)
	require.NoError(t, err)
	require.Len(t, upd.Goals, 1)
	assert.True(t, upd.Goals[0].JustCompleted)
	assert.True(t, upd.Goals[0].CurrentAmount.Equal(dec("1100")))

	third := income("50", "EUR")
	upd, err = p.goals.UpdateGoalsForTransaction(ctx, third.ID)
	require.NoError(t, err)
	assert.Empty(t, upd.Goals, "completed goals take no more contributions")

	stored, err := p.store.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	assert.True(t, stored.Completed)
	assert.NotNil(t, stored.CompletedAt)
	assert.True(t, stored.CurrentAmount.Equal(dec("1100")))
}

func TestCreateGoalCurrency(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	user := uuid.New()

	goals := NewGoalService(p.store, nil, "gbp")
	g, err := goals.CreateGoal(ctx, core.Goal{UserID: user, Name: "Rainy day", Type: core.Savings, TargetAmount: dec("50")})
	require.NoError(t, err)
	assert.Equal(t, "GBP", g.Currency)

	g, err = goals.CreateGoal(ctx, core.Goal{UserID: user, Name: "Yen pot", Type: core.Savings, TargetAmount: dec("50"), Currency: " jpy "})
	require.NoError(t, err)
	assert.Equal(t, "JPY", g.Currency)

	_, err = goals.CreateGoal(ctx, core.Goal{UserID: user, Name: "Bogus", Type: core.Savings, TargetAmount: dec("50"), Currency: "XYZ"})
	assert.ErrorIs(t, err, core.ErrInvalidCurrency)

	stored, err := p.store.ListOpenGoals(ctx, user)
	require.NoError(t, err)
	assert.Len(t, stored, 2, "rejected goals are not stored")
}

func TestIngestUpdatesPayoffGoal(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()
	user := uuid.New()
	loan := seedCategory(t, p, user, "Loan", core.Expense)

	goal, err := p.goals.CreateGoal(ctx, core.Goal{
		UserID: user, Name: "Car loan", Type: core.Payoff, CategoryID: &loan.ID, TargetAmount: dec("300"), Currency: "eur",
	})
	require.NoError(t, err)

	_, err = p.ingest.Ingest(ctx, user, []ingest.RawRow{
		expenseRow(1, "2026-10-01", "150", "Loan instalment", "Loan"),
		expenseRow(2, "2026-10-02", "150", "Loan instalment extra", "Loan"),
		expenseRow(3, "2026-10-03", "150", "Groceries", "Food"),
	}, ImportOptions{})
	require.NoError(t, err)

	stored, err := p.store.GetGoal(ctx, goal.ID)
	require.NoError(t, err)
	assert.True(t, stored.CurrentAmount.Equal(dec("300")))
	assert.True(t, stored.Completed)
}

func TestSweeperEvaluatesEveryUser(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		user := uuid.New()
		food := seedCategory(t, p, user, "Food", core.Expense)
		seedExpense(t, p, user, food.ID, core.NewDate(2026, 10, 10), "120", "Dinner")
		octoberBudget(t, p, user, food.ID, "100")
		_, err := p.rules.CreateRule(ctx, core.Rule{
			UserID: user, Name: "Monthly", Condition: core.ThresholdExceeded, Threshold: dec("50"), Period: core.Monthly, Active: true,
		})
		require.NoError(t, err)
	}

	sweeper := NewSweeper(p.store, p.budgets, p.rules, p.pub, 2)
	report, err := sweeper.SweepAll(ctx, testNow)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Users)
	assert.Equal(t, 3, report.BudgetsEvaluated)
	assert.Equal(t, 3, report.RulesEvaluated)
	assert.Equal(t, 6, report.AlertsCreated)
	assert.Zero(t, report.Failures)
	assert.Len(t, p.pub.facts, 3)

	report, err = sweeper.SweepAll(ctx, testNow)
	require.NoError(t, err)
	assert.Zero(t, report.AlertsCreated)
}
