package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/backend"
	"fintrack/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

func TestParseCommand(t *testing.T) {
	user := uuid.New()
	entity := uuid.New()

	tests := []struct {
		name     string
		user     string
		budget   string
		rules    bool
		tx       string
		alerts   bool
		markRead string
		at       string
		wantKind amqp.EvaluationKind
		wantErr  bool
	}{
		{name: "bare user sweeps", user: user.String(), wantKind: amqp.EvaluateUser},
		{name: "budget", budget: entity.String(), wantKind: amqp.EvaluateBudget},
		{name: "rules with date", user: user.String(), rules: true, at: "2026-01-31", wantKind: amqp.EvaluateRules},
		{name: "transaction", tx: entity.String(), wantKind: amqp.EvaluateTransaction},
		{name: "alerts", user: user.String(), alerts: true},
		{name: "mark read", markRead: entity.String()},
		{name: "rules without user", rules: true, wantErr: true},
		{name: "two actions", user: user.String(), rules: true, budget: entity.String(), wantErr: true},
		{name: "bad budget id", budget: "nope", wantErr: true},
		{name: "bad date", user: user.String(), at: "31/01/2026", wantErr: true},
		{name: "nothing", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := parseCommand(tt.user, tt.budget, tt.rules, tt.tx, tt.alerts, tt.markRead, tt.at, now)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, cmd.kind)
			if tt.at != "" {
				assert.Equal(t, "2026-01-31", core.DateOf(cmd.at).String())
			} else {
				assert.Equal(t, now, cmd.at)
			}
		})
	}
}

func TestRun_InProcess(t *testing.T) {
	ctx := context.Background()
	res, err := backend.NewFactory(nil).CreateBackend(ctx, backend.Config{Type: backend.MemoryBackend, EvalConcurrency: 1})
	require.NoError(t, err)
	b := res.Backend

	user := uuid.New()
	require.NoError(t, b.Store.EnsureUser(ctx, user))
	food := core.Category{ID: uuid.New(), UserID: user, Name: "Food", Type: core.Expense}
	require.NoError(t, b.Store.CreateCategory(ctx, food))
	require.NoError(t, b.Store.CreateTransaction(ctx, core.Transaction{
		ID: uuid.New(), UserID: user, CategoryID: &food.ID, Date: core.NewDate(2026, 10, 14),
		Amount: decimal.RequireFromString("30"), Currency: "EUR", Description: "Pizza", Type: core.Expense,
	}))
	_, err = b.Rules.CreateRule(ctx, core.Rule{
		UserID: user, Name: "Food week", CategoryID: &food.ID, Condition: core.ThresholdExceeded,
		Threshold: decimal.RequireFromString("25"), Period: core.Weekly, Active: true,
	})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, run(ctx, &out, b, command{kind: amqp.EvaluateRules, user: user, at: now}))
	assert.Contains(t, out.String(), `rule "Food week" 2026-W42`)
	assert.Contains(t, out.String(), "breached true")

	out.Reset()
	require.NoError(t, run(ctx, &out, b, command{user: user, listAlerts: true}))
	assert.Contains(t, out.String(), "1 unread alert(s)")

	alerts, err := b.Alerts.List(ctx, user, true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)

	out.Reset()
	require.NoError(t, run(ctx, &out, b, command{markRead: alerts[0].ID}))
	assert.Contains(t, out.String(), "marked read")

	out.Reset()
	require.NoError(t, run(ctx, &out, b, command{kind: amqp.EvaluateUser, user: user, at: now}))
	assert.Contains(t, out.String(), "rules 1, alerts created 1")

	assert.Error(t, run(ctx, &out, b, command{kind: amqp.EvaluateBudget, entity: uuid.New()}))
}
