package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const goalColumns = `id, user_id, name, type, category_id, target_amount, current_amount, target_date, currency, completed, completed_at, created_at`

// CreateGoal implements ports.GoalStore
func (r *SQLiteRepository) CreateGoal(ctx context.Context, g core.Goal) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO goals (`+goalColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.ID.String(), g.UserID.String(), g.Name, string(g.Type), nullableID(g.CategoryID),
		core.Canonical(g.TargetAmount), core.Canonical(g.CurrentAmount), formatDate(g.TargetDate),
		g.Currency, boolToInt(g.Completed), nullableTime(g.CompletedAt), formatTime(g.CreatedAt))
	if err != nil {
		return fmt.Errorf("create goal: %w", err)
	}

	slog.DebugContext(ctx, "Goal saved to SQLite", "id", g.ID, "name", g.Name, "type", g.Type)
	return nil
}

// GetGoal implements ports.GoalStore
func (r *SQLiteRepository) GetGoal(ctx context.Context, id uuid.UUID) (core.Goal, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+goalColumns+` FROM goals WHERE id = ?`, id.String())
	g, err := scanGoal(row)
	if err != nil {
		return core.Goal{}, notFound(err, "goal", id)
	}
	return g, nil
}

// ListOpenGoals implements ports.GoalStore
func (r *SQLiteRepository) ListOpenGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+goalColumns+` FROM goals WHERE user_id = ? AND completed = 0 ORDER BY created_at, rowid`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	var out []core.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// RecordContribution implements ports.GoalStore
func (r *SQLiteRepository) RecordContribution(ctx context.Context, goalID, transactionID uuid.UUID, amount decimal.Decimal) (bool, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO goal_contributions (goal_id, transaction_id, amount, created_at)
		 VALUES (?, ?, ?, ?) ON CONFLICT(goal_id, transaction_id) DO NOTHING`,
		goalID.String(), transactionID.String(), core.Canonical(amount), formatTime(time.Now()))
	if err != nil {
		return false, fmt.Errorf("record goal contribution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("goal contribution rows affected: %w", err)
	}
	return n == 1, nil
}

// SaveGoalProgress implements ports.GoalStore. A stored completion is never
// cleared.
func (r *SQLiteRepository) SaveGoalProgress(ctx context.Context, g core.Goal) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE goals SET current_amount = ?,
		   completed = MAX(completed, ?),
		   completed_at = COALESCE(completed_at, ?)
		 WHERE id = ?`,
		core.Canonical(g.CurrentAmount), boolToInt(g.Completed), nullableTime(g.CompletedAt), g.ID.String())
	if err != nil {
		return fmt.Errorf("update goal progress: %w", err)
	}
	return expectAffected(res, "goal", g.ID)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func scanGoal(s scanner) (core.Goal, error) {
	var (
		id, user, name, typ, target, current, targetDate, currency, created string
		category, completedAt                                              sql.NullString
		completed                                                          int
	)
	if err := s.Scan(&id, &user, &name, &typ, &category, &target, &current, &targetDate,
		&currency, &completed, &completedAt, &created); err != nil {
		return core.Goal{}, err
	}
	var d decodeErr
	g := core.Goal{
		ID:            d.id(id),
		UserID:        d.id(user),
		Name:          name,
		Type:          core.GoalType(typ),
		CategoryID:    d.nullID(category),
		TargetAmount:  d.decimal(target),
		CurrentAmount: d.decimal(current),
		TargetDate:    d.date(targetDate),
		Currency:      currency,
		Completed:     completed == 1,
		CreatedAt:     d.time(created),
	}
	if completedAt.Valid {
		at := d.time(completedAt.String)
		g.CompletedAt = &at
	}
	if d.err != nil {
		return core.Goal{}, fmt.Errorf("decode goal: %w", d.err)
	}
	return g, nil
}
