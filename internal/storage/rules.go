package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"fintrack/internal/core"

	"github.com/google/uuid"
)

const ruleColumns = `id, user_id, name, category_id, condition_type, expression, threshold, period, active, created_at`

const alertColumns = `id, user_id, source_type, source_id, period_key, message, is_read, created_at`

// CreateRule implements ports.RuleStore
func (r *SQLiteRepository) CreateRule(ctx context.Context, rule core.Rule) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO rules (`+ruleColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID.String(), rule.UserID.String(), rule.Name, nullableID(rule.CategoryID),
		string(rule.Condition), rule.Expression, core.Canonical(rule.Threshold),
		string(rule.Period), boolToInt(rule.Active), formatTime(rule.CreatedAt))
	if err != nil {
		return fmt.Errorf("create rule: %w", err)
	}

	slog.DebugContext(ctx, "Rule saved to SQLite", "id", rule.ID, "name", rule.Name, "period", rule.Period)
	return nil
}

// GetRule implements ports.RuleStore
func (r *SQLiteRepository) GetRule(ctx context.Context, id uuid.UUID) (core.Rule, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id.String())
	rule, err := scanRule(row)
	if err != nil {
		return core.Rule{}, notFound(err, "rule", id)
	}
	return rule, nil
}

// ListActiveRules implements ports.RuleStore
func (r *SQLiteRepository) ListActiveRules(ctx context.Context, userID uuid.UUID) ([]core.Rule, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE user_id = ? AND active = 1 ORDER BY created_at, rowid`,
		userID.String())
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []core.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// HasUnreadAlert implements ports.AlertStore
func (r *SQLiteRepository) HasUnreadAlert(ctx context.Context, source core.AlertSource, sourceID uuid.UUID, periodKey string) (bool, error) {
	var exists int
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM alerts
		 WHERE source_type = ? AND source_id = ? AND period_key = ? AND is_read = 0)`,
		string(source), sourceID.String(), periodKey).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check unread alert: %w", err)
	}
	return exists == 1, nil
}

// CreateAlert implements ports.AlertStore
func (r *SQLiteRepository) CreateAlert(ctx context.Context, a core.Alert) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO alerts (`+alertColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID.String(), a.UserID.String(), string(a.SourceType), a.SourceID.String(),
		a.PeriodKey, a.Message, boolToInt(a.Read), formatTime(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}

	slog.InfoContext(ctx, "Alert saved to SQLite",
		"id", a.ID,
		"source_type", a.SourceType,
		"source_id", a.SourceID,
		"period_key", a.PeriodKey)
	return nil
}

// ListAlerts implements ports.AlertStore
func (r *SQLiteRepository) ListAlerts(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]core.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = ?`
	if unreadOnly {
		query += ` AND is_read = 0`
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := r.q.QueryContext(ctx, query, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []core.Alert
	for rows.Next() {
		var (
			id, user, source, sourceID, periodKey, message, created string
			read                                                    int
		)
		if err := rows.Scan(&id, &user, &source, &sourceID, &periodKey, &message, &read, &created); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		var d decodeErr
		a := core.Alert{
			ID:         d.id(id),
			UserID:     d.id(user),
			SourceType: core.AlertSource(source),
			SourceID:   d.id(sourceID),
			PeriodKey:  periodKey,
			Message:    message,
			Read:       read == 1,
			CreatedAt:  d.time(created),
		}
		if d.err != nil {
			return nil, fmt.Errorf("decode alert: %w", d.err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkAlertRead implements ports.AlertStore
func (r *SQLiteRepository) MarkAlertRead(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `UPDATE alerts SET is_read = 1 WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("mark alert read: %w", err)
	}
	return expectAffected(res, "alert", id)
}

func scanRule(s scanner) (core.Rule, error) {
	var (
		id, user, name, condition, expression, threshold, period, created string
		category                                                          sql.NullString
		active                                                            int
	)
	if err := s.Scan(&id, &user, &name, &category, &condition, &expression, &threshold, &period, &active, &created); err != nil {
		return core.Rule{}, err
	}
	var d decodeErr
	rule := core.Rule{
		ID:         d.id(id),
		UserID:     d.id(user),
		Name:       name,
		CategoryID: d.nullID(category),
		Condition:  core.ConditionType(condition),
		Expression: expression,
		Threshold:  d.decimal(threshold),
		Period:     core.Period(period),
		Active:     active == 1,
		CreatedAt:  d.time(created),
	}
	if d.err != nil {
		return core.Rule{}, fmt.Errorf("decode rule: %w", d.err)
	}
	return rule, nil
}
