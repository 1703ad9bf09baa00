package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, user_id, category_id, date, amount, currency, description, type, created_at`

// ListCategories implements ports.CategoryStore
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, user_id, name, type, created_at FROM categories
		 WHERE user_id = ? ORDER BY created_at, rowid`, userID.String())
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var id, user, name, typ, created string
		if err := rows.Scan(&id, &user, &name, &typ, &created); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		var d decodeErr
		c := core.Category{
			ID:        d.id(id),
			UserID:    d.id(user),
			Name:      name,
			Type:      core.Direction(typ),
			CreatedAt: d.time(created),
		}
		if d.err != nil {
			return nil, fmt.Errorf("decode category: %w", d.err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory implements ports.CategoryStore
func (r *SQLiteRepository) CreateCategory(ctx context.Context, c core.Category) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, type, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID.String(), c.UserID.String(), c.Name, string(c.Type), formatTime(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("create category: %w", err)
	}

	slog.DebugContext(ctx, "Category saved to SQLite", "id", c.ID, "name", c.Name, "type", c.Type)
	return nil
}

// TransactionExists implements ports.TransactionStore
func (r *SQLiteRepository) TransactionExists(ctx context.Context, userID uuid.UUID, date core.Date, amount decimal.Decimal, dir core.Direction, description string) (bool, error) {
	var exists int
	err := r.q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM transactions
		 WHERE user_id = ? AND date = ? AND amount = ? AND type = ? AND description = ?)`,
		userID.String(), date.String(), core.Canonical(amount), string(dir), description).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate transaction: %w", err)
	}
	return exists == 1, nil
}

// CreateTransaction implements ports.TransactionStore
func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t core.Transaction) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID.String(), t.UserID.String(), nullableID(t.CategoryID), t.Date.String(),
		core.Canonical(t.Amount), t.Currency, t.Description, string(t.Type), formatTime(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"date", t.Date.String(),
		"amount", core.Canonical(t.Amount),
		"type", t.Type)
	return nil
}

// GetTransaction implements ports.TransactionStore
func (r *SQLiteRepository) GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error) {
	row := r.q.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id.String())
	t, err := scanTransaction(row)
	if err != nil {
		return core.Transaction{}, notFound(err, "transaction", id)
	}
	return t, nil
}

// LastCategoryForDescription implements ports.TransactionStore
func (r *SQLiteRepository) LastCategoryForDescription(ctx context.Context, userID uuid.UUID, description string, dir core.Direction) (*uuid.UUID, error) {
	var raw string
	err := r.q.QueryRowContext(ctx,
		`SELECT category_id FROM transactions
		 WHERE user_id = ? AND type = ? AND category_id IS NOT NULL
		   AND description = ? COLLATE NOCASE
		 ORDER BY date DESC, created_at DESC, rowid DESC LIMIT 1`,
		userID.String(), string(dir), description).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find historical category: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse category id: %w", err)
	}
	return &id, nil
}

// ListTransactions implements ports.TransactionStore
func (r *SQLiteRepository) ListTransactions(ctx context.Context, q ports.TransactionQuery) ([]core.Transaction, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + transactionColumns + ` FROM transactions WHERE user_id = ? AND date >= ? AND date <= ?`)
	args := []any{q.UserID.String(), q.Range.From.String(), q.Range.To.String()}

	if q.Type != "" {
		sb.WriteString(` AND type = ?`)
		args = append(args, string(q.Type))
	}
	if len(q.CategoryIDs) > 0 {
		sb.WriteString(` AND category_id IN (?` + strings.Repeat(`, ?`, len(q.CategoryIDs)-1) + `)`)
		for _, id := range q.CategoryIDs {
			args = append(args, id.String())
		}
	}
	sb.WriteString(` ORDER BY date, created_at, rowid`)

	rows, err := r.q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTransaction(s scanner) (core.Transaction, error) {
	var (
		id, user, date, amount, currency, description, typ, created string
		category                                                    sql.NullString
	)
	if err := s.Scan(&id, &user, &category, &date, &amount, &currency, &description, &typ, &created); err != nil {
		return core.Transaction{}, err
	}
	var d decodeErr
	t := core.Transaction{
		ID:          d.id(id),
		UserID:      d.id(user),
		CategoryID:  d.nullID(category),
		Date:        d.date(date),
		Amount:      d.decimal(amount),
		Currency:    currency,
		Description: description,
		Type:        core.Direction(typ),
		CreatedAt:   d.time(created),
	}
	if d.err != nil {
		return core.Transaction{}, fmt.Errorf("decode transaction: %w", d.err)
	}
	return t, nil
}
