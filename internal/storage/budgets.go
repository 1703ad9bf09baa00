package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fintrack/internal/core"

	"github.com/google/uuid"
)

const budgetColumns = `b.id, b.user_id, b.name, b.start_date, b.end_date, b.status, b.created_at, b.updated_at`

// CreateBudget implements ports.BudgetStore. The budget and its category
// limits are written in one transaction.
func (r *SQLiteRepository) CreateBudget(ctx context.Context, b core.Budget) error {
	return r.inTx(ctx, func(tr *SQLiteRepository) error {
		_, err := tr.q.ExecContext(ctx,
			`INSERT INTO budgets (id, user_id, name, start_date, end_date, status, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID.String(), b.UserID.String(), b.Name, b.StartDate.String(), b.EndDate.String(),
			string(b.Status), formatTime(b.CreatedAt), formatTime(b.UpdatedAt))
		if err != nil {
			return fmt.Errorf("create budget: %w", err)
		}

		for _, bc := range b.Categories {
			_, err := tr.q.ExecContext(ctx,
				`INSERT INTO budget_categories (id, budget_id, category_id, limit_amount, spent_amount)
				 VALUES (?, ?, ?, ?, ?)`,
				bc.ID.String(), b.ID.String(), bc.CategoryID.String(),
				core.Canonical(bc.LimitAmount), core.Canonical(bc.SpentAmount))
			if err != nil {
				return fmt.Errorf("create budget category: %w", err)
			}
		}

		slog.DebugContext(ctx, "Budget saved to SQLite", "id", b.ID, "name", b.Name, "categories", len(b.Categories))
		return nil
	})
}

// GetBudget implements ports.BudgetStore
func (r *SQLiteRepository) GetBudget(ctx context.Context, id uuid.UUID) (core.Budget, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+budgetColumns+` FROM budgets b WHERE b.id = ?`, id.String())
	b, err := scanBudget(row)
	if err != nil {
		return core.Budget{}, notFound(err, "budget", id)
	}
	if b.Categories, err = r.budgetCategories(ctx, b.ID); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

// ListBudgets implements ports.BudgetStore
func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]core.Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets b WHERE b.user_id = ?`
	if !includeArchived {
		query += ` AND b.status != 'ARCHIVED'`
	}
	query += ` ORDER BY b.created_at, b.rowid`
	return r.queryBudgets(ctx, query, userID.String())
}

// ListBudgetsCovering implements ports.BudgetStore
func (r *SQLiteRepository) ListBudgetsCovering(ctx context.Context, userID uuid.UUID, date core.Date, categoryID uuid.UUID) ([]core.Budget, error) {
	return r.queryBudgets(ctx,
		`SELECT `+budgetColumns+` FROM budgets b
		 JOIN budget_categories bc ON bc.budget_id = b.id
		 WHERE b.user_id = ? AND b.status != 'ARCHIVED'
		   AND b.start_date <= ? AND b.end_date >= ? AND bc.category_id = ?
		 ORDER BY b.created_at, b.rowid`,
		userID.String(), date.String(), date.String(), categoryID.String())
}

// SaveBudgetEvaluation implements ports.BudgetStore
func (r *SQLiteRepository) SaveBudgetEvaluation(ctx context.Context, b core.Budget) error {
	return r.inTx(ctx, func(tr *SQLiteRepository) error {
		res, err := tr.q.ExecContext(ctx,
			`UPDATE budgets SET status = ?, updated_at = ? WHERE id = ?`,
			string(b.Status), formatTime(b.UpdatedAt), b.ID.String())
		if err != nil {
			return fmt.Errorf("update budget status: %w", err)
		}
		if err := expectAffected(res, "budget", b.ID); err != nil {
			return err
		}

		for _, bc := range b.Categories {
			if _, err := tr.q.ExecContext(ctx,
				`UPDATE budget_categories SET spent_amount = ? WHERE id = ?`,
				core.Canonical(bc.SpentAmount), bc.ID.String()); err != nil {
				return fmt.Errorf("update budget category spent: %w", err)
			}
		}
		return nil
	})
}

// UpdateBudgetStatus implements ports.BudgetStore
func (r *SQLiteRepository) UpdateBudgetStatus(ctx context.Context, id uuid.UUID, status core.BudgetStatus) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE budgets SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), id.String())
	if err != nil {
		return fmt.Errorf("update budget status: %w", err)
	}
	return expectAffected(res, "budget", id)
}

func (r *SQLiteRepository) queryBudgets(ctx context.Context, query string, args ...any) ([]core.Budget, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}

	var out []core.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	// Close before the per-budget queries; a transaction holds one connection.
	rows.Close()

	for i := range out {
		if out[i].Categories, err = r.budgetCategories(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *SQLiteRepository) budgetCategories(ctx context.Context, budgetID uuid.UUID) ([]core.BudgetCategory, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, budget_id, category_id, limit_amount, spent_amount
		 FROM budget_categories WHERE budget_id = ? ORDER BY rowid`, budgetID.String())
	if err != nil {
		return nil, fmt.Errorf("list budget categories: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetCategory
	for rows.Next() {
		var id, budget, category, limit, spent string
		if err := rows.Scan(&id, &budget, &category, &limit, &spent); err != nil {
			return nil, fmt.Errorf("scan budget category: %w", err)
		}
		var d decodeErr
		bc := core.BudgetCategory{
			ID:          d.id(id),
			BudgetID:    d.id(budget),
			CategoryID:  d.id(category),
			LimitAmount: d.decimal(limit),
			SpentAmount: d.decimal(spent),
		}
		if d.err != nil {
			return nil, fmt.Errorf("decode budget category: %w", d.err)
		}
		out = append(out, bc)
	}
	return out, rows.Err()
}

func scanBudget(s scanner) (core.Budget, error) {
	var id, user, name, start, end, status, created, updated string
	if err := s.Scan(&id, &user, &name, &start, &end, &status, &created, &updated); err != nil {
		return core.Budget{}, err
	}
	var d decodeErr
	b := core.Budget{
		ID:        d.id(id),
		UserID:    d.id(user),
		Name:      name,
		StartDate: d.date(start),
		EndDate:   d.date(end),
		Status:    core.BudgetStatus(status),
		CreatedAt: d.time(created),
		UpdatedAt: d.time(updated),
	}
	if d.err != nil {
		return core.Budget{}, fmt.Errorf("decode budget: %w", d.err)
	}
	return b, nil
}
