package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/ports"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "fintrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUserCategory(t *testing.T, repo *SQLiteRepository, name string, dir core.Direction) (uuid.UUID, core.Category) {
	t.Helper()
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, repo.EnsureUser(ctx, user))
	cat := core.Category{ID: uuid.New(), UserID: user, Name: name, Type: dir, CreatedAt: time.Now()}
	require.NoError(t, repo.CreateCategory(ctx, cat))
	return user, cat
}

func TestTransactionRoundTripAndDuplicateLookup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, cat := seedUserCategory(t, repo, "Groceries", core.Expense)

	tx := core.Transaction{
		ID:          uuid.New(),
		UserID:      user,
		CategoryID:  &cat.ID,
		Date:        core.NewDate(2026, 10, 3),
		Amount:      dec("12.50"),
		Currency:    "EUR",
		Description: "Corner Market",
		Type:        core.Expense,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, repo.CreateTransaction(ctx, tx))

	got, err := repo.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, got.Amount.Equal(dec("12.5")))
	assert.Equal(t, tx.Date.String(), got.Date.String())
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, cat.ID, *got.CategoryID)

	// 12.5 and 12.50 share one canonical form
	dup, err := repo.TransactionExists(ctx, user, tx.Date, dec("12.5"), core.Expense, "Corner Market")
	require.NoError(t, err)
	assert.True(t, dup)

	dup, err = repo.TransactionExists(ctx, user, tx.Date, dec("12.5"), core.Expense, "corner market")
	require.NoError(t, err)
	assert.False(t, dup, "dedup is an exact match")

	dup, err = repo.TransactionExists(ctx, user, tx.Date, dec("12.5"), core.Income, "Corner Market")
	require.NoError(t, err)
	assert.False(t, dup, "a refund does not match the purchase")

	hist, err := repo.LastCategoryForDescription(ctx, user, "CORNER MARKET", core.Expense)
	require.NoError(t, err)
	require.NotNil(t, hist)
	assert.Equal(t, cat.ID, *hist)

	hist, err = repo.LastCategoryForDescription(ctx, user, "Corner Market", core.Income)
	require.NoError(t, err)
	assert.Nil(t, hist)

	_, err = repo.GetTransaction(ctx, uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListTransactionsFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, groceries := seedUserCategory(t, repo, "Groceries", core.Expense)
	rent := core.Category{ID: uuid.New(), UserID: user, Name: "Rent", Type: core.Expense, CreatedAt: time.Now()}
	require.NoError(t, repo.CreateCategory(ctx, rent))

	add := func(cat *uuid.UUID, day int, amount string, dir core.Direction) {
		require.NoError(t, repo.CreateTransaction(ctx, core.Transaction{
			ID: uuid.New(), UserID: user, CategoryID: cat, Date: core.NewDate(2026, 10, day),
			Amount: dec(amount), Currency: "EUR", Description: "x", Type: dir, CreatedAt: time.Now(),
		}))
	}
	add(&groceries.ID, 1, "10", core.Expense)
	add(&groceries.ID, 31, "20", core.Expense)
	add(&rent.ID, 15, "700", core.Expense)
	add(nil, 16, "5", core.Expense)
	add(nil, 16, "1000", core.Income)

	october := core.DateRange{From: core.NewDate(2026, 10, 1), To: core.NewDate(2026, 10, 31)}

	all, err := repo.ListTransactions(ctx, ports.TransactionQuery{UserID: user, Range: october})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	expenses, err := repo.ListTransactions(ctx, ports.TransactionQuery{UserID: user, Range: october, Type: core.Expense})
	require.NoError(t, err)
	assert.Len(t, expenses, 4)

	onlyGroceries, err := repo.ListTransactions(ctx, ports.TransactionQuery{
		UserID: user, Range: october, CategoryIDs: []uuid.UUID{groceries.ID},
	})
	require.NoError(t, err)
	assert.Len(t, onlyGroceries, 2)

	firstHalf := core.DateRange{From: core.NewDate(2026, 10, 1), To: core.NewDate(2026, 10, 15)}
	both, err := repo.ListTransactions(ctx, ports.TransactionQuery{
		UserID: user, Range: firstHalf, CategoryIDs: []uuid.UUID{groceries.ID, rent.ID},
	})
	require.NoError(t, err)
	assert.Len(t, both, 2)
}

func TestCategoriesKeepCreationOrderAndUniqueName(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, first := seedUserCategory(t, repo, "Food", core.Expense)
	second := core.Category{ID: uuid.New(), UserID: user, Name: "Fuel", Type: core.Expense, CreatedAt: first.CreatedAt.Add(time.Second)}
	require.NoError(t, repo.CreateCategory(ctx, second))

	cats, err := repo.ListCategories(ctx, user)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Food", cats[0].Name)
	assert.Equal(t, "Fuel", cats[1].Name)

	clash := core.Category{ID: uuid.New(), UserID: user, Name: "FOOD", Type: core.Expense, CreatedAt: time.Now()}
	assert.Error(t, repo.CreateCategory(ctx, clash))
}

func TestBudgetLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, cat := seedUserCategory(t, repo, "Groceries", core.Expense)

	b := core.Budget{
		ID: uuid.New(), UserID: user, Name: "October",
		StartDate: core.NewDate(2026, 10, 1), EndDate: core.NewDate(2026, 10, 31),
		Status:    core.BudgetActive,
		Categories: []core.BudgetCategory{
			{ID: uuid.New(), CategoryID: cat.ID, LimitAmount: dec("500"), SpentAmount: decimal.Zero},
		},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateBudget(ctx, b))

	covering, err := repo.ListBudgetsCovering(ctx, user, core.NewDate(2026, 10, 31), cat.ID)
	require.NoError(t, err)
	require.Len(t, covering, 1)
	require.Len(t, covering[0].Categories, 1)

	outside, err := repo.ListBudgetsCovering(ctx, user, core.NewDate(2026, 11, 1), cat.ID)
	require.NoError(t, err)
	assert.Empty(t, outside)

	b.Status = core.BudgetExceeded
	b.Categories[0].SpentAmount = dec("500.01")
	b.UpdatedAt = time.Now()
	require.NoError(t, repo.SaveBudgetEvaluation(ctx, b))

	got, err := repo.GetBudget(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, core.BudgetExceeded, got.Status)
	assert.True(t, got.Categories[0].SpentAmount.Equal(dec("500.01")))

	require.NoError(t, repo.UpdateBudgetStatus(ctx, b.ID, core.BudgetArchived))
	active, err := repo.ListBudgets(ctx, user, false)
	require.NoError(t, err)
	assert.Empty(t, active)
	all, err := repo.ListBudgets(ctx, user, true)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	covering, err = repo.ListBudgetsCovering(ctx, user, core.NewDate(2026, 10, 15), cat.ID)
	require.NoError(t, err)
	assert.Empty(t, covering, "archived budgets are never affected")

	assert.ErrorIs(t, repo.UpdateBudgetStatus(ctx, uuid.New(), core.BudgetActive), core.ErrNotFound)
}

func TestUnreadAlertIsUniquePerSourceAndPeriod(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, _ := seedUserCategory(t, repo, "Groceries", core.Expense)
	ruleID := uuid.New()

	alert := func() core.Alert {
		return core.Alert{
			ID: uuid.New(), UserID: user, SourceType: core.SourceRule, SourceID: ruleID,
			PeriodKey: "2026-10", Message: "over", CreatedAt: time.Now(),
		}
	}

	first := alert()
	require.NoError(t, repo.CreateAlert(ctx, first))
	has, err := repo.HasUnreadAlert(ctx, core.SourceRule, ruleID, "2026-10")
	require.NoError(t, err)
	assert.True(t, has)

	assert.Error(t, repo.CreateAlert(ctx, alert()), "second unread alert for the same period")

	require.NoError(t, repo.MarkAlertRead(ctx, first.ID))
	has, err = repo.HasUnreadAlert(ctx, core.SourceRule, ruleID, "2026-10")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, repo.CreateAlert(ctx, alert()))
	unread, err := repo.ListAlerts(ctx, user, true)
	require.NoError(t, err)
	assert.Len(t, unread, 1)
	all, err := repo.ListAlerts(ctx, user, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGoalContributionsAndStickyCompletion(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user, cat := seedUserCategory(t, repo, "Salary", core.Income)

	g := core.Goal{
		ID: uuid.New(), UserID: user, Name: "Emergency fund", Type: core.Savings,
		TargetAmount: dec("100"), CurrentAmount: decimal.Zero, Currency: "EUR",
		TargetDate: core.NewDate(2027, 1, 1), CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateGoal(ctx, g))

	tx := core.Transaction{
		ID: uuid.New(), UserID: user, CategoryID: &cat.ID, Date: core.NewDate(2026, 10, 1),
		Amount: dec("100"), Currency: "EUR", Description: "pay", Type: core.Income, CreatedAt: time.Now(),
	}
	require.NoError(t, repo.CreateTransaction(ctx, tx))

	ok, err := repo.RecordContribution(ctx, g.ID, tx.ID, tx.Amount)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.RecordContribution(ctx, g.ID, tx.ID, tx.Amount)
	require.NoError(t, err)
	assert.False(t, ok)

	g.Contribute(tx.Amount, time.Now())
	require.NoError(t, repo.SaveGoalProgress(ctx, g))

	// A later save without the flag cannot clear it
	g.Completed = false
	g.CompletedAt = nil
	g.CurrentAmount = dec("40")
	require.NoError(t, repo.SaveGoalProgress(ctx, g))

	got, err := repo.GetGoal(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, "2027-01-01", got.TargetDate.String())

	open, err := repo.ListOpenGoals(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	user := uuid.New()
	require.NoError(t, repo.EnsureUser(ctx, user))

	boom := errors.New("boom")
	err := repo.WithinTx(ctx, func(s ports.Store) error {
		c := core.Category{ID: uuid.New(), UserID: user, Name: "Temp", Type: core.Expense, CreatedAt: time.Now()}
		if err := s.CreateCategory(ctx, c); err != nil {
			return err
		}
		// nested calls join the outer transaction
		return s.WithinTx(ctx, func(ports.Store) error { return boom })
	})
	assert.ErrorIs(t, err, boom)

	cats, err := repo.ListCategories(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, cats)

	ids, err := repo.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{user}, ids)
}

func TestCreateTransactionWrapsDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewWithDB(db)
	mock.ExpectExec("INSERT INTO transactions").WillReturnError(errors.New("disk full"))

	err = repo.CreateTransaction(context.Background(), core.Transaction{
		ID: uuid.New(), UserID: uuid.New(), Date: core.NewDate(2026, 10, 1),
		Amount: dec("1"), Currency: "EUR", Description: "x", Type: core.Expense,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create transaction: disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBudgetRollsBackWhenCategoryInsertFails(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewWithDB(db)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO budgets").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO budget_categories").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err = repo.CreateBudget(context.Background(), core.Budget{
		ID: uuid.New(), UserID: uuid.New(), Name: "b",
		StartDate: core.NewDate(2026, 10, 1), EndDate: core.NewDate(2026, 10, 31),
		Status:     core.BudgetActive,
		Categories: []core.BudgetCategory{{ID: uuid.New(), CategoryID: uuid.New(), LimitAmount: dec("1")}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create budget category")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetBudgetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewWithDB(db)
	mock.ExpectQuery("SELECT .* FROM budgets b WHERE b.id = ?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = repo.GetBudget(context.Background(), uuid.New())
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveGoalProgressMissingGoal(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewWithDB(db)
	mock.ExpectExec("UPDATE goals SET current_amount").WillReturnResult(sqlmock.NewResult(0, 0))

	err = repo.SaveGoalProgress(context.Background(), core.Goal{ID: uuid.New(), CurrentAmount: dec("1")})
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
