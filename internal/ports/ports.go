package ports

import (
	"context"

	"fintrack/internal/core"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionQuery selects ledger entries for aggregation.
// Empty CategoryIDs means every category, uncategorized entries included.
// An empty Type means both directions.
type TransactionQuery struct {
	UserID      uuid.UUID
	CategoryIDs []uuid.UUID
	Type        core.Direction
	Range       core.DateRange
}

// Ports for the durable store and outbound adapters.
type (
	UserStore interface {
		// EnsureUser creates the user row when missing.
		EnsureUser(ctx context.Context, id uuid.UUID) error
		ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	}

	CategoryStore interface {
		// ListCategories returns the user's categories in creation order.
		ListCategories(ctx context.Context, userID uuid.UUID) ([]core.Category, error)
		CreateCategory(ctx context.Context, c core.Category) error
	}

	TransactionStore interface {
		TransactionExists(ctx context.Context, userID uuid.UUID, date core.Date, amount decimal.Decimal, dir core.Direction, description string) (bool, error)
		CreateTransaction(ctx context.Context, t core.Transaction) error
		GetTransaction(ctx context.Context, id uuid.UUID) (core.Transaction, error)
		// LastCategoryForDescription returns the category of the user's most
		// recent categorized transaction with the same description
		// (case-insensitive) and direction, or nil.
		LastCategoryForDescription(ctx context.Context, userID uuid.UUID, description string, dir core.Direction) (*uuid.UUID, error)
		ListTransactions(ctx context.Context, q TransactionQuery) ([]core.Transaction, error)
	}

	BudgetStore interface {
		CreateBudget(ctx context.Context, b core.Budget) error
		GetBudget(ctx context.Context, id uuid.UUID) (core.Budget, error)
		ListBudgets(ctx context.Context, userID uuid.UUID, includeArchived bool) ([]core.Budget, error)
		// ListBudgetsCovering returns non-archived budgets whose range contains
		// date and which carry a limit for categoryID.
		ListBudgetsCovering(ctx context.Context, userID uuid.UUID, date core.Date, categoryID uuid.UUID) ([]core.Budget, error)
		// SaveBudgetEvaluation persists status and every category's spent amount.
		SaveBudgetEvaluation(ctx context.Context, b core.Budget) error
		UpdateBudgetStatus(ctx context.Context, id uuid.UUID, status core.BudgetStatus) error
	}

	RuleStore interface {
		CreateRule(ctx context.Context, r core.Rule) error
		GetRule(ctx context.Context, id uuid.UUID) (core.Rule, error)
		ListActiveRules(ctx context.Context, userID uuid.UUID) ([]core.Rule, error)
	}

	AlertStore interface {
		HasUnreadAlert(ctx context.Context, source core.AlertSource, sourceID uuid.UUID, periodKey string) (bool, error)
		CreateAlert(ctx context.Context, a core.Alert) error
		ListAlerts(ctx context.Context, userID uuid.UUID, unreadOnly bool) ([]core.Alert, error)
		MarkAlertRead(ctx context.Context, id uuid.UUID) error
	}

	GoalStore interface {
		CreateGoal(ctx context.Context, g core.Goal) error
		GetGoal(ctx context.Context, id uuid.UUID) (core.Goal, error)
		ListOpenGoals(ctx context.Context, userID uuid.UUID) ([]core.Goal, error)
		// RecordContribution stores a (goal, transaction) contribution once.
		// It reports false when the pair was already recorded.
		RecordContribution(ctx context.Context, goalID, transactionID uuid.UUID, amount decimal.Decimal) (bool, error)
		SaveGoalProgress(ctx context.Context, g core.Goal) error
	}

	// Store is the transactional relational store the pipeline runs on.
	Store interface {
		UserStore
		CategoryStore
		TransactionStore
		BudgetStore
		RuleStore
		AlertStore
		GoalStore

		// WithinTx runs fn against a store bound to one transaction. The
		// transaction commits when fn returns nil and rolls back otherwise.
		// Nested calls join the outer transaction.
		WithinTx(ctx context.Context, fn func(Store) error) error
	}

	// FactPublisher hands aggregated spending facts to the narrative service.
	FactPublisher interface {
		PublishFacts(ctx context.Context, facts core.SpendingFacts) error
	}
)
