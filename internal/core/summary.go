package core

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CategoryAmount represents an amount aggregated by category.
type CategoryAmount struct {
	CategoryID uuid.UUID       `json:"category_id"`
	Name       string          `json:"name"`
	Amount     decimal.Decimal `json:"amount"`
}

// BudgetFact summarises the last evaluation of one budget.
type BudgetFact struct {
	BudgetID           uuid.UUID    `json:"budget_id"`
	Name               string       `json:"name"`
	Status             BudgetStatus `json:"status"`
	ExceededCategories []uuid.UUID  `json:"exceeded_categories,omitempty"`
}

// RuleBreach is a rule whose threshold was crossed in a period.
type RuleBreach struct {
	RuleID    uuid.UUID       `json:"rule_id"`
	Name      string          `json:"name"`
	PeriodKey string          `json:"period_key"`
	Spent     decimal.Decimal `json:"spent"`
	Threshold decimal.Decimal `json:"threshold"`
}

// SpendingFacts is everything the narrative service needs to write an
// insight for one user and period. It carries numbers only.
type SpendingFacts struct {
	UserID       uuid.UUID        `json:"user_id"`
	PeriodKey    string           `json:"period_key"`
	From         string           `json:"from"`
	To           string           `json:"to"`
	Total        decimal.Decimal  `json:"total"`
	ByCategory   []CategoryAmount `json:"by_category"`
	Budgets      []BudgetFact     `json:"budgets,omitempty"`
	RuleBreaches []RuleBreach     `json:"rule_breaches,omitempty"`
	GeneratedAt  time.Time        `json:"generated_at"`
}
