package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income  Direction = "INCOME"
	Expense Direction = "EXPENSE"

	BudgetActive   BudgetStatus = "ACTIVE"
	BudgetExceeded BudgetStatus = "EXCEEDED"
	BudgetArchived BudgetStatus = "ARCHIVED"

	Daily     Period = "DAILY"
	Weekly    Period = "WEEKLY"
	Monthly   Period = "MONTHLY"
	Quarterly Period = "QUARTERLY"
	Yearly    Period = "YEARLY"

	ThresholdExceeded ConditionType = "THRESHOLD_EXCEEDED"
	ThresholdReached  ConditionType = "THRESHOLD_REACHED"
	Expression        ConditionType = "EXPRESSION"

	SourceBudget AlertSource = "BUDGET"
	SourceRule   AlertSource = "RULE"

	Savings GoalType = "SAVINGS"
	Payoff  GoalType = "PAYOFF"
)

// DateLayout is the persisted and default import format of a calendar day.
const DateLayout = "2006-01-02"

const maxDescriptionLen = 255

type (
	// Direction is the money flow of a transaction, and the kind of a category.
	Direction string

	BudgetStatus  string
	Period        string
	ConditionType string
	AlertSource   string
	GoalType      string

	// Date is a calendar day at UTC midnight.
	Date struct {
		time.Time
	}

	// DateRange is an inclusive range of calendar days.
	DateRange struct {
		From Date
		To   Date
	}

	User struct {
		ID        uuid.UUID
		CreatedAt time.Time
	}

	Category struct {
		ID        uuid.UUID
		UserID    uuid.UUID
		Name      string
		Type      Direction
		CreatedAt time.Time
	}

	// Transaction is an immutable ledger fact. Amount is the positive
	// magnitude; Type carries the sign.
	Transaction struct {
		ID          uuid.UUID
		UserID      uuid.UUID
		CategoryID  *uuid.UUID
		Date        Date
		Amount      decimal.Decimal
		Currency    string
		Description string
		Type        Direction
		CreatedAt   time.Time
	}

	Budget struct {
		ID         uuid.UUID
		UserID     uuid.UUID
		Name       string
		StartDate  Date
		EndDate    Date
		Status     BudgetStatus
		Categories []BudgetCategory
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	// BudgetCategory.SpentAmount is a cache of the ledger sum for the
	// category over the budget range, rewritten on every evaluation.
	BudgetCategory struct {
		ID          uuid.UUID
		BudgetID    uuid.UUID
		CategoryID  uuid.UUID
		LimitAmount decimal.Decimal
		SpentAmount decimal.Decimal
	}

	Rule struct {
		ID         uuid.UUID
		UserID     uuid.UUID
		Name       string
		CategoryID *uuid.UUID
		Condition  ConditionType
		Expression string
		Threshold  decimal.Decimal
		Period     Period
		Active     bool
		CreatedAt  time.Time
	}

	// Alert is produced only by the budget and rule evaluators. PeriodKey
	// identifies the evaluation period the breach belongs to.
	Alert struct {
		ID         uuid.UUID
		UserID     uuid.UUID
		SourceType AlertSource
		SourceID   uuid.UUID
		PeriodKey  string
		Message    string
		Read       bool
		CreatedAt  time.Time
	}

	Goal struct {
		ID            uuid.UUID
		UserID        uuid.UUID
		Name          string
		Type          GoalType
		CategoryID    *uuid.UUID
		TargetAmount  decimal.Decimal
		CurrentAmount decimal.Decimal
		TargetDate    Date
		Currency      string
		Completed     bool
		CompletedAt   *time.Time
		CreatedAt     time.Time
	}
)

var (
	ErrEmptyName        = errors.New("empty name")
	ErrEmptyDescription = errors.New("empty description")
	ErrInvalidDirection = errors.New("invalid transaction type")
	ErrInvalidRange     = errors.New("end date before start date")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in t's location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses s with the given Go layout.
func ParseDate(layout, s string) (Date, error) {
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// AddDays returns the date n calendar days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.AddDate(0, 0, n)}
}

func (r DateRange) Contains(d Date) bool {
	return !d.Before(r.From.Time) && !d.After(r.To.Time)
}

func (r DateRange) Validate() error {
	if err := r.From.Validate(); err != nil {
		return fmt.Errorf("start date: %w", err)
	}
	if err := r.To.Validate(); err != nil {
		return fmt.Errorf("end date: %w", err)
	}
	if r.To.Before(r.From.Time) {
		return ErrInvalidRange
	}
	return nil
}

func (r DateRange) String() string {
	return r.From.String() + ".." + r.To.String()
}

// ParseDirection maps the loose labels found in bank exports to a direction.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense", "debit", "withdrawal", "payment", "dr":
		return Expense, nil
	case "income", "credit", "deposit", "refund", "cr":
		return Income, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
}

func (d Direction) Valid() bool {
	return d == Income || d == Expense
}

// SignedAmount returns the amount with expenses negative.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Type == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if utf8.RuneCountInString(t.Description) > maxDescriptionLen {
		return fmt.Errorf("description too long (max %d characters)", maxDescriptionLen)
	}
	if !t.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if !t.Type.Valid() {
		return ErrInvalidDirection
	}
	return nil
}

func (b Budget) Range() DateRange {
	return DateRange{From: b.StartDate, To: b.EndDate}
}

// PeriodKey identifies the budget period for alert deduplication.
func (b Budget) PeriodKey() string {
	return b.Range().String()
}

func (b Budget) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return ErrEmptyName
	}
	if err := b.Range().Validate(); err != nil {
		return err
	}
	seen := make(map[uuid.UUID]struct{}, len(b.Categories))
	for _, bc := range b.Categories {
		if bc.CategoryID == uuid.Nil {
			return errors.New("budget category without category")
		}
		if _, dup := seen[bc.CategoryID]; dup {
			return fmt.Errorf("category %s listed twice", bc.CategoryID)
		}
		seen[bc.CategoryID] = struct{}{}
		if !bc.LimitAmount.IsPositive() {
			return fmt.Errorf("limit for category %s must be positive", bc.CategoryID)
		}
	}
	return nil
}

// Exceeded is strict: spending exactly at the limit is within budget.
func (bc BudgetCategory) Exceeded() bool {
	return bc.SpentAmount.GreaterThan(bc.LimitAmount)
}

func (r Rule) Validate() error {
	if r.Threshold.IsNegative() || (r.Condition != Expression && !r.Threshold.IsPositive()) {
		return errors.New("threshold must be positive")
	}
	switch r.Period {
	case Daily, Weekly, Monthly, Quarterly, Yearly:
	default:
		return fmt.Errorf("invalid period %q", r.Period)
	}
	switch r.Condition {
	case ThresholdExceeded, ThresholdReached:
	case Expression:
		if strings.TrimSpace(r.Expression) == "" {
			return errors.New("expression condition without expression")
		}
	default:
		return fmt.Errorf("invalid condition type %q", r.Condition)
	}
	return nil
}

// Counts reports which transaction direction feeds this goal type.
func (g GoalType) Counts() Direction {
	if g == Payoff {
		return Expense
	}
	return Income
}

func (g Goal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyName
	}
	if g.Type != Savings && g.Type != Payoff {
		return fmt.Errorf("invalid goal type %q", g.Type)
	}
	if !g.TargetAmount.IsPositive() {
		return errors.New("target amount must be positive")
	}
	if g.CurrentAmount.IsNegative() {
		return errors.New("current amount cannot be negative")
	}
	return nil
}

// Matches reports whether t contributes to the goal.
func (g Goal) Matches(t Transaction) bool {
	if g.Completed || t.UserID != g.UserID || t.Type != g.Type.Counts() {
		return false
	}
	if !strings.EqualFold(g.Currency, t.Currency) {
		return false
	}
	if g.CategoryID == nil {
		return true
	}
	return t.CategoryID != nil && *t.CategoryID == *g.CategoryID
}

// Contribute adds a non-negative amount to the goal. It returns true when the
// call completed the goal. Completion never reverts.
func (g *Goal) Contribute(amount decimal.Decimal, at time.Time) bool {
	if amount.IsPositive() {
		g.CurrentAmount = g.CurrentAmount.Add(amount)
	}
	if g.Completed || g.CurrentAmount.LessThan(g.TargetAmount) {
		return false
	}
	g.Completed = true
	g.CompletedAt = &at
	return true
}
