package services

import (
	"fmt"
	"time"

	"fintrack/internal/cache"
	"fintrack/internal/core"

	"github.com/Knetic/govaluate"
	"github.com/shopspring/decimal"
)

// ConditionInput is what a rule condition is evaluated against.
type ConditionInput struct {
	Spent     decimal.Decimal
	Threshold decimal.Decimal
	Count     int
}

// Condition decides whether a rule is breached.
type Condition interface {
	Breached(in ConditionInput) (bool, error)
}

type thresholdExceeded struct{}

func (thresholdExceeded) Breached(in ConditionInput) (bool, error) {
	return in.Spent.GreaterThan(in.Threshold), nil
}

type thresholdReached struct{}

func (thresholdReached) Breached(in ConditionInput) (bool, error) {
	return in.Spent.GreaterThanOrEqual(in.Threshold), nil
}

// expressionCondition evaluates a boolean expression over the parameters
// spent, threshold and count.
type expressionCondition struct {
	source string
	expr   *govaluate.EvaluableExpression
}

func (c expressionCondition) Breached(in ConditionInput) (bool, error) {
	result, err := c.expr.Evaluate(map[string]interface{}{
		"spent":     in.Spent.InexactFloat64(),
		"threshold": in.Threshold.InexactFloat64(),
		"count":     float64(in.Count),
	})
	if err != nil {
		return false, fmt.Errorf("evaluate %q: %w", c.source, err)
	}
	breached, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression %q returned %T, want bool", c.source, result)
	}
	return breached, nil
}

// conditionCompiler builds conditions and keeps compiled expressions.
type conditionCompiler struct {
	exprs *cache.LRUCache[*govaluate.EvaluableExpression]
}

func newConditionCompiler() *conditionCompiler {
	return &conditionCompiler{exprs: cache.NewLRUCache[*govaluate.EvaluableExpression](256, time.Hour)}
}

// Compile returns the condition of r or a *core.ConfigurationError.
func (cc *conditionCompiler) Compile(r core.Rule) (Condition, error) {
	switch r.Condition {
	case core.ThresholdExceeded:
		return thresholdExceeded{}, nil
	case core.ThresholdReached:
		return thresholdReached{}, nil
	case core.Expression:
		expr, err := cc.exprs.GetOrLoad(r.Expression, func() (*govaluate.EvaluableExpression, error) {
			return govaluate.NewEvaluableExpression(r.Expression)
		})
		if err != nil {
			return nil, &core.ConfigurationError{Kind: "rule", EntityID: r.ID, Reason: fmt.Sprintf("bad expression %q: %v", r.Expression, err)}
		}
		return expressionCondition{source: r.Expression, expr: expr}, nil
	}
	return nil, &core.ConfigurationError{Kind: "rule", EntityID: r.ID, Reason: fmt.Sprintf("unknown condition type %q", r.Condition)}
}
