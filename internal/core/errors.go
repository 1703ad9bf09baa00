package core

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrBatchTooLarge   = errors.New("batch exceeds row limit")
	ErrBudgetArchived  = errors.New("budget is archived")
	ErrInvalidCurrency = errors.New("invalid currency code")
	ErrMissingUser     = errors.New("missing user id")
)

// RowError is a recoverable failure of one import row.
type RowError struct {
	Row    int
	Reason string
	Err    error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("Row %d: %s", e.Row, e.Reason)
}

func (e *RowError) Unwrap() error { return e.Err }

// StorageError wraps a store failure for a single write.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// EvaluationError is an aggregation or evaluation failure of one budget,
// rule or goal. It never stops the evaluation of other entities.
type EvaluationError struct {
	Kind     string
	EntityID uuid.UUID
	Err      error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluate %s %s: %v", e.Kind, e.EntityID, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// ConfigurationError marks an invalid budget, rule or goal definition.
type ConfigurationError struct {
	Kind     string
	EntityID uuid.UUID
	Reason   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %s: %s", e.Kind, e.EntityID, e.Reason)
}
