package backend

import (
	"context"
	"time"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/ingest"
	"fintrack/internal/ports"
	"fintrack/internal/services"
	"fintrack/internal/worker"
)

// Backend is the wired pipeline: one store and the services running on it.
type Backend struct {
	Store       ports.Store
	Categorizer *ingest.Categorizer
	Budgets     *services.BudgetService
	Rules       *services.RuleService
	Goals       *services.GoalService
	Alerts      *services.AlertService
	Sweeper     *services.Sweeper
	Ingestion   *services.IngestionService
	Worker      *worker.EvaluationWorker
	Caches      *cache.Manager

	// AMQP is nil when no broker is configured or it was unreachable.
	AMQP *amqp.Client
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Backend *Backend
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// AMQP, optional
	AMQPURL        string
	AMQPExchange   string
	AMQPEvalQueue  string
	AMQPFactsQueue string
	// RequireAMQP turns an unreachable broker into an error instead of a
	// warning.
	RequireAMQP bool

	// Ingestion
	DefaultCurrency   string
	DateFormat        string
	MaxRows           int
	SynonymsFile      string
	FallbackExpense   string
	FallbackIncome    string
	CategoryCacheSize int
	CategoryCacheTTL  time.Duration

	EvalConcurrency int
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
