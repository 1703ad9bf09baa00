package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fintrack/internal/amqp"
	"fintrack/internal/cache"
	"fintrack/internal/ingest"
	"fintrack/internal/ports"
	"fintrack/internal/services"
	"fintrack/internal/storage"
	"fintrack/internal/storage/memory"
	"fintrack/internal/worker"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend opens the store, connects to AMQP when configured and wires
// every service on top of them.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	synonyms, err := ingest.LoadSynonyms(config.SynonymsFile)
	if err != nil {
		return nil, fmt.Errorf("load category synonyms: %w", err)
	}

	store, closeStore, err := f.createStore(config)
	if err != nil {
		return nil, err
	}

	amqpClient, err := f.createAMQPClient(config)
	if err != nil {
		closeStore()
		return nil, err
	}

	b := wire(store, amqpClient, synonyms, config)

	f.logger.InfoContext(ctx, "Initialized backend",
		"type", config.Type,
		"amqp_enabled", amqpClient != nil,
		"synonyms", synonyms.Len())

	cleanup := func() error {
		var errs []error
		if amqpClient != nil {
			errs = append(errs, amqpClient.Close())
		}
		errs = append(errs, closeStore())
		return errors.Join(errs...)
	}

	return &BackendResult{Backend: b, Cleanup: cleanup}, nil
}

func (f *DefaultFactory) createStore(config Config) (ports.Store, func() error, error) {
	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store", "db_path", config.SQLiteDBPath)
		return repo, repo.Close, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory store")
		return memory.New(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createAMQPClient(config Config) (*amqp.Client, error) {
	if config.AMQPURL == "" {
		return nil, nil
	}

	client, err := amqp.NewClient(amqp.Config{
		URL:        config.AMQPURL,
		Exchange:   config.AMQPExchange,
		EvalQueue:  config.AMQPEvalQueue,
		FactsQueue: config.AMQPFactsQueue,
	})
	if err != nil {
		if config.RequireAMQP {
			return nil, fmt.Errorf("failed to initialize AMQP client: %w", err)
		}
		f.logger.Warn("Failed to initialize AMQP client, continuing without messaging", "error", err)
		return nil, nil
	}

	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"eval_queue", config.AMQPEvalQueue,
		"facts_queue", config.AMQPFactsQueue)
	return client, nil
}

// wire builds the service graph. Budgets, rules and goals share one set of
// entity locks so concurrent evaluations of the same entity serialize.
func wire(store ports.Store, amqpClient *amqp.Client, synonyms *ingest.SynonymTable, config Config) *Backend {
	var publisher ports.FactPublisher
	if amqpClient != nil {
		publisher = amqpClient
	}

	locks := services.NewEntityLocks()
	budgets := services.NewBudgetService(store, locks)
	rules := services.NewRuleService(store, locks)
	goals := services.NewGoalService(store, locks, config.DefaultCurrency)

	categorizer := ingest.NewCategorizer(store, ingest.CategorizerConfig{
		Synonyms:        synonyms,
		FallbackExpense: config.FallbackExpense,
		FallbackIncome:  config.FallbackIncome,
		CacheSize:       config.CategoryCacheSize,
		CacheTTL:        config.CategoryCacheTTL,
	})
	caches := cache.NewManager()
	caches.Register(categorizer.Cache())

	concurrency := config.EvalConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	sweeper := services.NewSweeper(store, budgets, rules, publisher, concurrency)

	ingestion := services.NewIngestionService(services.IngestionDeps{
		Store:       store,
		Categorizer: categorizer,
		Budgets:     budgets,
		Rules:       rules,
		Goals:       goals,
		Publisher:   publisher,
	}, services.IngestionConfig{
		DefaultCurrency: config.DefaultCurrency,
		DateFormat:      config.DateFormat,
		MaxRows:         config.MaxRows,
	})

	w := worker.NewEvaluationWorker(worker.Deps{
		Store:     store,
		Budgets:   budgets,
		Rules:     rules,
		Goals:     goals,
		Sweeper:   sweeper,
		Publisher: publisher,
	})

	return &Backend{
		Store:       store,
		Categorizer: categorizer,
		Budgets:     budgets,
		Rules:       rules,
		Goals:       goals,
		Alerts:      services.NewAlertService(store),
		Sweeper:     sweeper,
		Ingestion:   ingestion,
		Worker:      w,
		Caches:      caches,
		AMQP:        amqpClient,
	}
}
