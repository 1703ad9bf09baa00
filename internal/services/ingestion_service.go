package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/currency"
	"fintrack/internal/ingest"
	"fintrack/internal/ports"

	"github.com/google/uuid"
)

// DefaultMaxRows caps a batch when neither the options nor the service
// configuration set a limit.
const DefaultMaxRows = 10000

// RowState is the lifecycle position of one import row.
type RowState string

const (
	RowPending          RowState = "PENDING"
	RowValidated        RowState = "VALIDATED"
	RowDuplicateSkipped RowState = "DUPLICATE_SKIPPED"
	RowCategorized      RowState = "CATEGORIZED"
	RowWritten          RowState = "WRITTEN"
	RowFailed           RowState = "FAILED"
)

// ImportOptions come with each batch from the upload front end.
type ImportOptions struct {
	DefaultCurrency string
	DateFormat      string
	AutoCategorize  bool
	SkipDuplicates  bool
	// MaxRows overrides the configured batch limit when positive.
	MaxRows int
}

// RowOutcome is the final state of one row.
type RowOutcome struct {
	Row           int
	State         RowState
	TransactionID uuid.UUID
	CategoryID    uuid.UUID
	Method        ingest.Method
	Message       string
}

// ImportResult accumulates the outcome of a batch. TotalRows always equals
// SuccessfulTransactions + FailedTransactions + SkippedDuplicates.
type ImportResult struct {
	TotalRows              int
	SuccessfulTransactions int
	FailedTransactions     int
	SkippedDuplicates      int
	Errors                 []string
	Warnings               []string
	Rows                   []RowOutcome
}

func (r *ImportResult) fail(out *RowOutcome, msg string) {
	out.State = RowFailed
	out.Message = msg
	r.FailedTransactions++
	r.Errors = append(r.Errors, msg)
}

func (r *ImportResult) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// IngestionConfig holds the service-wide defaults options fall back to.
type IngestionConfig struct {
	DefaultCurrency string
	DateFormat      string
	MaxRows         int
}

// IngestionService turns a batch of raw rows into ledger entries and then
// re-evaluates everything the batch touched.
type IngestionService struct {
	store       ports.Store
	categorizer *ingest.Categorizer
	writer      *TransactionWriter
	budgets     *BudgetService
	rules       *RuleService
	goals       *GoalService
	publisher   ports.FactPublisher
	currencies  *currency.Registry
	cfg         IngestionConfig
	now         func() time.Time
}

// IngestionDeps wires the collaborators of the orchestrator. Publisher and
// Currencies are optional.
type IngestionDeps struct {
	Store       ports.Store
	Categorizer *ingest.Categorizer
	Budgets     *BudgetService
	Rules       *RuleService
	Goals       *GoalService
	Publisher   ports.FactPublisher
	Currencies  *currency.Registry
}

func NewIngestionService(deps IngestionDeps, cfg IngestionConfig) *IngestionService {
	if deps.Currencies == nil {
		deps.Currencies = currency.Default()
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = currency.DefaultCode
	}
	if cfg.DateFormat == "" {
		cfg.DateFormat = core.DateLayout
	}
	if cfg.MaxRows <= 0 {
		cfg.MaxRows = DefaultMaxRows
	}
	return &IngestionService{
		store:       deps.Store,
		categorizer: deps.Categorizer,
		writer:      NewTransactionWriter(deps.Store),
		budgets:     deps.Budgets,
		rules:       deps.Rules,
		goals:       deps.Goals,
		publisher:   deps.Publisher,
		currencies:  deps.Currencies,
		cfg:         cfg,
		now:         time.Now,
	}
}

// affected collects the entities a batch touched, each once, in first-seen
// order.
type affected struct {
	budgets    []uuid.UUID
	budgetSeen map[uuid.UUID]struct{}
	categories map[uuid.UUID]struct{}
	written    []core.Transaction
}

func newAffected() *affected {
	return &affected{budgetSeen: make(map[uuid.UUID]struct{}), categories: make(map[uuid.UUID]struct{})}
}

func (a *affected) add(res WriteResult) {
	a.written = append(a.written, res.Transaction)
	if res.Transaction.CategoryID != nil {
		a.categories[*res.Transaction.CategoryID] = struct{}{}
	}
	for _, id := range res.Budgets {
		if _, ok := a.budgetSeen[id]; ok {
			continue
		}
		a.budgetSeen[id] = struct{}{}
		a.budgets = append(a.budgets, id)
	}
}

// rules returns the rules whose category filter is unset or matches a
// written category and whose current window holds a written date.
func (a *affected) rules(rules []core.Rule, at time.Time) []core.Rule {
	var out []core.Rule
	for _, r := range rules {
		if r.CategoryID != nil {
			if _, ok := a.categories[*r.CategoryID]; !ok {
				continue
			}
		}
		window, err := Window(r, at)
		if err != nil {
			// Evaluation reports the configuration error.
			out = append(out, r)
			continue
		}
		for _, t := range a.written {
			if !window.Range().Contains(t.Date) {
				continue
			}
			if r.CategoryID == nil || (t.CategoryID != nil && *t.CategoryID == *r.CategoryID) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// Ingest validates, deduplicates, categorizes and writes rows in order, then
// evaluates each affected budget, rule and goal once. The returned error is
// reserved for batch-level rejections; row failures land in the result.
func (s *IngestionService) Ingest(ctx context.Context, userID uuid.UUID, rows []ingest.RawRow, opts ImportOptions) (ImportResult, error) {
	if userID == uuid.Nil {
		return ImportResult{}, core.ErrMissingUser
	}
	limit := s.cfg.MaxRows
	if opts.MaxRows > 0 {
		limit = opts.MaxRows
	}
	if len(rows) > limit {
		return ImportResult{}, fmt.Errorf("%w: %d rows, limit %d", core.ErrBatchTooLarge, len(rows), limit)
	}
	defCurrency := strings.ToUpper(strings.TrimSpace(opts.DefaultCurrency))
	if defCurrency == "" {
		defCurrency = s.cfg.DefaultCurrency
	}
	if !s.currencies.IsValid(defCurrency) {
		return ImportResult{}, fmt.Errorf("%w: default currency %q", core.ErrInvalidCurrency, opts.DefaultCurrency)
	}
	layout := opts.DateFormat
	if layout == "" {
		layout = s.cfg.DateFormat
	}

	result := ImportResult{TotalRows: len(rows), Rows: make([]RowOutcome, 0, len(rows))}
	if len(rows) == 0 {
		return result, nil
	}
	if err := s.store.EnsureUser(ctx, userID); err != nil {
		return ImportResult{}, &core.StorageError{Op: "ensure user", Err: err}
	}

	started := s.now()
	slog.InfoContext(ctx, "Import started", "user_id", userID, "rows", len(rows), "skip_duplicates", opts.SkipDuplicates)

	validator := ingest.NewValidator(s.currencies, layout, defCurrency)
	dedup := ingest.NewDuplicateDetector(s.store)
	touched := newAffected()

	for i, raw := range rows {
		if raw.Row == 0 {
			raw.Row = i + 1
		}
		out := s.processRow(ctx, userID, raw, opts, validator, dedup, touched, &result)
		result.Rows = append(result.Rows, out)
	}

	s.evaluateAffected(ctx, userID, touched, &result)

	slog.InfoContext(ctx, "Import completed",
		"user_id", userID,
		"total", result.TotalRows,
		"successful", result.SuccessfulTransactions,
		"failed", result.FailedTransactions,
		"skipped_duplicates", result.SkippedDuplicates,
		"warnings", len(result.Warnings),
		"duration", s.now().Sub(started))
	return result, nil
}

func (s *IngestionService) processRow(ctx context.Context, userID uuid.UUID, raw ingest.RawRow, opts ImportOptions,
	validator *ingest.Validator, dedup *ingest.DuplicateDetector, touched *affected, result *ImportResult) RowOutcome {
	out := RowOutcome{Row: raw.Row, State: RowPending}

	if err := ctx.Err(); err != nil {
		result.fail(&out, fmt.Sprintf("Row %d: %v", raw.Row, err))
		return out
	}

	c, err := validator.Validate(raw)
	if err != nil {
		result.fail(&out, err.Error())
		slog.DebugContext(ctx, "Row rejected", "row", raw.Row, "error", err)
		return out
	}
	out.State = RowValidated

	dup, err := dedup.IsDuplicate(ctx, userID, c.Date, c.Amount, c.Type, c.Description)
	if err != nil {
		result.fail(&out, fmt.Sprintf("Row %d: %v", c.Row, err))
		return out
	}
	if dup {
		if opts.SkipDuplicates {
			out.State = RowDuplicateSkipped
			out.Message = fmt.Sprintf("Row %d: duplicate transaction skipped", c.Row)
			result.SkippedDuplicates++
			return out
		}
		result.warn("Row %d: duplicate transaction imported", c.Row)
	}

	assignment, err := s.assign(ctx, userID, c, opts)
	if err != nil {
		result.fail(&out, fmt.Sprintf("Row %d: categorization failed: %v", c.Row, err))
		return out
	}
	out.State = RowCategorized
	out.CategoryID = assignment.CategoryID
	out.Method = assignment.Method
	if assignment.Method == ingest.MethodFallback {
		result.warn("Row %d: no category matched %q, assigned %q", c.Row, c.Description, assignment.Name)
	}

	written, err := s.writer.Write(ctx, userID, c, assignment.CategoryID)
	if err != nil {
		result.fail(&out, fmt.Sprintf("Row %d: %v", c.Row, err))
		slog.WarnContext(ctx, "Row write failed", "row", c.Row, "error", err)
		return out
	}
	dedup.Remember(userID, c.Date, c.Amount, c.Type, c.Description)
	touched.add(written)

	out.State = RowWritten
	out.TransactionID = written.Transaction.ID
	result.SuccessfulTransactions++
	return out
}

// assign resolves an explicit label, or categorizes when enabled. Without
// either the transaction stays uncategorized.
func (s *IngestionService) assign(ctx context.Context, userID uuid.UUID, c ingest.Candidate, opts ImportOptions) (ingest.Assignment, error) {
	if s.categorizer == nil {
		return ingest.Assignment{}, nil
	}
	if c.CategoryLabel != "" {
		return s.categorizer.Resolve(ctx, userID, c.CategoryLabel, c.Type)
	}
	if !opts.AutoCategorize {
		return ingest.Assignment{}, nil
	}
	return s.categorizer.Categorize(ctx, userID, c.Description, c.Type)
}

func (s *IngestionService) evaluateAffected(ctx context.Context, userID uuid.UUID, touched *affected, result *ImportResult) {
	if len(touched.written) == 0 {
		return
	}
	at := s.now()

	if s.budgets != nil {
		for _, id := range touched.budgets {
			if _, err := s.budgets.EvaluateBudget(ctx, id); err != nil {
				slog.WarnContext(ctx, "Budget evaluation failed", "budget_id", id, "error", err)
				result.warn("Budget %s evaluation failed: %v", id, err)
			}
		}
	}

	var ruleResults []RuleResult
	if s.rules != nil {
		rules, err := s.store.ListActiveRules(ctx, userID)
		if err != nil {
			slog.WarnContext(ctx, "Rule lookup failed", "user_id", userID, "error", err)
			result.warn("Rule evaluation skipped: %v", err)
		}
		for _, r := range touched.rules(rules, at) {
			res, err := s.rules.EvaluateRule(ctx, r, at)
			if err != nil {
				slog.WarnContext(ctx, "Rule evaluation failed", "rule_id", r.ID, "error", err)
				result.warn("Rule %q evaluation failed: %v", r.Name, err)
				continue
			}
			ruleResults = append(ruleResults, res)
		}
	}

	if s.goals != nil {
		goals, err := s.store.ListOpenGoals(ctx, userID)
		if err != nil {
			slog.WarnContext(ctx, "Goal lookup failed", "user_id", userID, "error", err)
			result.warn("Goal update skipped: %v", err)
		}
		for _, id := range MatchingGoals(goals, touched.written) {
			if _, err := s.goals.ApplyTransactions(ctx, id, touched.written); err != nil {
				slog.WarnContext(ctx, "Goal update failed", "goal_id", id, "error", err)
				result.warn("Goal %s update failed: %v", id, err)
			}
		}
	}

	if err := PublishFacts(ctx, s.store, s.publisher, userID, at, ruleResults); err != nil {
		slog.WarnContext(ctx, "Spending facts not published", "user_id", userID, "error", err)
		result.warn("Spending facts not published: %v", err)
	}
}
