package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldDuration   = "duration_ms"
	FieldUserID     = "user_id"
	FieldRow        = "row"
	FieldBudgetID   = "budget_id"
	FieldRuleID     = "rule_id"
	FieldGoalID     = "goal_id"
	FieldPeriodKey  = "period_key"
	FieldCategoryID = "category_id"
	FieldTotalRows  = "total_rows"
	FieldSucceeded  = "succeeded"
	FieldFailed     = "failed"
	FieldSkipped    = "skipped"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentImport  = "import"
	ComponentEval    = "eval"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentCache   = "cache"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpIngest   = "ingest"
	OpEvaluate = "evaluate"
	OpSweep    = "sweep"
	OpEnqueue  = "enqueue"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

// WithError adds the error message; nil errors are ignored.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithUser(userID string) LogFields {
	f[FieldUserID] = userID
	return f
}

// WithImportCounts adds the counters of an import run.
func (f LogFields) WithImportCounts(total, succeeded, failed, skipped int) LogFields {
	f[FieldTotalRows] = total
	f[FieldSucceeded] = succeeded
	f[FieldFailed] = failed
	f[FieldSkipped] = skipped
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
