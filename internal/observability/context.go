package observability

import (
	"context"

	"github.com/rs/zerolog"
)

// Context keys for observability data.
type contextKey string

const (
	runIDKey    contextKey = "run_id"
	triggerKey  contextKey = "trigger"
	categoryKey contextKey = "category_id"
)

// WithRun adds the ingestion run id and what triggered it (cli, cron, startup) to the context.
func WithRun(ctx context.Context, runID, trigger string) context.Context {
	ctx = context.WithValue(ctx, runIDKey, runID)
	ctx = context.WithValue(ctx, triggerKey, trigger)
	return ctx
}

// RunFromContext retrieves the run id and trigger from context.
// Returns empty strings if not present.
func RunFromContext(ctx context.Context) (runID, trigger string) {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		runID = v
	}
	if v, ok := ctx.Value(triggerKey).(string); ok {
		trigger = v
	}
	return runID, trigger
}

// WithCategory adds the category currently being ingested to the context.
func WithCategory(ctx context.Context, alexCategoryID string) context.Context {
	return context.WithValue(ctx, categoryKey, alexCategoryID)
}

// CategoryFromContext retrieves the category id from context.
func CategoryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(categoryKey).(string); ok {
		return v
	}
	return ""
}

// LoggerFromContext enriches logger with whatever run and category data ctx carries.
func LoggerFromContext(ctx context.Context, logger zerolog.Logger) zerolog.Logger {
	lc := logger.With()
	if runID, trigger := RunFromContext(ctx); runID != "" {
		lc = lc.Str("run_id", runID)
		if trigger != "" {
			lc = lc.Str("trigger", trigger)
		}
	}
	if cid := CategoryFromContext(ctx); cid != "" {
		lc = lc.Str("category_id", cid)
	}
	return lc.Logger()
}
