package observability

import (
	"cmp"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig selects level, encoding and destination of the process logger.
type LoggingConfig struct {
	Level      string // trace, debug, info, warn, error, fatal or panic; anything else is info
	Format     string // json, or console/pretty for human output
	Output     string // stdout or stderr
	AddSource  bool   // annotate entries with file:line
	TimeFormat string // defaults to RFC3339
}

// NewLogger builds the process logger and sets the zerolog global level to match.
func NewLogger(cfg LoggingConfig) zerolog.Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return buildLogger(cfg, out)
}

func buildLogger(cfg LoggingConfig, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = cmp.Or(cfg.TimeFormat, time.RFC3339)

	if f := strings.ToLower(cfg.Format); f == "console" || f == "pretty" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: zerolog.TimeFieldFormat}
	}

	builder := zerolog.New(out).With().Timestamp()
	if cfg.AddSource {
		builder = builder.Caller()
	}

	level := levelOf(cfg.Level)
	zerolog.SetGlobalLevel(level)
	return builder.Logger().Level(level)
}

// levelOf maps a configured level name to a zerolog level. "warning" is
// accepted as an alias; unknown and empty names mean info.
func levelOf(name string) zerolog.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" || level == zerolog.NoLevel || level == zerolog.Disabled {
		return zerolog.InfoLevel
	}
	return level
}

// WithRunContext tags a logger with the ingestion run id and trigger.
func WithRunContext(logger zerolog.Logger, runID, trigger string) zerolog.Logger {
	return logger.With().Str("run_id", runID).Str("trigger", trigger).Logger()
}

// WithCategoryContext tags a logger with the category being ingested.
func WithCategoryContext(logger zerolog.Logger, alexCategoryID, name string) zerolog.Logger {
	return logger.With().Str("category_id", alexCategoryID).Str("category", name).Logger()
}

func WithWorkContext(logger zerolog.Logger, alexPaperID string, year int) zerolog.Logger {
	return logger.With().Str("alex_paper_id", alexPaperID).Int("year", year).Logger()
}

func WithTableContext(logger zerolog.Logger, table, file string) zerolog.Logger {
	return logger.With().Str("table", table).Str("file", file).Logger()
}
