// Package main applies and rolls back the paper catalog schema migrations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-catalog-service/internal/config"
	"github.com/helixir/paper-catalog-service/internal/database"
	"github.com/helixir/paper-catalog-service/internal/observability"
)

const connectTimeout = 2 * time.Minute

var errNoAction = errors.New("no action specified")

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// action is the single migration step selected on the command line.
type action struct {
	kind  string // up, down, steps, version or force
	steps int
	force int
	path  string
}

// schema is the part of database.Migrator an action drives.
type schema interface {
	Up() error
	Down() error
	Steps(n int) error
	Force(version int) error
	Version() (uint, bool, error)
}

var _ schema = (*database.Migrator)(nil)

func parseAction(args []string, usage io.Writer) (action, error) {
	flags := flag.NewFlagSet("migrate", flag.ContinueOnError)
	flags.SetOutput(usage)
	up := flags.Bool("up", false, "Run all pending migrations")
	down := flags.Bool("down", false, "Roll back all migrations")
	steps := flags.Int("steps", 0, "Run N migration steps (positive=up, negative=down)")
	version := flags.Bool("version", false, "Print the current migration version")
	force := flags.Int("force", -1, "Force set migration version (use to recover from failed migrations)")
	path := flags.String("path", "", "Override the migrations directory path")
	if err := flags.Parse(args); err != nil {
		return action{}, err
	}

	var selected []string
	for kind, set := range map[string]bool{
		"up":      *up,
		"down":    *down,
		"steps":   *steps != 0,
		"version": *version,
		"force":   *force >= 0,
	} {
		if set {
			selected = append(selected, kind)
		}
	}
	switch len(selected) {
	case 0:
		flags.Usage()
		fmt.Fprintln(usage, "\nPlease specify one of: -up, -down, -steps N, -version, -force V")
		return action{}, errNoAction
	case 1:
		return action{kind: selected[0], steps: *steps, force: *force, path: *path}, nil
	default:
		return action{}, errors.New("specify only one action at a time")
	}
}

func run(args []string) error {
	act, err := parseAction(args, os.Stderr)
	if err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
	}).With().Str("component", "migrate").Logger()

	dir := cfg.Database.MigrationPath
	if act.path != "" {
		dir = act.path
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	migrator, err := database.NewMigrator(db, dir, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Error().Err(err).Msg("failed to close migrator")
		}
	}()

	return apply(act, migrator, logger)
}

// apply runs act and then logs the resulting schema version.
func apply(act action, s schema, logger zerolog.Logger) error {
	var err error
	switch act.kind {
	case "up":
		logger.Info().Msg("running all pending migrations")
		err = s.Up()
	case "down":
		logger.Warn().Msg("rolling back all migrations")
		err = s.Down()
	case "steps":
		logger.Info().Int("steps", act.steps).Msg("running migration steps")
		err = s.Steps(act.steps)
	case "force":
		logger.Warn().Int("version", act.force).Msg("forcing migration version")
		err = s.Force(act.force)
	case "version":
	default:
		return errNoAction
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", act.kind, err)
	}

	v, dirty, err := s.Version()
	if err != nil {
		logger.Warn().Err(err).Msg("could not determine migration version")
		return nil
	}
	logger.Info().Uint("version", v).Bool("dirty", dirty).Msg("current migration version")
	return nil
}
