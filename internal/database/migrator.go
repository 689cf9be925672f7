package database

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// MigrationsTable records applied catalog schema versions.
const MigrationsTable = "catalog_schema_migrations"

// Migrator applies the catalog schema. The upsert conflict clauses depend on
// the unique constraints these migrations create.
type Migrator struct {
	m      *migrate.Migrate
	conn   *sql.DB
	logger zerolog.Logger
}

// NewMigrator creates a migrator over db reading SQL files from dir.
func NewMigrator(db *DB, dir string, logger zerolog.Logger) (*Migrator, error) {
	switch {
	case db == nil:
		return nil, errors.New("database is required")
	case db.pool == nil:
		return nil, errors.New("database pool not initialized")
	}

	files, err := migrationFS(dir)
	if err != nil {
		return nil, err
	}
	source, err := iofs.New(files, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations in %s: %w", dir, err)
	}

	conn := stdlib.OpenDBFromPool(db.pool)
	target, err := postgres.WithInstance(conn, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		_ = source.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", target)
	if err != nil {
		_ = source.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	logger = logger.With().Str("component", "migrator").Logger()
	m.Log = migrateLogger{logger}

	return &Migrator{m: m, conn: conn, logger: logger}, nil
}

// migrationFS opens dir as a filesystem after checking it is a directory.
func migrationFS(dir string) (fs.FS, error) {
	if dir == "" {
		return nil, errors.New("migrations path is required")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve migrations path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("migrations path validation failed: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("migrations path validation failed: %s is not a directory", abs)
	}
	return os.DirFS(abs), nil
}

// Up runs all pending migrations.
func (m *Migrator) Up() error {
	return m.apply("up", m.m.Up)
}

// Down rolls back all migrations.
func (m *Migrator) Down() error {
	return m.apply("down", m.m.Down)
}

// Steps runs n migrations; a negative n rolls back.
func (m *Migrator) Steps(n int) error {
	return m.apply(fmt.Sprintf("steps %+d", n), func() error { return m.m.Steps(n) })
}

func (m *Migrator) apply(op string, fn func() error) error {
	m.logger.Info().Str("op", op).Msg("applying migrations")
	err := fn()
	switch {
	case err == nil:
		m.logger.Info().Str("op", op).Msg("migrations applied")
		return nil
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, os.ErrNotExist):
		m.logger.Info().Str("op", op).Msg("schema already at target version")
		return nil
	default:
		return fmt.Errorf("migrations %s: %w", op, err)
	}
}

// Version returns the applied version and whether the last run left it dirty.
func (m *Migrator) Version() (uint, bool, error) {
	return m.m.Version()
}

// Force records version as applied without running anything.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing migration version")
	return m.m.Force(version)
}

// Close releases the source and the sql.DB wrapper. The pool itself stays open.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.m.Close()
	if err := m.conn.Close(); err != nil && dbErr == nil {
		dbErr = err
	}
	var errs []error
	if sourceErr != nil {
		errs = append(errs, fmt.Errorf("close migration source: %w", sourceErr))
	}
	if dbErr != nil {
		errs = append(errs, fmt.Errorf("close migration database: %w", dbErr))
	}
	return errors.Join(errs...)
}

// migrateLogger routes golang-migrate's progress lines into zerolog at debug.
type migrateLogger struct {
	logger zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}
