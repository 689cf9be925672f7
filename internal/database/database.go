// Package database owns the PostgreSQL pool the catalog writes through.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-catalog-service/internal/config"
	"github.com/helixir/paper-catalog-service/internal/domain"
)

// HealthCheckTimeout bounds the ping behind Health.
const HealthCheckTimeout = 5 * time.Second

// HealthStatus is the pool snapshot served by the readiness endpoint.
type HealthStatus struct {
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	TotalConns    int32  `json:"total_conns"`
	AcquiredConns int32  `json:"acquired_conns"`
	IdleConns     int32  `json:"idle_conns"`
	MaxConns      int32  `json:"max_conns"`
}

// DBTX is satisfied by *DB, *pgxpool.Pool, pgx.Tx and pgxmock.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// DB wraps the catalog's connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

var _ DBTX = (*DB)(nil)

func poolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pc.MaxConns, pc.MinConns = cfg.MaxConns, cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.HealthCheckPeriod = cfg.HealthCheckPeriod
	pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	return pc, nil
}

// Open creates the pool and pings it once.
func Open(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info().
		Str("target", cfg.Target()).
		Int32("max_conns", cfg.MaxConns).
		Msg("database pool ready")
	return &DB{pool: pool, logger: logger}, nil
}

// Connect opens the pool, retrying cfg.ConnectAttempts times with a fixed
// cfg.ConnectBackoff between attempts. When every attempt fails it returns a
// *domain.ConnectionUnavailableError wrapping the last cause.
func Connect(ctx context.Context, cfg *config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	return retryConnect(ctx, cfg.Target(), cfg.ConnectAttempts, cfg.ConnectBackoff, logger,
		func(ctx context.Context) (*DB, error) { return Open(ctx, cfg, logger) })
}

func retryConnect(
	ctx context.Context,
	target string,
	attempts int,
	backoff time.Duration,
	logger zerolog.Logger,
	open func(context.Context) (*DB, error),
) (*DB, error) {
	attempts = max(attempts, 1)
	unavailable := func(tried int, cause error) error {
		return &domain.ConnectionUnavailableError{Target: target, Attempts: tried, Cause: cause}
	}

	for attempt := 1; ; attempt++ {
		db, err := open(ctx)
		if err == nil {
			return db, nil
		}
		logger.Warn().Err(err).
			Str("target", target).
			Int("attempt", attempt).
			Int("max_attempts", attempts).
			Msg("database not reachable")
		if attempt == attempts {
			return nil, unavailable(attempt, err)
		}

		wait := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			wait.Stop()
			return nil, unavailable(attempt, ctx.Err())
		case <-wait.C:
		}
	}
}

// Close closes the pool. Safe on a zero DB.
func (db *DB) Close() {
	if db.pool == nil {
		return
	}
	db.pool.Close()
	db.logger.Info().Msg("database pool closed")
}

// Health pings the database and reports pool counters.
func (db *DB) Health(ctx context.Context) HealthStatus {
	stat := db.pool.Stat()
	h := HealthStatus{
		Status:        "healthy",
		TotalConns:    stat.TotalConns(),
		AcquiredConns: stat.AcquiredConns(),
		IdleConns:     stat.IdleConns(),
		MaxConns:      stat.MaxConns(),
	}

	ctx, cancel := context.WithTimeout(ctx, HealthCheckTimeout)
	defer cancel()
	if err := db.pool.Ping(ctx); err != nil {
		h.Status, h.Error = "unhealthy", err.Error()
	}
	return h
}

func (db *DB) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	return db.pool.Exec(ctx, sql, args...)
}

func (db *DB) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return db.pool.QueryRow(ctx, sql, args...)
}

func (db *DB) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return db.pool.Query(ctx, sql, args...)
}
