// Package repository provides PostgreSQL data access for the paper catalog.
//
// Two repositories share the DBTX abstraction:
//
//   - CatalogRepository: the upsert writer's statements, keyed by OpenAlex ids
//   - SnapshotRepository: full-table scans for export and external-key writes for import
//
// Every write is a single statement and commits on its own when run against the
// pool. A pgx.Tx satisfies DBTX too.
//
//	db, _ := database.Connect(ctx, &cfg.Database, logger)
//	catalog := repository.NewPgCatalogRepository(db)
//	snapshots := repository.NewPgSnapshotRepository(db)
package repository

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/paper-catalog-service/internal/database"
	"github.com/helixir/paper-catalog-service/internal/domain"
)

// DBTX is the database interface supporting both pool and transaction contexts.
type DBTX = database.DBTX

// PostgreSQL SQLSTATE codes the repositories translate.
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// IsUnresolvedReference reports whether err is a not-null violation, which is
// how an external-key subselect that found no row surfaces.
func IsUnresolvedReference(err error) bool {
	var cve *domain.ConstraintViolationError
	return errors.As(err, &cve) && cve.Code == pgNotNullViolation
}

// writeError wraps a failed write, turning integrity violations into
// *domain.ConstraintViolationError.
func writeError(table, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgNotNullViolation, pgForeignKeyViolation, pgCheckViolation:
			constraint := pgErr.ConstraintName
			if constraint == "" {
				constraint = pgErr.ColumnName
			}
			return &domain.ConstraintViolationError{
				Table:      table,
				Constraint: constraint,
				Code:       pgErr.Code,
				Cause:      err,
			}
		}
	}
	return fmt.Errorf("failed to %s %s: %w", op, table, err)
}
