package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/paper-catalog-service/internal/domain"
)

// lockConn is what the advisory lock needs from a dedicated connection.
type lockConn interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// AdvisoryLock is a held session-level advisory lock. It pins one pooled
// connection until Release is called.
type AdvisoryLock struct {
	key     int64
	conn    lockConn
	release func()
}

func (l *AdvisoryLock) Key() int64 { return l.key }

// Release unlocks the key and hands the connection back. Releasing twice, or
// releasing a nil lock, does nothing.
func (l *AdvisoryLock) Release(ctx context.Context) error {
	if l == nil || l.conn == nil {
		return nil
	}
	conn, release := l.conn, l.release
	l.conn, l.release = nil, nil
	if release != nil {
		defer release()
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", l.key); err != nil {
		return fmt.Errorf("release advisory lock %d: %w", l.key, err)
	}
	return nil
}

// TryAdvisoryLock takes the session advisory lock for key on a dedicated
// connection. It returns domain.ErrLockHeld when another session owns it.
func (db *DB) TryAdvisoryLock(ctx context.Context, key int64) (*AdvisoryLock, error) {
	conn, err := db.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection for advisory lock: %w", err)
	}
	lock, err := lockOn(ctx, conn, key, conn.Release)
	if err != nil {
		conn.Release()
		return nil, err
	}
	return lock, nil
}

func lockOn(ctx context.Context, conn lockConn, key int64, release func()) (*AdvisoryLock, error) {
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		return nil, fmt.Errorf("query advisory lock %d: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("advisory lock %d: %w", key, domain.ErrLockHeld)
	}
	return &AdvisoryLock{key: key, conn: conn, release: release}, nil
}

// IsLockHeld reports whether err means another process holds the lock.
func IsLockHeld(err error) bool {
	return errors.Is(err, domain.ErrLockHeld)
}
