package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrIDTaken is returned when a card id reassignment collides with a live card.
var ErrIDTaken = errors.New("card id already in use")

// ErrNotFound is returned when a card or note does not exist.
var ErrNotFound = errors.New("not found")

// openMaxElapsed bounds how long Open waits for a collection locked by another process.
const openMaxElapsed = 10 * time.Second

// DB represents a wrapper around the collection's SQL connection.
type DB struct {
	conn *sql.DB
	path string
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open creates a new database connection and ensures the schema is present.
// A collection held locked by another process is retried until openMaxElapsed.
func Open(ctx context.Context, dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer; one connection keeps transactions and reads on the same handle.
	conn.SetMaxOpenConns(1)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = openMaxElapsed
	err = backoff.Retry(func() error {
		if err := conn.PingContext(ctx); err != nil {
			return classifyOpenError(fmt.Errorf("failed to connect to database: %w", err))
		}
		if _, err := conn.ExecContext(ctx, schema); err != nil {
			return classifyOpenError(fmt.Errorf("failed to apply schema: %w", err))
		}
		return nil
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{conn: conn, path: dsn}, nil
}

func classifyOpenError(err error) error {
	if isBusy(err) {
		slog.Debug("collection is locked, retrying", "error", err)
		return err
	}
	return backoff.Permanent(err)
}

// Path returns the dsn the database was opened with.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// WithTx runs fn inside a transaction. The transaction commits when fn
// returns nil and rolls back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func sqliteCode(err error) (int, bool) {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code(), true
	}
	return 0, false
}

// isUniqueViolation reports whether err is a PRIMARY KEY or UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, code == sqlite3.SQLITE_CONSTRAINT_UNIQUE:
			return true
		case code&0xff != sqlite3.SQLITE_CONSTRAINT:
			return false
		}
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	if code, ok := sqliteCode(err); ok {
		return code&0xff == sqlite3.SQLITE_BUSY || code&0xff == sqlite3.SQLITE_LOCKED
	}
	return strings.Contains(err.Error(), "database is locked")
}
