package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLite wraps a database/sql handle opened with the pure-Go modernc driver.
type SQLite struct {
	*sql.DB
}

// OpenSQLite opens path (":memory:" or a file path) with foreign keys and a busy timeout.
// A single connection is used, so transactions are serialized by the pool and an in-memory
// database is shared by every caller.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &SQLite{DB: conn}, nil
}

// WithTx mirrors Pool.WithTx for database/sql.
func (s *SQLite) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func SQLiteReadyCheck(s *SQLite) func(context.Context) error {
	return func(ctx context.Context) error {
		if s == nil || s.DB == nil {
			return errors.New("db not configured")
		}
		return s.PingContext(ctx)
	}
}
