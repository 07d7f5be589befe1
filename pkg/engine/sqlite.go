// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite" // sqlite driver registered here
)

// DataFileName is the engine data file inside a database directory.
const DataFileName = "data.db"

// SQLite is an Engine backed by an embedded SQLite database. All state
// lives in a single file inside the database directory; the engine speaks
// the "sql" dialect only.
type SQLite struct {
	db   *sql.DB
	path string
}

var _ Engine = (*SQLite)(nil)

// OpenSQLite opens the engine data file inside dir, creating it on first
// open. The connection uses WAL journaling with a busy timeout so readers
// from the connection pool do not block each other.
func OpenSQLite(ctx context.Context, dir string) (*SQLite, error) {
	path := filepath.Join(dir, DataFileName)
	dsn := "file:" + path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(wal)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open engine at %s: %w", path, err)
	}

	// Touch the file now so a bad directory fails here, not on first query.
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("open engine at %s: %w", path, err)
	}

	return &SQLite{db: db, path: path}, nil
}

// Command executes a mutation and returns the affected record count.
func (e *SQLite) Command(ctx context.Context, dialect, text string) (int64, error) {
	if err := checkDialect(dialect); err != nil {
		return 0, err
	}

	res, err := e.db.ExecContext(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("command failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("affected count: %w", err)
	}
	return n, nil
}

// Query executes a read and returns a lazy cursor over the result rows.
func (e *SQLite) Query(ctx context.Context, dialect, text string) (Cursor, error) {
	if err := checkDialect(dialect); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return newRowsCursor(rows)
}

// Begin opens a transaction on the engine.
func (e *SQLite) Begin(ctx context.Context) (Tx, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &sqliteTx{tx: tx}, nil
}

// Close closes the engine and its connection pool.
func (e *SQLite) Close() error {
	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close engine at %s: %w", e.path, err)
	}
	return nil
}

// Path returns the engine data file path.
func (e *SQLite) Path() string { return e.path }

func checkDialect(dialect string) error {
	if dialect != DialectSQL {
		return fmt.Errorf("unsupported dialect %q: this engine speaks %q only", dialect, DialectSQL)
	}
	return nil
}

// sqliteTx adapts *sql.Tx to the Tx interface.
type sqliteTx struct {
	tx *sql.Tx
}

var _ Tx = (*sqliteTx)(nil)

func (t *sqliteTx) Command(ctx context.Context, dialect, text string) (int64, error) {
	if err := checkDialect(dialect); err != nil {
		return 0, err
	}

	res, err := t.tx.ExecContext(ctx, text)
	if err != nil {
		return 0, fmt.Errorf("command failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("affected count: %w", err)
	}
	return n, nil
}

// Query reads inside the transaction. Rows are drained before returning so
// the transaction's single connection is free for the next statement.
func (t *sqliteTx) Query(ctx context.Context, dialect, text string) (Cursor, error) {
	if err := checkDialect(dialect); err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	cur, err := newRowsCursor(rows)
	if err != nil {
		return nil, err
	}
	recs, err := Drain(cur)
	if err != nil {
		return nil, err
	}
	return NewSliceCursor(recs), nil
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		return fmt.Errorf("rollback transaction: %w", err)
	}
	return nil
}

// rowsCursor adapts *sql.Rows to the Cursor interface.
type rowsCursor struct {
	rows    *sql.Rows
	headers []string
	current Record
	err     error
}

var _ Cursor = (*rowsCursor)(nil)

func newRowsCursor(rows *sql.Rows) (*rowsCursor, error) {
	headers, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("read result columns: %w", err)
	}
	return &rowsCursor{rows: rows, headers: headers}, nil
}

func (c *rowsCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		if err := c.rows.Err(); err != nil {
			c.err = fmt.Errorf("iterate rows: %w", err)
		}
		return false
	}

	values := make([]any, len(c.headers))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := c.rows.Scan(ptrs...); err != nil {
		c.err = fmt.Errorf("scan row: %w", err)
		return false
	}

	// Byte slices alias driver buffers that the next Scan reuses.
	for i, v := range values {
		if b, ok := v.([]byte); ok {
			values[i] = string(b)
		}
	}

	c.current = NewRecord(c.headers, values)
	return true
}

func (c *rowsCursor) Record() Record { return c.current }

func (c *rowsCursor) Err() error { return c.err }

func (c *rowsCursor) Close() error { return c.rows.Close() }
