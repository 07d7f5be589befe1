// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package engine

import "context"

// DialectSQL is the dialect name understood by the built-in SQLite engine.
const DialectSQL = "sql"

// Engine is the interface to the underlying storage engine. Statement text
// passes through opaquely; parsing and execution belong to the engine.
type Engine interface {
	// Command executes a mutation and returns the number of affected records.
	Command(ctx context.Context, dialect, text string) (int64, error)

	// Query executes a read and returns a lazy forward-only cursor.
	Query(ctx context.Context, dialect, text string) (Cursor, error)

	// Begin opens a transaction. Work issued through the returned Tx is
	// atomic: Commit applies all of it, Rollback none of it.
	Begin(ctx context.Context) (Tx, error)

	// Close releases engine resources.
	Close() error
}

// Tx is one transaction on an Engine. A Tx is not safe for concurrent use;
// callers serialize access to it.
type Tx interface {
	Command(ctx context.Context, dialect, text string) (int64, error)
	Query(ctx context.Context, dialect, text string) (Cursor, error)
	Commit() error
	Rollback() error
}

// Cursor is a lazy, forward-only, single-pass sequence of records. Once
// consumed it stays empty; it cannot be restarted.
type Cursor interface {
	// Next advances to the next record, returning false when the sequence
	// is exhausted or iteration failed. Check Err after a false return.
	Next() bool

	// Record returns the current record. Valid only after a true Next.
	Record() Record

	// Err returns the first error encountered during iteration, if any.
	Err() error

	// Close releases the cursor early. Safe to call more than once.
	Close() error
}

// Drain consumes cur to the end and returns its records. The cursor is
// closed regardless of outcome.
func Drain(cur Cursor) ([]Record, error) {
	defer cur.Close()

	var recs []Record
	for cur.Next() {
		recs = append(recs, cur.Record())
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return recs, nil
}

// SliceCursor is a Cursor over records already held in memory. It backs
// query results that had to be materialized, such as rows received over the
// wire or rows read inside a transaction scope.
type SliceCursor struct {
	recs []Record
	idx  int
}

// NewSliceCursor returns a cursor positioned before the first of recs.
func NewSliceCursor(recs []Record) *SliceCursor {
	return &SliceCursor{recs: recs}
}

// Next advances to the next record.
func (c *SliceCursor) Next() bool {
	if c.idx >= len(c.recs) {
		return false
	}
	c.idx++
	return true
}

// Record returns the current record.
func (c *SliceCursor) Record() Record {
	return c.recs[c.idx-1]
}

// Err always returns nil; in-memory iteration cannot fail.
func (c *SliceCursor) Err() error { return nil }

// Close discards the remaining records.
func (c *SliceCursor) Close() error {
	c.idx = len(c.recs)
	return nil
}

var _ Cursor = (*SliceCursor)(nil)
