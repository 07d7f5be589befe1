// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package database

import (
	"github.com/kraklabs/berth/pkg/engine"
)

// ResultSet is a lazy, forward-only view over the records of one query.
// It is single-pass: once consumed it stays empty.
//
// A ResultSet does not keep its handle open. When the handle is closed,
// Next returns false and Err reports ErrClosed; the close itself never
// waits for open result sets.
type ResultSet struct {
	db   *Database
	cur  engine.Cursor
	err  error
	done bool
}

// Next advances to the next record, returning false at the end of the
// sequence or on failure. Check Err after a false return.
func (rs *ResultSet) Next() bool {
	if rs.err != nil || rs.done {
		return false
	}
	if rs.db.isClosed() {
		rs.err = ErrClosed
		rs.done = true
		_ = rs.cur.Close()
		return false
	}
	if !rs.cur.Next() {
		rs.done = true
		rs.err = rs.cur.Err()
		return false
	}
	return true
}

// Record returns the current record. Valid only after a true Next.
func (rs *ResultSet) Record() engine.Record {
	return rs.cur.Record()
}

// Err returns the first error encountered during iteration. It reports
// ErrClosed when the owning handle was closed mid-iteration.
func (rs *ResultSet) Err() error {
	return rs.err
}

// Close releases the underlying cursor early. Idempotent.
func (rs *ResultSet) Close() error {
	rs.done = true
	return rs.cur.Close()
}
