// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

// Package engine defines the interface to the storage engine that backs a
// berth database, and provides the built-in SQLite implementation.
//
// The coordination layer above this package (pkg/database, pkg/server) does
// not parse, validate or plan the statements it receives. Command and query
// text travels through Engine opaquely; everything the text means belongs to
// the engine behind the interface.
//
// # The Engine Interface
//
// An Engine exposes four operations:
//
//   - Command: execute a mutation, returning the number of affected records
//   - Query: execute a read, returning a lazy forward-only Cursor
//   - Begin: open a transaction whose Tx mirrors Command/Query
//   - Close: release engine resources
//
// Both Command and Query take a dialect name alongside the statement text.
// An engine accepts the dialects it understands and rejects the rest; the
// built-in engine speaks "sql" only.
//
// # Records and Cursors
//
// Query results come back as a Cursor, a single-pass sequence of Record
// values. Property lookup on a Record fails soft: asking for a property the
// record does not carry yields nil rather than an error, which keeps
// schema-flexible documents cheap to consume:
//
//	cur, err := eng.Query(ctx, engine.DialectSQL, `SELECT id, name FROM item`)
//	if err != nil {
//	    return err
//	}
//	defer cur.Close()
//	for cur.Next() {
//	    rec := cur.Record()
//	    fmt.Println(rec.Property("name"), rec.Property("missing")) // value, <nil>
//	}
//	if err := cur.Err(); err != nil {
//	    return err
//	}
//
// # The SQLite Engine
//
// OpenSQLite stores all state in a single data.db file inside the database
// directory, using the pure-Go modernc.org/sqlite driver. The connection is
// opened in WAL mode with a busy timeout, so concurrent readers on one
// database handle do not serialize against each other.
package engine
