// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

// Package database provides the handle through which one database directory
// is opened, queried and mutated.
//
// A Database owns its directory exclusively for as long as it is open: the
// directory lock taken by Open keeps every other handle out, whether in this
// process or another, until Close releases it. Commands and queries pass
// through to the storage engine opaquely; an optional transaction scope
// groups commands into one atomic unit.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/kraklabs/berth/pkg/dirlock"
	"github.com/kraklabs/berth/pkg/engine"
)

// Database is a handle on one open database directory.
//
// A handle is safe for concurrent use. Queries outside a transaction scope
// run concurrently; Close blocks until in-flight calls have finished. At
// most one transaction scope is active per handle at a time, and while it is
// active every command and query issued through the handle runs inside it.
type Database struct {
	path string
	log  *slog.Logger

	lock *dirlock.Lock
	eng  engine.Engine

	// mu is held shared for the duration of every engine call, so Close
	// (which takes it exclusively) waits out in-flight work.
	mu     sync.RWMutex
	closed bool

	// txMu guards the scope slot and serializes statements inside a scope.
	txMu sync.Mutex
	tx   engine.Tx
}

type options struct {
	lockWait time.Duration
	logger   *slog.Logger
}

// Option configures Open.
type Option func(*options)

// WithLockTimeout makes Open wait up to d for a held directory lock before
// giving up with ErrLockConflict. The default is to fail immediately.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) { o.lockWait = d }
}

// WithLogger sets the handle's logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Open opens the database directory at path, creating it on first open.
// The directory's exclusive lock is acquired before anything else; if it is
// held elsewhere, Open fails with ErrLockConflict (after the optional
// WithLockTimeout wait).
func Open(ctx context.Context, path string, opts ...Option) (*Database, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	log := o.logger
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(path, 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	lock, err := dirlock.Acquire(path, o.lockWait)
	if err != nil {
		return nil, fmt.Errorf("lock database directory: %w", err)
	}

	meta, err := loadOrCreateMetadata(path)
	if err != nil {
		lock.Release()
		return nil, err
	}

	eng, err := engine.OpenSQLite(ctx, path)
	if err != nil {
		lock.Release()
		return nil, err
	}

	log.Debug("database opened", "path", path, "format_version", meta.FormatVersion)
	return &Database{path: path, log: log, lock: lock, eng: eng}, nil
}

// Path returns the database directory.
func (d *Database) Path() string { return d.path }

// Command executes a mutation and returns the number of affected records.
// While a transaction scope is active on the handle, the command runs
// inside it; otherwise it autocommits.
func (d *Database) Command(ctx context.Context, dialect, text string) (int64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, ErrClosed
	}
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	d.txMu.Lock()
	if d.tx != nil {
		defer d.txMu.Unlock()
		return d.tx.Command(ctx, dialect, text)
	}
	d.txMu.Unlock()

	return d.eng.Command(ctx, dialect, text)
}

// Query executes a read and returns a lazy result set. While a transaction
// scope is active the query runs inside it and sees the scope's own writes.
func (d *Database) Query(ctx context.Context, dialect, text string) (*ResultSet, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	var (
		cur engine.Cursor
		err error
	)
	d.txMu.Lock()
	if d.tx != nil {
		cur, err = d.tx.Query(ctx, dialect, text)
		d.txMu.Unlock()
	} else {
		d.txMu.Unlock()
		cur, err = d.eng.Query(ctx, dialect, text)
	}
	if err != nil {
		return nil, err
	}
	return &ResultSet{db: d, cur: cur}, nil
}

// Begin opens the handle's transaction scope. Commands and queries issued
// through the handle from now until Commit or Rollback run inside it, in
// issue order. A second Begin while the scope is open fails with
// ErrTransactionActive.
func (d *Database) Begin(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	d.txMu.Lock()
	defer d.txMu.Unlock()
	if d.tx != nil {
		return ErrTransactionActive
	}

	tx, err := d.eng.Begin(ctx)
	if err != nil {
		return err
	}
	d.tx = tx
	return nil
}

// Commit applies every command issued since Begin and ends the scope.
func (d *Database) Commit() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	d.txMu.Lock()
	defer d.txMu.Unlock()
	if d.tx == nil {
		return ErrNoTransaction
	}

	err := d.tx.Commit()
	d.tx = nil
	return err
}

// Rollback undoes every command issued since Begin and ends the scope.
func (d *Database) Rollback() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}

	d.txMu.Lock()
	defer d.txMu.Unlock()
	if d.tx == nil {
		return ErrNoTransaction
	}

	err := d.tx.Rollback()
	d.tx = nil
	return err
}

// Transaction runs fn inside a scope: Begin, then fn, then Commit when fn
// returns nil. When fn returns an error or panics, the scope is rolled back
// and the original failure propagates unchanged; the rollback itself is not
// reported separately.
func (d *Database) Transaction(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if err = d.Begin(ctx); err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		// Not committed: fn failed or panicked. Undo everything since Begin.
		if rbErr := d.Rollback(); rbErr != nil && err == nil {
			err = rbErr
		}
	}()

	if err = fn(ctx); err != nil {
		return err
	}
	if err = d.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// Close releases the handle: it waits for in-flight commands and queries to
// finish, rolls back any open transaction scope, closes the engine and
// releases the directory lock. Close is idempotent.
//
// Open cursors are not waited for. Iterating one after Close reports
// ErrClosed; a cursor never keeps its handle alive.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	if d.tx != nil {
		if err := d.tx.Rollback(); err != nil {
			d.log.Warn("rollback open scope on close", "path", d.path, "error", err)
		}
		d.tx = nil
	}

	err := d.eng.Close()
	if rerr := d.lock.Release(); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return fmt.Errorf("close database at %s: %w", d.path, err)
	}

	d.log.Debug("database closed", "path", d.path)
	return nil
}

// isClosed reports the handle state without blocking behind in-flight work.
func (d *Database) isClosed() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.closed
}
