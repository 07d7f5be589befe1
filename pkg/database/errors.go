// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package database

import (
	"errors"

	"github.com/kraklabs/berth/pkg/dirlock"
)

var (
	// ErrLockConflict is returned by Open when the database directory is
	// already exclusively held by another handle or a running server. It is
	// the dirlock sentinel, re-exported so callers need only this package.
	ErrLockConflict = dirlock.ErrConflict

	// ErrTransactionActive is returned by Begin when the handle already has
	// an open transaction scope. Nested scopes are a hard error.
	ErrTransactionActive = errors.New("transaction already active on this handle")

	// ErrNoTransaction is returned by Commit and Rollback when no scope is
	// open on the handle.
	ErrNoTransaction = errors.New("no active transaction on this handle")

	// ErrClosed is returned by any operation on a closed handle, including
	// iterating a cursor after its handle was closed.
	ErrClosed = errors.New("database handle is closed")
)
