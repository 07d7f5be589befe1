// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package server

import "errors"

var (
	// ErrWeakCredential is returned by New when the root password does not
	// meet the minimum length policy. Checked before anything else so a
	// misconfigured server never comes up.
	ErrWeakCredential = errors.New("root credential below minimum strength")

	// ErrBindConflict is returned by Start when the listen address is
	// already taken by another process.
	ErrBindConflict = errors.New("listen address already in use")

	// ErrDatabaseNotFound is returned when the named database is not
	// registered with this server.
	ErrDatabaseNotFound = errors.New("database not registered with this server")

	// ErrDatabaseExists is returned by CreateDatabase for a name that is
	// already registered or whose directory already exists.
	ErrDatabaseExists = errors.New("database already exists")

	// ErrAuthFailed is returned for a wrong password and for requests sent
	// before authenticating.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrStopped is returned for operations on a stopped server.
	ErrStopped = errors.New("server is stopped")
)
