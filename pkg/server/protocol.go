// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package server

import (
	"errors"

	"github.com/kraklabs/berth/pkg/database"
)

// Wire protocol: newline-delimited JSON over TCP. Every request carries a
// client-chosen ID that the matching response echoes back. Except for ping,
// a connection must authenticate before any other method is accepted.

// Methods accepted by the server.
const (
	MethodAuth     = "auth"
	MethodPing     = "ping"
	MethodCommand  = "command"
	MethodQuery    = "query"
	MethodBegin    = "begin"
	MethodCommit   = "commit"
	MethodRollback = "rollback"
	MethodCreate   = "create"
	MethodDrop     = "drop"
	MethodList     = "list"
	MethodClose    = "close"
)

// Error codes carried in failed responses. They let a remote caller map a
// failure back onto the same sentinel errors an in-process caller would see.
const (
	CodeAuthFailed   = "auth_failed"
	CodeNotFound     = "not_found"
	CodeExists       = "exists"
	CodeTxActive     = "tx_active"
	CodeNoTx         = "no_tx"
	CodeClosed       = "closed"
	CodeLockConflict = "lock_conflict"
)

// Request is a single client message.
type Request struct {
	Method   string `json:"method"`
	ID       string `json:"id,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
	Dialect  string `json:"dialect,omitempty"`
	Text     string `json:"text,omitempty"`
}

// Response is a single server message.
type Response struct {
	OK      bool     `json:"ok"`
	ID      string   `json:"id,omitempty"`
	Error   string   `json:"error,omitempty"`
	Code    string   `json:"code,omitempty"`
	Count   int64    `json:"count,omitempty"`
	Headers []string `json:"headers,omitempty"`
	Rows    [][]any  `json:"rows,omitempty"`
	Names   []string `json:"names,omitempty"`
	ConnID  string   `json:"conn_id,omitempty"`
}

// errorCode maps an error onto its wire code, or "" for errors outside the
// sentinel taxonomy.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthFailed):
		return CodeAuthFailed
	case errors.Is(err, ErrDatabaseNotFound):
		return CodeNotFound
	case errors.Is(err, ErrDatabaseExists):
		return CodeExists
	case errors.Is(err, database.ErrTransactionActive):
		return CodeTxActive
	case errors.Is(err, database.ErrNoTransaction):
		return CodeNoTx
	case errors.Is(err, database.ErrClosed):
		return CodeClosed
	case errors.Is(err, database.ErrLockConflict):
		return CodeLockConflict
	}
	return ""
}

// codeSentinel is the inverse of errorCode, used on the client side.
func codeSentinel(code string) error {
	switch code {
	case CodeAuthFailed:
		return ErrAuthFailed
	case CodeNotFound:
		return ErrDatabaseNotFound
	case CodeExists:
		return ErrDatabaseExists
	case CodeTxActive:
		return database.ErrTransactionActive
	case CodeNoTx:
		return database.ErrNoTransaction
	case CodeClosed:
		return database.ErrClosed
	case CodeLockConflict:
		return database.ErrLockConflict
	}
	return nil
}

func errorResponse(id string, err error) Response {
	return Response{ID: id, Error: err.Error(), Code: errorCode(err)}
}

func okResponse(id string) Response {
	return Response{OK: true, ID: id}
}
