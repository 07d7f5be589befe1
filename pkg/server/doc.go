// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

// Package server hosts many databases under one root directory and serves
// them to remote clients over a line-delimited JSON protocol.
//
// # Ownership model
//
// A running server holds the directory lock of every database under
// RootPath/databases. That is the whole point: while the server runs, no
// embedded handle can open those directories, and every client goes through
// the server instead. Stop releases all locks again.
//
//	srv, err := server.New(server.Config{
//		RootPath:     "/var/lib/berth",
//		RootPassword: "a-long-root-password",
//	})
//	if err != nil {
//		return err
//	}
//	if err := srv.Start(ctx); err != nil {
//		return err
//	}
//	defer srv.Stop()
//
// New fails with ErrWeakCredential when the root password is shorter than
// MinPasswordLen, and Start fails with ErrBindConflict when the address is
// taken; both are configuration mistakes that should stop a deployment
// early rather than surface later.
//
// # Remote access
//
// Client speaks the wire protocol. One Client owns one TCP connection;
// requests on it run one at a time. Concurrent access means one Client per
// goroutine, all multiplexed by the server onto shared database handles.
//
//	cli, err := server.Dial(srv.Addr(), "a-long-root-password")
//	if err != nil {
//		return err
//	}
//	defer cli.Close()
//
//	if _, err := cli.Command("inventory", engine.DialectSQL,
//		"INSERT INTO boats (name) VALUES ('pequod')"); err != nil {
//		return err
//	}
//
// The server keeps a single handle per database, so a transaction scope
// begun by one connection blocks scopes on the same database from every
// other connection until it commits or rolls back. A connection that drops
// with a scope still open gets that scope rolled back by the server.
package server
