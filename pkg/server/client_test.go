// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/berth/pkg/database"
	"github.com/kraklabs/berth/pkg/engine"
)

func dialTest(t *testing.T, srv *Server, password string) *Client {
	t.Helper()
	cli, err := Dial(srv.Addr(), password)
	require.NoError(t, err)
	t.Cleanup(func() { cli.Close() })
	return cli
}

func TestDialAuth(t *testing.T) {
	srv := startTestServer(t)

	cli, err := Dial(srv.Addr(), testPassword)
	require.NoError(t, err)
	require.NoError(t, cli.Ping())
	require.NoError(t, cli.Close())
	require.Error(t, cli.Ping(), "closed client must refuse calls")

	_, err = Dial(srv.Addr(), "wrong-password")
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestClientCommandQuery(t *testing.T) {
	srv := startTestServer(t)
	_, err := srv.CreateDatabase(context.Background(), "inventory")
	require.NoError(t, err)
	cli := dialTest(t, srv, testPassword)

	_, err = cli.Command("inventory", engine.DialectSQL,
		`CREATE TABLE boats (id INTEGER PRIMARY KEY, name TEXT, draft REAL)`)
	require.NoError(t, err)

	count, err := cli.Command("inventory", engine.DialectSQL,
		`INSERT INTO boats (id, name, draft) VALUES (1, 'pequod', 3.5), (2, 'rachel', 2.8)`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	recs, err := cli.Query("inventory", engine.DialectSQL,
		`SELECT id, name, draft FROM boats ORDER BY id`)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	// JSON transport: every number decodes as float64.
	assert.Equal(t, float64(1), recs[0].Property("id"))
	assert.Equal(t, "pequod", recs[0].Property("name"))
	assert.Equal(t, 3.5, recs[0].Property("draft"))
	assert.Equal(t, "rachel", recs[1].Property("name"))

	// Unknown properties stay nil, same as embedded records.
	assert.Nil(t, recs[0].Property("tonnage"))
	assert.False(t, recs[0].Has("tonnage"))

	recs, err = cli.Query("inventory", engine.DialectSQL, `SELECT * FROM boats WHERE id > 99`)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestClientDatabaseLifecycle(t *testing.T) {
	srv := startTestServer(t)
	cli := dialTest(t, srv, testPassword)

	require.NoError(t, cli.CreateDatabase("remote"))
	names, err := cli.Databases()
	require.NoError(t, err)
	assert.Equal(t, []string{"remote"}, names)
	assert.Equal(t, []string{"remote"}, srv.Databases(), "wire and in-process views must agree")

	require.ErrorIs(t, cli.CreateDatabase("remote"), ErrDatabaseExists)

	_, err = cli.Query("missing", engine.DialectSQL, `SELECT 1`)
	require.ErrorIs(t, err, ErrDatabaseNotFound)

	require.NoError(t, cli.DropDatabase("remote"))
	names, err = cli.Databases()
	require.NoError(t, err)
	assert.Empty(t, names)
	require.ErrorIs(t, cli.DropDatabase("remote"), ErrDatabaseNotFound)
}

func TestClientTransaction(t *testing.T) {
	srv := startTestServer(t)
	_, err := srv.CreateDatabase(context.Background(), "books")
	require.NoError(t, err)
	cli := dialTest(t, srv, testPassword)

	_, err = cli.Command("books", engine.DialectSQL, `CREATE TABLE entries (id INTEGER, title TEXT)`)
	require.NoError(t, err)

	// A rolled-back scope leaves no trace.
	require.NoError(t, cli.Begin("books"))
	_, err = cli.Command("books", engine.DialectSQL, `INSERT INTO entries (id, title) VALUES (1, 'logbook')`)
	require.NoError(t, err)
	recs, err := cli.Query("books", engine.DialectSQL, `SELECT title FROM entries`)
	require.NoError(t, err)
	require.Len(t, recs, 1, "scope must see its own writes")
	assert.Equal(t, "logbook", recs[0].Property("title"))
	require.NoError(t, cli.Rollback("books"))

	recs, err = cli.Query("books", engine.DialectSQL, `SELECT title FROM entries`)
	require.NoError(t, err)
	assert.Empty(t, recs)

	// A committed scope keeps its writes.
	require.NoError(t, cli.Begin("books"))
	_, err = cli.Command("books", engine.DialectSQL, `INSERT INTO entries (id, title) VALUES (2, 'manifest')`)
	require.NoError(t, err)
	require.NoError(t, cli.Commit("books"))

	recs, err = cli.Query("books", engine.DialectSQL, `SELECT title FROM entries`)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "manifest", recs[0].Property("title"))
}

func TestClientNestedScopeRejected(t *testing.T) {
	srv := startTestServer(t)
	_, err := srv.CreateDatabase(context.Background(), "moor")
	require.NoError(t, err)
	cli := dialTest(t, srv, testPassword)

	require.NoError(t, cli.Begin("moor"))
	err = cli.Begin("moor")
	require.ErrorIs(t, err, database.ErrTransactionActive)

	var serr *ServerError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, CodeTxActive, serr.Code)

	require.NoError(t, cli.Rollback("moor"))
	require.ErrorIs(t, cli.Commit("moor"), database.ErrNoTransaction)
}

func TestDisconnectRollsBackScope(t *testing.T) {
	srv := startTestServer(t)
	_, err := srv.CreateDatabase(context.Background(), "moor")
	require.NoError(t, err)

	cli1, err := Dial(srv.Addr(), testPassword)
	require.NoError(t, err)
	_, err = cli1.Command("moor", engine.DialectSQL, `CREATE TABLE lines (id INTEGER)`)
	require.NoError(t, err)

	require.NoError(t, cli1.Begin("moor"))
	_, err = cli1.Command("moor", engine.DialectSQL, `INSERT INTO lines (id) VALUES (1)`)
	require.NoError(t, err)
	require.NoError(t, cli1.Close())

	// The server reaps the dropped connection and rolls its scope back; a
	// new scope becomes possible as soon as that happens.
	cli2 := dialTest(t, srv, testPassword)
	require.Eventually(t, func() bool {
		return cli2.Begin("moor") == nil
	}, 2*time.Second, 20*time.Millisecond)

	recs, err := cli2.Query("moor", engine.DialectSQL, `SELECT id FROM lines`)
	require.NoError(t, err)
	assert.Empty(t, recs, "orphaned scope must leave no trace")
	require.NoError(t, cli2.Rollback("moor"))
}

func TestConcurrentClients(t *testing.T) {
	srv := startTestServer(t)
	_, err := srv.CreateDatabase(context.Background(), "ledger")
	require.NoError(t, err)

	seed := dialTest(t, srv, testPassword)
	_, err = seed.Command("ledger", engine.DialectSQL, `CREATE TABLE entries (id INTEGER PRIMARY KEY)`)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		_, err = seed.Command("ledger", engine.DialectSQL, fmt.Sprintf(`INSERT INTO entries (id) VALUES (%d)`, i))
		require.NoError(t, err)
	}

	// Five clients read disjoint ranges at the same time; merged, every
	// record must show up exactly once.
	const readers = 5
	var (
		mu   sync.Mutex
		seen = make(map[int]int)
		wg   sync.WaitGroup
	)
	errc := make(chan error, readers)
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			cli, err := Dial(srv.Addr(), testPassword)
			if err != nil {
				errc <- err
				return
			}
			defer cli.Close()

			lo, hi := r*4, r*4+4
			recs, err := cli.Query("ledger", engine.DialectSQL,
				fmt.Sprintf(`SELECT id FROM entries WHERE id >= %d AND id < %d ORDER BY id`, lo, hi))
			if err != nil {
				errc <- err
				return
			}
			mu.Lock()
			for _, rec := range recs {
				seen[int(rec.Property("id").(float64))]++
			}
			mu.Unlock()
		}(r)
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		require.NoError(t, err)
	}

	require.Len(t, seen, 20)
	for id := 0; id < 20; id++ {
		assert.Equal(t, 1, seen[id], "id %d", id)
	}
}
