// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package server

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/berth/pkg/database"
	"github.com/kraklabs/berth/pkg/dirlock"
	"github.com/kraklabs/berth/pkg/engine"
)

const testPassword = "cormorant-harbor"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := New(Config{
		RootPath:     t.TempDir(),
		Addr:         "127.0.0.1:0",
		RootPassword: testPassword,
		Logger:       testLogger(),
	})
	require.NoError(t, err)
	return srv
}

func startTestServer(t *testing.T) *Server {
	t.Helper()
	srv := newTestServer(t)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func TestNewRejectsWeakPassword(t *testing.T) {
	for _, password := range []string{"", "pier", "1234567"} {
		_, err := New(Config{RootPath: t.TempDir(), RootPassword: password, Logger: testLogger()})
		require.ErrorIs(t, err, ErrWeakCredential, "password %q", password)
	}

	// Exactly the minimum length passes.
	_, err := New(Config{RootPath: t.TempDir(), RootPassword: "12345678", Logger: testLogger()})
	require.NoError(t, err)
}

func TestNewRequiresRootPath(t *testing.T) {
	_, err := New(Config{RootPassword: testPassword, Logger: testLogger()})
	require.Error(t, err)
}

func TestCredentialVerify(t *testing.T) {
	cred, err := newCredential(testPassword)
	require.NoError(t, err)
	assert.True(t, cred.verify(testPassword))
	assert.False(t, cred.verify("wrong-password"))
	assert.False(t, cred.verify(""))
}

func TestCreateDatabase(t *testing.T) {
	ctx := context.Background()
	srv := startTestServer(t)
	require.Empty(t, srv.Databases())

	db, err := srv.CreateDatabase(ctx, "inventory")
	require.NoError(t, err)
	require.NotNil(t, db)

	dir := filepath.Join(srv.rootPath, DatabasesDirName, "inventory")
	assert.FileExists(t, filepath.Join(dir, engine.DataFileName))
	assert.FileExists(t, filepath.Join(dir, database.MetadataFileName))
	assert.FileExists(t, filepath.Join(dir, dirlock.FileName))

	assert.Equal(t, []string{"inventory"}, srv.Databases())

	got, err := srv.Database("inventory")
	require.NoError(t, err)
	assert.Same(t, db, got)

	_, err = srv.CreateDatabase(ctx, "inventory")
	require.ErrorIs(t, err, ErrDatabaseExists)

	_, err = srv.Database("missing")
	require.ErrorIs(t, err, ErrDatabaseNotFound)
}

func TestCreateDatabaseRejectsBadNames(t *testing.T) {
	ctx := context.Background()
	srv := startTestServer(t)
	for _, name := range []string{"", "a/b", `a\b`, ".", "..", ".hidden"} {
		_, err := srv.CreateDatabase(ctx, name)
		require.Error(t, err, "name %q", name)
	}
}

func TestDropDatabase(t *testing.T) {
	ctx := context.Background()
	srv := startTestServer(t)

	db, err := srv.CreateDatabase(ctx, "scratch")
	require.NoError(t, err)
	_, err = db.Command(ctx, engine.DialectSQL, `CREATE TABLE t (n INTEGER)`)
	require.NoError(t, err)
	dir := db.Path()

	require.NoError(t, srv.DropDatabase("scratch"))
	assert.NoDirExists(t, dir)

	_, err = srv.Database("scratch")
	require.ErrorIs(t, err, ErrDatabaseNotFound)
	require.ErrorIs(t, srv.DropDatabase("scratch"), ErrDatabaseNotFound)
}

func TestServerAdoptsEmbeddedDatabase(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, DatabasesDirName, "harbor")

	// Seed the directory with an embedded handle, then release it.
	db, err := database.Open(ctx, path, database.WithLogger(testLogger()))
	require.NoError(t, err)
	_, err = db.Command(ctx, engine.DialectSQL, `CREATE TABLE boats (name TEXT)`)
	require.NoError(t, err)
	_, err = db.Command(ctx, engine.DialectSQL, `INSERT INTO boats (name) VALUES ('pequod')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Noise the scan must skip.
	require.NoError(t, os.WriteFile(filepath.Join(root, DatabasesDirName, "README.md"), []byte("not a database\n"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(root, DatabasesDirName, ".tmp"), 0o750))

	srv, err := New(Config{RootPath: root, Addr: "127.0.0.1:0", RootPassword: testPassword, Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, srv.Start(ctx))
	defer srv.Stop()

	require.Equal(t, []string{"harbor"}, srv.Databases())

	// While the server runs it holds the directory, so embedded opens lose.
	_, err = database.Open(ctx, path, database.WithLogger(testLogger()))
	require.ErrorIs(t, err, database.ErrLockConflict)

	h, err := srv.Database("harbor")
	require.NoError(t, err)
	rs, err := h.Query(ctx, engine.DialectSQL, `SELECT name FROM boats`)
	require.NoError(t, err)
	require.True(t, rs.Next())
	assert.Equal(t, "pequod", rs.Record().Property("name"))
	require.False(t, rs.Next())
	require.NoError(t, rs.Close())

	// Stop releases the lock and the directory is embedded-openable again.
	require.NoError(t, srv.Stop())
	db2, err := database.Open(ctx, path, database.WithLogger(testLogger()))
	require.NoError(t, err)
	require.NoError(t, db2.Close())
}

func TestStartFailsWhileDirectoryHeld(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	path := filepath.Join(root, DatabasesDirName, "held")

	db, err := database.Open(ctx, path, database.WithLogger(testLogger()))
	require.NoError(t, err)

	srv, err := New(Config{RootPath: root, Addr: "127.0.0.1:0", RootPassword: testPassword, Logger: testLogger()})
	require.NoError(t, err)
	err = srv.Start(ctx)
	require.ErrorIs(t, err, database.ErrLockConflict)

	// Once the embedded handle lets go, the same server can start.
	require.NoError(t, db.Close())
	require.NoError(t, srv.Start(ctx))
	defer srv.Stop()
	assert.Equal(t, []string{"held"}, srv.Databases())
}

func TestStartBindConflict(t *testing.T) {
	srv1 := startTestServer(t)

	srv2, err := New(Config{RootPath: t.TempDir(), Addr: srv1.Addr(), RootPassword: testPassword, Logger: testLogger()})
	require.NoError(t, err)
	err = srv2.Start(context.Background())
	require.ErrorIs(t, err, ErrBindConflict)
}

func TestStopIdempotent(t *testing.T) {
	srv := startTestServer(t)
	require.NoError(t, srv.Stop())
	require.NoError(t, srv.Stop())

	_, err := srv.CreateDatabase(context.Background(), "late")
	require.ErrorIs(t, err, ErrStopped)
}

func TestDispatchRequiresAuth(t *testing.T) {
	srv := startTestServer(t)
	st := &connState{id: "test-conn", scopes: make(map[string]struct{})}

	// Ping is the only method allowed before auth.
	resp := srv.dispatch(st, Request{Method: MethodPing, ID: "1"})
	assert.True(t, resp.OK)

	resp = srv.dispatch(st, Request{Method: MethodList, ID: "2"})
	require.False(t, resp.OK)
	assert.Equal(t, CodeAuthFailed, resp.Code)

	resp = srv.dispatch(st, Request{Method: MethodAuth, ID: "3", Password: "wrong-password"})
	require.False(t, resp.OK)
	assert.Equal(t, CodeAuthFailed, resp.Code)
	assert.False(t, st.authed)

	resp = srv.dispatch(st, Request{Method: MethodAuth, ID: "4", Password: testPassword})
	require.True(t, resp.OK)
	assert.Equal(t, st.id, resp.ConnID)
	assert.True(t, st.authed)

	resp = srv.dispatch(st, Request{Method: MethodList, ID: "5"})
	assert.True(t, resp.OK)
}
