// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-pkgz/syncs"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	"github.com/kraklabs/berth/pkg/database"
	"github.com/kraklabs/berth/pkg/engine"
)

const (
	// DefaultAddr is the listen address used when Config.Addr is empty.
	DefaultAddr = "127.0.0.1:7469"

	// DatabasesDirName is the subdirectory of the root path that holds one
	// directory per managed database.
	DatabasesDirName = "databases"

	defaultOpenWorkers = 4
	drainTimeout       = 5 * time.Second
)

// Config carries the settings needed to construct a Server.
type Config struct {
	// RootPath is the server's root directory. Managed databases live in
	// per-name subdirectories of RootPath/databases.
	RootPath string

	// Addr is the TCP listen address. Defaults to DefaultAddr.
	Addr string

	// RootPassword authenticates remote connections. It must be at least
	// MinPasswordLen characters; New hashes it and discards the plaintext.
	RootPassword string

	// OpenWorkers bounds how many databases Start opens in parallel while
	// scanning the root. Defaults to 4.
	OpenWorkers int

	Logger *slog.Logger
}

// Server owns every database under its root path. While it runs it holds
// the directory lock of each managed database, so embedded handles cannot
// open them; remote access goes through the TCP listener instead.
//
// All managed databases share the server's process, so in-process callers
// may also use the *database.Database handles directly via Database.
type Server struct {
	rootPath string
	addr     string
	cred     credential
	workers  int
	log      *slog.Logger

	mu      sync.RWMutex
	dbs     map[string]*database.Database
	ln      net.Listener
	started bool
	stopped bool

	connsMu sync.Mutex
	conns   map[net.Conn]struct{}
	wg      sync.WaitGroup
}

// New validates the configuration and prepares the root directory. The
// password policy is enforced here, before any disk or network activity,
// so a server with a weak root credential never starts.
func New(cfg Config) (*Server, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root path is required")
	}
	cred, err := newCredential(cfg.RootPassword)
	if err != nil {
		return nil, err
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	workers := cfg.OpenWorkers
	if workers <= 0 {
		workers = defaultOpenWorkers
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	if err := os.MkdirAll(filepath.Join(cfg.RootPath, DatabasesDirName), 0750); err != nil {
		return nil, fmt.Errorf("create databases directory: %w", err)
	}

	return &Server{
		rootPath: cfg.RootPath,
		addr:     addr,
		cred:     cred,
		workers:  workers,
		log:      log,
		dbs:      make(map[string]*database.Database),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Start binds the listener and opens every database directory found under
// the root. It returns ErrBindConflict when the address is taken, and the
// underlying open error when a managed directory cannot be locked; a
// directory still held by an embedded handle must be closed before the
// server can adopt it. Start does not block; use Stop to shut down.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.mu.Unlock()

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			return fmt.Errorf("listen on %s: %w", s.addr, ErrBindConflict)
		}
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	if err := s.openManaged(ctx); err != nil {
		ln.Close()
		return err
	}

	s.mu.Lock()
	s.ln = ln
	s.started = true
	count := len(s.dbs)
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ln)

	s.log.Info("server started", "addr", ln.Addr().String(), "root", s.rootPath, "databases", count)
	return nil
}

// openManaged opens every database directory under the root, a bounded
// number at a time. Any failure aborts the whole start and closes the
// databases opened so far.
func (s *Server) openManaged(ctx context.Context) error {
	dir := filepath.Join(s.rootPath, DatabasesDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}

	var (
		openedMu sync.Mutex
		opened   = make(map[string]*database.Database)
	)
	wg := syncs.NewErrSizedGroup(s.workers, syncs.Context(ctx), syncs.Preemptive)
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		name := e.Name()
		if _, ok := s.registered(name); ok {
			continue
		}
		wg.Go(func() error {
			db, err := database.Open(ctx, filepath.Join(dir, name), database.WithLogger(s.log))
			if err != nil {
				return fmt.Errorf("open managed database %q: %w", name, err)
			}
			openedMu.Lock()
			opened[name] = db
			openedMu.Unlock()
			return nil
		})
	}
	if err := wg.Wait(); err != nil {
		for _, db := range opened {
			db.Close()
		}
		return err
	}

	s.mu.Lock()
	for name, db := range opened {
		s.dbs[name] = db
	}
	s.mu.Unlock()
	return nil
}

func (s *Server) registered(name string) (*database.Database, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.dbs[name]
	return db, ok
}

// Addr returns the listen address. After Start it is the bound address,
// which matters when the configured port was 0.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// CreateDatabase creates a new managed database under the root and returns
// its handle. The name becomes the directory name, so path separators and
// dot-prefixed names are rejected.
func (s *Server) CreateDatabase(ctx context.Context, name string) (*database.Database, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	if _, ok := s.dbs[name]; ok {
		return nil, fmt.Errorf("database %q: %w", name, ErrDatabaseExists)
	}
	path := filepath.Join(s.rootPath, DatabasesDirName, name)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("database %q: %w", name, ErrDatabaseExists)
	}

	db, err := database.Open(ctx, path, database.WithLogger(s.log))
	if err != nil {
		return nil, fmt.Errorf("create database %q: %w", name, err)
	}
	s.dbs[name] = db
	s.log.Info("database created", "name", name, "path", path)
	return db, nil
}

// Database returns the handle of a managed database.
func (s *Server) Database(name string) (*database.Database, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.dbs[name]
	if !ok {
		return nil, fmt.Errorf("database %q: %w", name, ErrDatabaseNotFound)
	}
	return db, nil
}

// DropDatabase closes a managed database and deletes its directory.
func (s *Server) DropDatabase(name string) error {
	s.mu.Lock()
	db, ok := s.dbs[name]
	if ok {
		delete(s.dbs, name)
	}
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("database %q: %w", name, ErrDatabaseNotFound)
	}

	if err := db.Close(); err != nil {
		return fmt.Errorf("close %q before drop: %w", name, err)
	}
	if err := os.RemoveAll(db.Path()); err != nil {
		return fmt.Errorf("remove %q: %w", name, err)
	}
	s.log.Info("database dropped", "name", name)
	return nil
}

// Databases returns the names of all managed databases, sorted.
func (s *Server) Databases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.dbs))
	for name := range s.dbs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop closes the listener, drains open connections and closes every
// managed database, releasing their directory locks. Stopping an already
// stopped server is a no-op.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	ln := s.ln
	s.ln = nil
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}

	s.connsMu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.connsMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(drainTimeout):
		s.log.Warn("timed out waiting for connections to drain")
	}

	s.mu.Lock()
	dbs := s.dbs
	s.dbs = make(map[string]*database.Database)
	s.mu.Unlock()

	var result *multierror.Error
	for name, db := range dbs {
		if err := db.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %q: %w", name, err))
		}
	}
	s.log.Info("server stopped", "root", s.rootPath)
	return result.ErrorOrNil()
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("database name is empty")
	}
	if strings.ContainsAny(name, "/\\") || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid database name %q", name)
	}
	return nil
}

// connState tracks one remote connection: its identity, whether it has
// authenticated, and which databases it holds an open scope on.
type connState struct {
	id     string
	authed bool
	scopes map[string]struct{}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", "err", err)
			continue
		}

		s.connsMu.Lock()
		s.conns[conn] = struct{}{}
		s.connsMu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	st := &connState{id: uuid.NewString(), scopes: make(map[string]struct{})}
	log := s.log.With("conn", st.id, "remote", conn.RemoteAddr().String())
	log.Debug("connection opened")

	defer func() {
		// A dropped connection must not leave a scope pinning its database:
		// roll back whatever this connection had begun and not closed.
		for name := range st.scopes {
			db, err := s.Database(name)
			if err != nil {
				continue
			}
			if rbErr := db.Rollback(); rbErr != nil && !errors.Is(rbErr, database.ErrNoTransaction) {
				log.Warn("rollback on disconnect failed", "database", name, "err", rbErr)
			} else {
				log.Warn("rolled back open scope on disconnect", "database", name)
			}
		}

		s.connsMu.Lock()
		delete(s.conns, conn)
		s.connsMu.Unlock()
		conn.Close()
		log.Debug("connection closed")
		s.wg.Done()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if werr := s.writeResponse(conn, errorResponse("", fmt.Errorf("parse request: %w", err))); werr != nil {
				return
			}
			continue
		}

		resp := s.dispatch(st, req)
		if err := s.writeResponse(conn, resp); err != nil {
			log.Warn("write failed", "err", err)
			return
		}
		if req.Method == MethodClose {
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Warn("read failed", "err", err)
	}
}

// dispatch executes one request. Requests run under a background context:
// shutdown waits for in-flight work instead of cancelling it.
func (s *Server) dispatch(st *connState, req Request) Response {
	ctx := context.Background()

	switch req.Method {
	case MethodPing:
		return okResponse(req.ID)
	case MethodAuth:
		if !s.cred.verify(req.Password) {
			return errorResponse(req.ID, ErrAuthFailed)
		}
		st.authed = true
		resp := okResponse(req.ID)
		resp.ConnID = st.id
		return resp
	}

	if !st.authed {
		return errorResponse(req.ID, fmt.Errorf("%w: authenticate first", ErrAuthFailed))
	}

	dialect := req.Dialect
	if dialect == "" {
		dialect = engine.DialectSQL
	}

	switch req.Method {
	case MethodCommand:
		db, err := s.Database(req.Database)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		count, err := db.Command(ctx, dialect, req.Text)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		resp := okResponse(req.ID)
		resp.Count = count
		return resp

	case MethodQuery:
		db, err := s.Database(req.Database)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return s.runQuery(ctx, db, req, dialect)

	case MethodBegin:
		db, err := s.Database(req.Database)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		if err := db.Begin(ctx); err != nil {
			return errorResponse(req.ID, err)
		}
		st.scopes[req.Database] = struct{}{}
		return okResponse(req.ID)

	case MethodCommit:
		db, err := s.Database(req.Database)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		if err := db.Commit(); err != nil {
			return errorResponse(req.ID, err)
		}
		delete(st.scopes, req.Database)
		return okResponse(req.ID)

	case MethodRollback:
		db, err := s.Database(req.Database)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		if err := db.Rollback(); err != nil {
			return errorResponse(req.ID, err)
		}
		delete(st.scopes, req.Database)
		return okResponse(req.ID)

	case MethodCreate:
		if _, err := s.CreateDatabase(ctx, req.Database); err != nil {
			return errorResponse(req.ID, err)
		}
		return okResponse(req.ID)

	case MethodDrop:
		if err := s.DropDatabase(req.Database); err != nil {
			return errorResponse(req.ID, err)
		}
		return okResponse(req.ID)

	case MethodList:
		resp := okResponse(req.ID)
		resp.Names = s.Databases()
		return resp

	case MethodClose:
		return okResponse(req.ID)
	}

	return errorResponse(req.ID, fmt.Errorf("unknown method %q", req.Method))
}

func (s *Server) runQuery(ctx context.Context, db *database.Database, req Request, dialect string) Response {
	rs, err := db.Query(ctx, dialect, req.Text)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	defer rs.Close()

	var headers []string
	rows := make([][]any, 0, 8)
	for rs.Next() {
		rec := rs.Record()
		if headers == nil {
			headers = rec.Properties()
		}
		rows = append(rows, rec.Values())
	}
	if err := rs.Err(); err != nil {
		return errorResponse(req.ID, err)
	}

	resp := okResponse(req.ID)
	resp.Headers = headers
	resp.Rows = rows
	resp.Count = int64(len(rows))
	return resp
}

func (s *Server) writeResponse(conn net.Conn, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
