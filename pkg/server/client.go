// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package server

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/kraklabs/berth/pkg/engine"
)

// Client is a remote connection to a running server. One Client owns one
// TCP connection and serializes requests on it; for concurrent remote
// access, dial one Client per goroutine.
type Client struct {
	addr   string
	conn   net.Conn
	reader *bufio.Reader
	reqID  atomic.Int64

	mu     sync.Mutex
	closed bool
}

// ServerError is a failure reported by the server over the wire. Its Is
// method maps the wire code back onto the local sentinel taxonomy, so
// errors.Is works on remote failures exactly like on in-process ones.
type ServerError struct {
	Code    string
	Message string
}

func (e *ServerError) Error() string { return e.Message }

func (e *ServerError) Is(target error) bool {
	sentinel := codeSentinel(e.Code)
	return sentinel != nil && sentinel == target
}

func responseError(resp *Response) error {
	return &ServerError{Code: resp.Code, Message: resp.Error}
}

// Dial connects to a server and authenticates with the root password.
func Dial(addr, password string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to server at %s: %w", addr, err)
	}

	c := &Client{addr: addr, conn: conn, reader: bufio.NewReader(conn)}
	resp, err := c.send(Request{Method: MethodAuth, Password: password})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if !resp.OK {
		conn.Close()
		return nil, responseError(resp)
	}
	return c, nil
}

// send writes one request and reads its response. The connection carries
// one request at a time; the lock keeps request and response paired.
func (c *Client) send(req Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("client connection to %s is closed", c.addr)
	}

	req.ID = fmt.Sprintf("%d", c.reqID.Add(1))
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := fmt.Fprintf(c.conn, "%s\n", data); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	return &resp, nil
}

// Ping checks that the server is reachable. It works without authentication.
func (c *Client) Ping() error {
	resp, err := c.send(Request{Method: MethodPing})
	if err != nil {
		return err
	}
	if !resp.OK {
		return responseError(resp)
	}
	return nil
}

// Command executes a write statement against a managed database and returns
// the number of affected records.
func (c *Client) Command(dbName, dialect, text string) (int64, error) {
	resp, err := c.send(Request{Method: MethodCommand, Database: dbName, Dialect: dialect, Text: text})
	if err != nil {
		return 0, err
	}
	if !resp.OK {
		return 0, responseError(resp)
	}
	return resp.Count, nil
}

// Query runs a read statement and returns the full result, materialized.
// Values arrive with JSON types: all numbers decode as float64.
func (c *Client) Query(dbName, dialect, text string) ([]engine.Record, error) {
	resp, err := c.send(Request{Method: MethodQuery, Database: dbName, Dialect: dialect, Text: text})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, responseError(resp)
	}
	recs := make([]engine.Record, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		recs = append(recs, engine.NewRecord(resp.Headers, row))
	}
	return recs, nil
}

// Begin opens a transaction scope on a managed database. The scope belongs
// to this connection; dropping the connection rolls it back.
func (c *Client) Begin(dbName string) error {
	return c.simple(Request{Method: MethodBegin, Database: dbName})
}

// Commit closes the open scope on a managed database, keeping its writes.
func (c *Client) Commit(dbName string) error {
	return c.simple(Request{Method: MethodCommit, Database: dbName})
}

// Rollback closes the open scope on a managed database, discarding its writes.
func (c *Client) Rollback(dbName string) error {
	return c.simple(Request{Method: MethodRollback, Database: dbName})
}

// CreateDatabase creates a new managed database on the server.
func (c *Client) CreateDatabase(name string) error {
	return c.simple(Request{Method: MethodCreate, Database: name})
}

// DropDatabase deletes a managed database and its files on the server.
func (c *Client) DropDatabase(name string) error {
	return c.simple(Request{Method: MethodDrop, Database: name})
}

// Databases lists the names of all managed databases.
func (c *Client) Databases() ([]string, error) {
	resp, err := c.send(Request{Method: MethodList})
	if err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, responseError(resp)
	}
	return resp.Names, nil
}

func (c *Client) simple(req Request) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	if !resp.OK {
		return responseError(resp)
	}
	return nil
}

// Close drops the connection. The server rolls back any scope this
// connection left open.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}
