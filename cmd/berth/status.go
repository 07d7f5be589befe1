// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/berth/pkg/dirlock"
	"github.com/kraklabs/berth/pkg/server"
)

// StatusResult represents the root's state for JSON output.
type StatusResult struct {
	Root      string         `json:"root"`
	Addr      string         `json:"addr"`
	ServerUp  bool           `json:"server_up"`
	Databases []DatabaseInfo `json:"databases"`
	Timestamp time.Time      `json:"timestamp"`
	Error     string         `json:"error,omitempty"`
}

// DatabaseInfo describes one database directory under the root.
type DatabaseInfo struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Locked bool   `json:"locked"`
}

// runStatus shows the databases under the root and who holds them.
func runStatus(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: berth status [options]

Description:
  List the databases under the configured root, whether each directory
  is locked by a running process, and whether a server answers on the
  configured address.

Options (inherited):
  --json    Output as JSON

Examples:
  berth status            Show human-readable status
  berth status --json     Output as JSON

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadOrDefault(configPath)

	result := &StatusResult{
		Root:      cfg.Server.Root,
		Addr:      cfg.Server.Addr,
		Timestamp: time.Now(),
	}

	// A TCP dial is enough to see whether something answers; auth is not
	// needed for reachability.
	if conn, err := net.DialTimeout("tcp", cfg.Server.Addr, time.Second); err == nil {
		result.ServerUp = true
		conn.Close()
	}

	dir := filepath.Join(cfg.Server.Root, server.DatabasesDirName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			result.Error = fmt.Sprintf("No databases found at %s. Run 'berth create <name>' first.", dir)
		} else {
			result.Error = fmt.Sprintf("Cannot read %s: %v", dir, err)
		}
		outputStatus(result, globals)
		return
	}

	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		locked, err := dirlock.Held(path)
		if err != nil {
			locked = false
		}
		result.Databases = append(result.Databases, DatabaseInfo{
			Name:   e.Name(),
			Path:   path,
			Locked: locked,
		})
	}

	outputStatus(result, globals)
}

func outputStatus(result *StatusResult, globals GlobalFlags) {
	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(result)
		return
	}

	fmt.Println("Berth Status")
	fmt.Println()

	if result.Error != "" {
		fmt.Printf("  %s\n", result.Error)
		return
	}

	fmt.Println("Databases:")
	if len(result.Databases) == 0 {
		fmt.Println("  (none)")
	}
	for _, db := range result.Databases {
		state := "free"
		if db.Locked {
			state = "locked"
		}
		fmt.Printf("  %-20s %-8s %s\n", db.Name, state, db.Path)
	}
	fmt.Println()

	fmt.Println("Server:")
	if result.ServerUp {
		fmt.Printf("  Listening on %s\n", result.Addr)
	} else {
		fmt.Printf("  Not reachable on %s (run 'berth serve' to start one)\n", result.Addr)
	}
}
