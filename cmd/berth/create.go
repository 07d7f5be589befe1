// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"
)

// runCreate creates a database under the configured root.
func runCreate(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	remote := fs.Bool("remote", false, "Create through a running server instead of directly")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: berth create <name> [options]

Description:
  Create a new database directory under the configured root. With
  --remote the request goes to a running server, which keeps the new
  database open and serves it immediately.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  berth create inventory            Create directly on disk
  berth create inventory --remote   Create through the server

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: database name required\n")
		os.Exit(ExitGeneral)
	}
	name := fs.Arg(0)
	if strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		fmt.Fprintf(os.Stderr, "Error: invalid database name %q\n", name)
		os.Exit(ExitGeneral)
	}

	cfg := loadOrDefault(configPath)

	if *remote {
		cli := dialRemote(cfg)
		defer cli.Close()
		if err := cli.CreateDatabase(name); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitDatabase)
		}
		if !globals.Quiet {
			fmt.Printf("Created database %q on %s\n", name, cfg.Server.Addr)
		}
		return
	}

	path := databasePath(cfg, name)
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(os.Stderr, "Error: database %q already exists at %s\n", name, path)
		os.Exit(ExitDatabase)
	}

	db := openEmbedded(context.Background(), cfg, name)
	if err := db.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitDatabase)
	}
	if !globals.Quiet {
		fmt.Printf("Created database %q at %s\n", name, path)
	}
}
