// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/berth/pkg/dirlock"
)

// runDrop deletes a database and its files.
func runDrop(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("drop", flag.ExitOnError)
	remote := fs.Bool("remote", false, "Drop through a running server instead of directly")
	confirm := fs.Bool("yes", false, "Confirm the drop (required)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: berth drop <name> [options]

Description:
  WARNING: This is a destructive operation that deletes the database
  directory and everything in it.

  The directory lock is taken first, so a database in use by another
  process cannot be dropped out from under it.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  berth drop scratch --yes            Delete directly on disk
  berth drop scratch --yes --remote   Delete through the server

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

	if !*confirm {
		fmt.Fprintf(os.Stderr, "Error: the --yes flag is required to confirm this destructive operation\n")
		fmt.Fprintf(os.Stderr, "Run 'berth drop %s --yes' to confirm\n", name)
		os.Exit(1)
	}

	cfg := loadOrDefault(configPath)

	if *remote {
		cli := dialRemote(cfg)
		defer cli.Close()
		if err := cli.DropDatabase(name); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitDatabase)
		}
		if !globals.Quiet {
			fmt.Printf("Dropped database %q on %s\n", name, cfg.Server.Addr)
		}
		return
	}

	path := databasePath(cfg, name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: no database %q at %s\n", name, path)
		os.Exit(ExitDatabase)
	}

	lock, err := dirlock.Acquire(path, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: database %q is in use: %v\n", name, err)
		fmt.Fprintf(os.Stderr, "If a berth server is running, retry with --remote, or stop the server first.\n")
		os.Exit(ExitDatabase)
	}
	defer lock.Release()

	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot delete database directory: %v\n", err)
		os.Exit(ExitDatabase)
	}
	if !globals.Quiet {
		fmt.Printf("Dropped database %q at %s\n", name, path)
	}
}
