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

	"github.com/kraklabs/berth/pkg/engine"
)

// runExec executes a write statement against a database.
func runExec(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("exec", flag.ExitOnError)
	remote := fs.Bool("remote", false, "Execute through a running server")
	dialect := fs.String("dialect", engine.DialectSQL, "Statement dialect")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: berth exec <name> "<statement>" [options]

Description:
  Execute a write statement (CREATE TABLE, INSERT, UPDATE, DELETE)
  against a database and print the number of affected records.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  berth exec inventory "CREATE TABLE boats (name TEXT)"
  berth exec inventory "INSERT INTO boats (name) VALUES ('pequod')"
  berth exec inventory "DELETE FROM boats" --remote

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Error: database name and statement required\n")
		fmt.Fprintf(os.Stderr, "Usage: berth exec <name> \"<statement>\"\n")
		os.Exit(ExitQuery)
	}
	name := fs.Arg(0)
	text := strings.Join(fs.Args()[1:], " ")

	cfg := loadOrDefault(configPath)

	var (
		count int64
		err   error
	)
	if *remote {
		cli := dialRemote(cfg)
		defer cli.Close()
		count, err = cli.Command(name, *dialect, text)
	} else {
		ctx := context.Background()
		db := openEmbedded(ctx, cfg, name)
		defer db.Close()
		count, err = db.Command(ctx, *dialect, text)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitQuery)
	}

	if !globals.Quiet {
		fmt.Printf("OK, %d records affected\n", count)
	}
}
