// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/berth/pkg/database"
	"github.com/kraklabs/berth/pkg/engine"
)

// runQuery runs a read statement and prints the result.
func runQuery(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	remote := fs.Bool("remote", false, "Query through a running server")
	dialect := fs.String("dialect", engine.DialectSQL, "Statement dialect")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: berth query <name> "<statement>" [options]

Description:
  Run a read statement against a database and print the records.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Options (inherited):
  --json    Output as JSON

Examples:
  berth query inventory "SELECT * FROM boats"
  berth query inventory "SELECT count(*) AS n FROM boats" --json
  berth query inventory "SELECT name FROM boats" --remote

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Error: database name and statement required\n")
		fmt.Fprintf(os.Stderr, "Usage: berth query <name> \"<statement>\"\n")
		os.Exit(ExitQuery)
	}
	name := fs.Arg(0)
	text := strings.Join(fs.Args()[1:], " ")

	cfg := loadOrDefault(configPath)

	var (
		recs []engine.Record
		err  error
	)
	if *remote {
		cli := dialRemote(cfg)
		defer cli.Close()
		recs, err = cli.Query(name, *dialect, text)
	} else {
		ctx := context.Background()
		db := openEmbedded(ctx, cfg, name)
		defer db.Close()
		recs, err = queryEmbedded(ctx, db, *dialect, text)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query error: %v\n", err)
		os.Exit(ExitQuery)
	}

	if globals.JSON {
		outputRecordsJSON(recs)
		return
	}
	printRecords(recs)
}

func queryEmbedded(ctx context.Context, db *database.Database, dialect, text string) ([]engine.Record, error) {
	rs, err := db.Query(ctx, dialect, text)
	if err != nil {
		return nil, err
	}
	defer rs.Close()

	var recs []engine.Record
	for rs.Next() {
		recs = append(recs, rs.Record())
	}
	return recs, rs.Err()
}

func outputRecordsJSON(recs []engine.Record) {
	rows := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		rows = append(rows, rec.Map())
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rows)
}

func printRecords(recs []engine.Record) {
	fmt.Printf("Found %d results\n\n", len(recs))
	if len(recs) == 0 {
		return
	}

	headers := recs[0].Properties()
	if len(headers) > 0 {
		fmt.Println(strings.Join(headers, "\t"))
		fmt.Println(strings.Repeat("-", 60))
	}

	for _, rec := range recs {
		vals := make([]string, len(headers))
		for i, h := range headers {
			vals[i] = fmt.Sprintf("%v", rec.Property(h))
			if len(vals[i]) > 80 {
				vals[i] = vals[i][:80] + "..."
			}
		}
		fmt.Println(strings.Join(vals, "\t"))
	}
}
