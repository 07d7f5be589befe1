// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/berth/pkg/importer"
)

// ImportResult summarizes an import run for JSON output.
type ImportResult struct {
	Table     string `json:"table"`
	Documents int64  `json:"documents"`
	Skipped   int64  `json:"skipped"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// runImport bulk-loads a CSV file into a database.
func runImport(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	table := fs.String("table", "", "Target table (default: file name without extension)")
	commitEvery := fs.Int("commit-every", importer.DefaultCommitEvery, "Rows per transaction scope")
	sampleRows := fs.Int("sample-rows", importer.DefaultSampleRows, "Leading rows used for type inference")
	separator := fs.String("separator", ",", "Field separator")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: berth import <name> <file.csv> [options]

Description:
  Stream a CSV file into a database table. The first row names the
  columns; column types are inferred from the leading rows. Use '-' as
  the file to read from stdin (requires --table).

  Import opens the database directly, so stop the server first if it is
  holding the root.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  berth import inventory cargo.csv
  berth import inventory cargo.csv --table freight --commit-every 500
  cat cargo.csv | berth import inventory - --table cargo

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "Error: database name and CSV file required\n")
		fmt.Fprintf(os.Stderr, "Usage: berth import <name> <file.csv>\n")
		os.Exit(ExitGeneral)
	}
	name := fs.Arg(0)
	file := fs.Arg(1)

	var in io.Reader
	if file == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitGeneral)
		}
		defer f.Close()
		in = f
	}

	target := *table
	if target == "" {
		if file == "-" {
			fmt.Fprintf(os.Stderr, "Error: --table is required when reading from stdin\n")
			os.Exit(ExitGeneral)
		}
		target = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}

	var comma rune
	if r := []rune(*separator); len(r) == 1 {
		comma = r[0]
	} else {
		fmt.Fprintf(os.Stderr, "Error: separator must be a single character\n")
		os.Exit(ExitGeneral)
	}

	cfg := loadOrDefault(configPath)
	ctx := context.Background()
	db := openEmbedded(ctx, cfg, name)
	defer db.Close()

	stats, err := importer.ImportCSV(ctx, db, in, importer.Options{
		Table:       target,
		CommitEvery: *commitEvery,
		SampleRows:  *sampleRows,
		Comma:       comma,
		Logger:      slog.Default(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if stats.Documents > 0 {
			fmt.Fprintf(os.Stderr, "%d rows were committed before the failure\n", stats.Documents)
		}
		os.Exit(ExitDatabase)
	}

	if globals.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(ImportResult{
			Table:     target,
			Documents: stats.Documents,
			Skipped:   stats.Skipped,
			ElapsedMS: stats.Elapsed.Milliseconds(),
		})
		return
	}
	if !globals.Quiet {
		fmt.Printf("Imported %d rows into %q (%d skipped) in %s\n",
			stats.Documents, target, stats.Skipped, stats.Elapsed.Round(time.Millisecond))
	}
}
