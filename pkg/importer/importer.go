// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

// Package importer bulk-loads CSV data into a database.
//
// The first row names the columns. Column types are inferred from a sample
// of leading rows, rows stream into transaction scopes of CommitEvery rows
// each, and structurally malformed rows are counted and skipped rather than
// failing the load.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kraklabs/berth/pkg/database"
	"github.com/kraklabs/berth/pkg/engine"
)

const (
	// DefaultCommitEvery is how many rows go into one transaction scope.
	DefaultCommitEvery = 1000

	// DefaultSampleRows is how many leading rows feed type inference.
	DefaultSampleRows = 10000
)

// Options configure one import run.
type Options struct {
	// Table receives the rows. It is created with inferred column types
	// when it does not exist yet.
	Table string

	// CommitEvery bounds the number of rows per transaction scope.
	// Defaults to DefaultCommitEvery.
	CommitEvery int

	// SampleRows bounds how many leading rows are buffered for type
	// inference. Defaults to DefaultSampleRows.
	SampleRows int

	// Comma is the field separator. Defaults to ','.
	Comma rune

	Logger *slog.Logger
}

// Stats reports what one import run did.
type Stats struct {
	// Documents is the number of rows loaded.
	Documents int64

	// Skipped is the number of structurally malformed rows left out.
	Skipped int64

	Elapsed time.Duration
}

// colKind orders column types from narrowest to widest; inference only
// ever widens.
type colKind int

const (
	kindUnknown colKind = iota
	kindInteger
	kindReal
	kindText
)

func (k colKind) sqlType() string {
	switch k {
	case kindInteger:
		return "INTEGER"
	case kindReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

func inferKind(field string) colKind {
	if _, err := strconv.ParseInt(field, 10, 64); err == nil {
		return kindInteger
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return kindReal
	}
	return kindText
}

// ImportCSV streams CSV from r into a table of db. Empty fields load as
// NULL. Rows whose field count does not match the header are skipped and
// counted; engine errors abort the run with whatever was committed so far.
func ImportCSV(ctx context.Context, db *database.Database, r io.Reader, opts Options) (Stats, error) {
	start := time.Now()
	var stats Stats

	if opts.Table == "" {
		return stats, fmt.Errorf("table name is required")
	}
	commitEvery := opts.CommitEvery
	if commitEvery <= 0 {
		commitEvery = DefaultCommitEvery
	}
	sampleRows := opts.SampleRows
	if sampleRows <= 0 {
		sampleRows = DefaultSampleRows
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	header, err := cr.Read()
	if err != nil {
		return stats, fmt.Errorf("read header: %w", err)
	}
	cols := make([]string, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			return stats, fmt.Errorf("column %d has an empty name", i+1)
		}
		cols[i] = name
	}

	// Buffer a leading sample to settle column types before the first
	// insert; rows past the sample rely on the engine's type affinity.
	kinds := make([]colKind, len(cols))
	var sample [][]string
	for len(sample) < sampleRows {
		row, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, csv.ErrFieldCount) {
				stats.Skipped++
				continue
			}
			return stats, fmt.Errorf("read row: %w", err)
		}
		widenKinds(kinds, row)
		sample = append(sample, row)
	}

	if err := createTable(ctx, db, opts.Table, cols, kinds); err != nil {
		return stats, err
	}

	loader := &csvLoader{
		db:          db,
		table:       opts.Table,
		prefix:      insertPrefix(opts.Table, cols),
		commitEvery: commitEvery,
		log:         log,
	}

	for _, row := range sample {
		if err := loader.add(ctx, row); err != nil {
			stats.Documents = loader.rows
			return stats, err
		}
	}
	sample = nil

	for {
		row, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, csv.ErrFieldCount) {
				stats.Skipped++
				continue
			}
			stats.Documents = loader.rows
			return stats, fmt.Errorf("read row: %w", err)
		}
		if err := loader.add(ctx, row); err != nil {
			stats.Documents = loader.rows
			return stats, err
		}
	}
	if err := loader.flush(ctx); err != nil {
		stats.Documents = loader.rows
		return stats, err
	}

	stats.Documents = loader.rows
	stats.Elapsed = time.Since(start)
	log.Info("import finished", "table", opts.Table,
		"rows", stats.Documents, "skipped", stats.Skipped,
		"elapsed", stats.Elapsed.Round(time.Millisecond))
	return stats, nil
}

// csvLoader accumulates rows and writes them out one transaction scope per
// batch, so a failed run keeps every batch committed before the failure.
type csvLoader struct {
	db          *database.Database
	table       string
	prefix      string
	commitEvery int
	log         *slog.Logger

	batch [][]string
	rows  int64
}

func (l *csvLoader) add(ctx context.Context, row []string) error {
	l.batch = append(l.batch, row)
	if len(l.batch) >= l.commitEvery {
		return l.flush(ctx)
	}
	return nil
}

func (l *csvLoader) flush(ctx context.Context) error {
	if len(l.batch) == 0 {
		return nil
	}
	n := len(l.batch)
	err := l.db.Transaction(ctx, func(ctx context.Context) error {
		for _, row := range l.batch {
			if _, err := l.db.Command(ctx, engine.DialectSQL, l.prefix+rowValues(row)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit batch of %d rows: %w", n, err)
	}
	l.rows += int64(n)
	l.batch = l.batch[:0]
	l.log.Debug("batch committed", "table", l.table, "rows", n, "total", l.rows)
	return nil
}

func widenKinds(kinds []colKind, row []string) {
	for i, field := range row {
		if field == "" {
			continue
		}
		if k := inferKind(field); k > kinds[i] {
			kinds[i] = k
		}
	}
}

func createTable(ctx context.Context, db *database.Database, table string, cols []string, kinds []colKind) error {
	defs := make([]string, len(cols))
	for i, col := range cols {
		defs[i] = quoteIdent(col) + " " + kinds[i].sqlType()
	}
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if _, err := db.Command(ctx, engine.DialectSQL, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func insertPrefix(table string, cols []string) string {
	quoted := make([]string, len(cols))
	for i, col := range cols {
		quoted[i] = quoteIdent(col)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES ", quoteIdent(table), strings.Join(quoted, ", "))
}

func rowValues(row []string) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, field := range row {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlLiteral(field))
	}
	b.WriteByte(')')
	return b.String()
}

// sqlLiteral renders one CSV field. Numbers are re-rendered from their
// parsed value, so the emitted literal is always valid SQL no matter what
// notation the file used.
func sqlLiteral(field string) string {
	if field == "" {
		return "NULL"
	}
	if n, err := strconv.ParseInt(field, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	if f, err := strconv.ParseFloat(field, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return "'" + strings.ReplaceAll(field, "'", "''") + "'"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
