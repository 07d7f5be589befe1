// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

// Command berth manages document databases that live in directories: embed
// them in a process, serve them over TCP, and inspect them from the shell.
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"
)

// Exit codes used by all subcommands.
const (
	ExitGeneral  = 1
	ExitConfig   = 2
	ExitDatabase = 3
	ExitQuery    = 4
)

// version is overridden at build time via -ldflags.
var version = "dev"

// GlobalFlags carries options every subcommand honors.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	Verbose bool
}

func main() {
	fs := flag.NewFlagSet("berth", flag.ExitOnError)
	fs.SetInterspersed(false)

	configPath := fs.String("config", "", "Path to config file (default .berth/config.yaml)")
	jsonOut := fs.Bool("json", false, "Output as JSON where supported")
	quiet := fs.Bool("quiet", false, "Suppress non-essential output")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	showVersion := fs.BoolP("version", "V", false, "Print version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: berth [global options] <command> [options]

Description:
  berth is a document database that lives in a directory. Embed it in one
  process, or run 'berth serve' to host every database under a root path
  and reach them over TCP.

Commands:
  init      Create a .berth/config.yaml in the current directory
  serve     Run the server, hosting every database under the root
  create    Create a database
  drop      Delete a database and its files
  exec      Execute a write statement against a database
  query     Run a read statement and print the result
  import    Bulk-load a CSV file into a database
  status    Show databases, their locks, and server reachability
  version   Print version and exit

Global options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Run 'berth <command> --help' for command-specific options.

`)
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		os.Exit(ExitGeneral)
	}

	globals := GlobalFlags{JSON: *jsonOut, Quiet: *quiet, Verbose: *verbose}
	setupLogging(globals)

	if *showVersion {
		fmt.Printf("berth %s\n", version)
		return
	}

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(ExitGeneral)
	}

	command := fs.Arg(0)
	args := fs.Args()[1:]

	switch command {
	case "init":
		runInit(args, globals)
	case "serve":
		runServe(args, *configPath, globals)
	case "create":
		runCreate(args, *configPath, globals)
	case "drop":
		runDrop(args, *configPath, globals)
	case "exec":
		runExec(args, *configPath, globals)
	case "query":
		runQuery(args, *configPath, globals)
	case "import":
		runImport(args, *configPath, globals)
	case "status":
		runStatus(args, *configPath, globals)
	case "version":
		fmt.Printf("berth %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		fs.Usage()
		os.Exit(ExitGeneral)
	}
}

// setupLogging routes slog to stderr. Default level keeps the CLI quiet;
// --verbose opens it up for debugging.
func setupLogging(globals GlobalFlags) {
	level := slog.LevelWarn
	if globals.Verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
