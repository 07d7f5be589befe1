// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/berth/pkg/server"
)

// runServe runs the server in the foreground until SIGINT or SIGTERM.
func runServe(args []string, configPath string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	root := fs.String("root", "", "Server root directory (overrides config)")
	addr := fs.String("addr", "", "Listen address (overrides config)")
	workers := fs.Int("open-workers", 0, "Parallel opens during the startup scan")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: berth serve [options]

Description:
  Host every database under the root path and serve them over TCP. While
  the server runs it holds the lock of each managed database, so embedded
  access to those directories is refused until the server stops.

  The root password comes from BERTH_PASSWORD or the configured
  password file, and must be at least %d characters.

Options:
`, server.MinPasswordLen)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  berth serve                              Serve with config defaults
  berth serve --root /srv/berth            Serve a specific root
  berth serve --addr 0.0.0.0:7469         Listen on all interfaces

`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadOrDefault(configPath)
	if *root != "" {
		cfg.Server.Root = *root
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *workers > 0 {
		cfg.Server.OpenWorkers = *workers
	}

	password, err := rootPassword(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfig)
	}

	srv, err := server.New(server.Config{
		RootPath:     cfg.Server.Root,
		Addr:         cfg.Server.Addr,
		RootPassword: password,
		OpenWorkers:  cfg.Server.OpenWorkers,
		Logger:       slog.Default(),
	})
	if err != nil {
		if errors.Is(err, server.ErrWeakCredential) {
			fmt.Fprintf(os.Stderr, "Error: root password must be at least %d characters\n", server.MinPasswordLen)
			os.Exit(ExitConfig)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, server.ErrBindConflict) {
			fmt.Fprintf(os.Stderr, "Another server is already listening on %s\n", cfg.Server.Addr)
		}
		os.Exit(ExitDatabase)
	}

	if !globals.Quiet {
		fmt.Fprintf(os.Stderr, "berth server started (PID %d)\n", os.Getpid())
		fmt.Fprintf(os.Stderr, "  Address:   %s\n", srv.Addr())
		fmt.Fprintf(os.Stderr, "  Root:      %s\n", cfg.Server.Root)
		fmt.Fprintf(os.Stderr, "  Databases: %d\n", len(srv.Databases()))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh
	fmt.Fprintf(os.Stderr, "\nberth server received %s, shutting down...\n", sig)

	if err := srv.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: shutdown: %v\n", err)
		os.Exit(ExitGeneral)
	}
	if !globals.Quiet {
		fmt.Fprintf(os.Stderr, "berth server stopped.\n")
	}
}
