// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/berth/pkg/database"
	"github.com/kraklabs/berth/pkg/server"
)

const (
	configVersion  = "1"
	configDirName  = ".berth"
	configFileName = "config.yaml"
)

// Config is the on-disk CLI configuration.
type Config struct {
	Version string       `yaml:"version"`
	Server  ServerConfig `yaml:"server"`
	Log     LogConfig    `yaml:"log"`
}

// ServerConfig locates the server root and listen address.
type ServerConfig struct {
	Root         string `yaml:"root"`
	Addr         string `yaml:"addr"`
	PasswordFile string `yaml:"password_file,omitempty"`
	OpenWorkers  int    `yaml:"open_workers,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ConfigPath returns the config file location for a working directory.
func ConfigPath(dir string) string {
	return filepath.Join(dir, configDirName, configFileName)
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	return &Config{
		Version: configVersion,
		Server: ServerConfig{
			Root: filepath.Join(configDirName, "data"),
			Addr: server.DefaultAddr,
		},
		Log: LogConfig{Level: "warn"},
	}
}

// LoadConfig reads and parses the config file. An empty path means
// .berth/config.yaml under the current working directory.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("cannot determine working directory: %w", err)
		}
		path = ConfigPath(cwd)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config %s: %w", path, err)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// SaveConfig writes the config file, creating its directory if needed.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets the environment win over file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BERTH_ROOT"); v != "" {
		c.Server.Root = v
	}
	if v := os.Getenv("BERTH_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("BERTH_PASSWORD_FILE"); v != "" {
		c.Server.PasswordFile = v
	}
	if v := os.Getenv("BERTH_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// loadOrDefault reads the config, falling back to defaults when the file
// is absent or unreadable.
func loadOrDefault(configPath string) *Config {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		cfg = DefaultConfig()
		cfg.applyEnvOverrides()
	}
	return cfg
}

// rootPassword resolves the server password: BERTH_PASSWORD wins, then the
// configured password file.
func rootPassword(cfg *Config) (string, error) {
	if v := os.Getenv("BERTH_PASSWORD"); v != "" {
		return v, nil
	}
	if cfg.Server.PasswordFile != "" {
		data, err := os.ReadFile(cfg.Server.PasswordFile)
		if err != nil {
			return "", fmt.Errorf("cannot read password file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return "", fmt.Errorf("no root password: set BERTH_PASSWORD or server.password_file in the config")
}

// databasePath resolves the directory of a named database under the root.
func databasePath(cfg *Config, name string) string {
	return filepath.Join(cfg.Server.Root, server.DatabasesDirName, name)
}

// openEmbedded opens a database under the root for direct access, exiting
// with a hint when another process holds the directory.
func openEmbedded(ctx context.Context, cfg *Config, name string) *database.Database {
	db, err := database.Open(ctx, databasePath(cfg, name))
	if err != nil {
		if errors.Is(err, database.ErrLockConflict) {
			fmt.Fprintf(os.Stderr, "Error: database %q is locked by another process\n", name)
			fmt.Fprintf(os.Stderr, "If a berth server is running, retry with --remote, or stop the server first.\n")
			os.Exit(ExitDatabase)
		}
		fmt.Fprintf(os.Stderr, "Error: cannot open database: %v\n", err)
		os.Exit(ExitDatabase)
	}
	return db
}

// dialRemote connects to the configured server, resolving the password the
// same way serve does.
func dialRemote(cfg *Config) *server.Client {
	password, err := rootPassword(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(ExitConfig)
	}
	cli, err := server.Dial(cfg.Server.Addr, password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach server at %s: %v\n", cfg.Server.Addr, err)
		os.Exit(ExitDatabase)
	}
	return cli
}
