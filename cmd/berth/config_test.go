// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/berth/pkg/server"
)

func TestConfigRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := ConfigPath(dir)
	assert.Equal(t, filepath.Join(dir, ".berth", "config.yaml"), path)

	cfg := DefaultConfig()
	cfg.Server.Root = "/srv/berth"
	cfg.Server.PasswordFile = "/etc/berth/password"
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, configVersion, loaded.Version)
	assert.Equal(t, "/srv/berth", loaded.Server.Root)
	assert.Equal(t, "/etc/berth/password", loaded.Server.PasswordFile)
	assert.Equal(t, server.DefaultAddr, loaded.Server.Addr)
	assert.Equal(t, "warn", loaded.Log.Level)
}

func TestLoadConfigMissing(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  root: /data/berth\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/berth", cfg.Server.Root)
	assert.Equal(t, server.DefaultAddr, cfg.Server.Addr, "unset fields keep defaults")
}

func TestConfigEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveConfig(DefaultConfig(), path))

	t.Setenv("BERTH_ROOT", "/env/root")
	t.Setenv("BERTH_ADDR", "127.0.0.1:9999")
	t.Setenv("BERTH_PASSWORD_FILE", "/env/password")
	t.Setenv("BERTH_LOG_LEVEL", "debug")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/env/root", cfg.Server.Root)
	assert.Equal(t, "127.0.0.1:9999", cfg.Server.Addr)
	assert.Equal(t, "/env/password", cfg.Server.PasswordFile)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestRootPassword(t *testing.T) {
	cfg := DefaultConfig()

	t.Setenv("BERTH_PASSWORD", "from-environment")
	got, err := rootPassword(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-environment", got)

	t.Setenv("BERTH_PASSWORD", "")
	file := filepath.Join(t.TempDir(), "password")
	require.NoError(t, os.WriteFile(file, []byte("from-file\n"), 0o600))
	cfg.Server.PasswordFile = file
	got, err = rootPassword(cfg)
	require.NoError(t, err)
	assert.Equal(t, "from-file", got, "trailing newline must be trimmed")

	cfg.Server.PasswordFile = ""
	_, err = rootPassword(cfg)
	require.Error(t, err)
}

func TestDatabasePath(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Root = "/srv/berth"
	assert.Equal(t, filepath.Join("/srv/berth", server.DatabasesDirName, "inventory"), databasePath(cfg, "inventory"))
}
