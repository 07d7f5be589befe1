// Copyright (C) 2025-2026 Kraklabs. All rights reserved.
// Use of this source code is governed by the AGPL-3.0
// license that can be found in the LICENSE file.

package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MetadataFileName is the descriptor file at the root of every database
// directory.
const MetadataFileName = "metadata.yaml"

// FormatVersion is the directory layout version this build writes.
const FormatVersion = 1

// engineName identifies the engine whose files live in the directory.
const engineName = "sqlite"

// Metadata describes a database directory on disk. It is written once when
// the directory is first created and validated on every open.
type Metadata struct {
	FormatVersion int       `yaml:"format_version"`
	Engine        string    `yaml:"engine"`
	CreatedAt     time.Time `yaml:"created_at"`
}

// loadOrCreateMetadata reads the directory descriptor, writing a fresh one
// on first open. Directories written by a newer layout, or by a different
// engine, are rejected rather than guessed at.
func loadOrCreateMetadata(dir string) (*Metadata, error) {
	path := filepath.Join(dir, MetadataFileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		meta := &Metadata{
			FormatVersion: FormatVersion,
			Engine:        engineName,
			CreatedAt:     time.Now().UTC(),
		}
		out, err := yaml.Marshal(meta)
		if err != nil {
			return nil, fmt.Errorf("encode metadata: %w", err)
		}
		if err := os.WriteFile(path, out, 0600); err != nil {
			return nil, fmt.Errorf("write metadata: %w", err)
		}
		return meta, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse metadata at %s: %w", path, err)
	}
	if meta.FormatVersion > FormatVersion {
		return nil, fmt.Errorf("database at %s uses format v%d, this build understands up to v%d",
			dir, meta.FormatVersion, FormatVersion)
	}
	if meta.Engine != engineName {
		return nil, fmt.Errorf("database at %s uses engine %q, this build provides %q",
			dir, meta.Engine, engineName)
	}
	return &meta, nil
}
