// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package config

import (
	"os"
	"path/filepath"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Save writes the configuration to path atomically: the YAML document is
// written to a temp file in the same directory and renamed into place, so
// a crash mid-write never leaves a truncated config behind.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeConfigSaveWriteFailure, "marshalling config")
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeConfigSaveWriteFailure, "creating config directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".aegis-config-*.yaml")
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeConfigSaveWriteFailure, "creating temp config file")
	}
	tmpPath := tmp.Name()

	// Clean up the temp file on any failure path.
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return aegiserr.Wrapf(err, aegiserr.CodeConfigSaveWriteFailure, "writing temp config file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return aegiserr.Wrapf(err, aegiserr.CodeConfigSaveWriteFailure, "syncing temp config file")
	}
	if err := tmp.Close(); err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeConfigSaveWriteFailure, "closing temp config file")
	}

	if err := os.Chmod(tmpPath, 0o600); err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeConfigSaveWriteFailure, "setting config permissions")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeConfigSaveWriteFailure, "renaming config into place")
	}

	return nil
}
