// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package sqlite

import (
	"os"
	"path/filepath"

	"github.com/aegis-dev/aegis/internal/store"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

func init() {
	store.RegisterBackend("sqlite", newStore)
}

func newStore(dataDir string) (store.Store, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, aegiserr.Wrap(err, aegiserr.CodeStoreOpenFailure, "creating data dir")
	}
	return New(filepath.Join(dataDir, "aegis.db"))
}
