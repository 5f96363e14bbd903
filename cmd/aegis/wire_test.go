// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-dev/aegis/internal/config"
)

func testWireConfig(t *testing.T) *config.Config {
	t.Helper()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("primary", "ollama")
	v.Set("providers", map[string]any{
		"ollama": map[string]any{"category": "local", "priority": 1, "timeout_ms": 5000},
	})
	v.Set("storage.backend", "memory")

	cfg, err := config.FromViper(v)
	require.NoError(t, err)
	return cfg
}

func TestWireDaemon(t *testing.T) {
	d, err := WireDaemon(testWireConfig(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, d.Close()) }()

	assert.Equal(t, []string{"ollama"}, d.Registry.IDs())
	assert.Contains(t, d.Monitor.Providers(), "ollama")
	assert.NotNil(t, d.Orchestrator)
	assert.NotNil(t, d.Server)
}

func TestWireDaemon_InvalidConfig(t *testing.T) {
	cfg := testWireConfig(t)
	cfg.Primary = "missing"

	_, err := WireDaemon(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing")
}

func TestWireDaemon_UnknownStorageBackend(t *testing.T) {
	cfg := testWireConfig(t)
	cfg.Storage.Backend = "etcd"

	_, err := WireDaemon(cfg)
	require.Error(t, err)
}
