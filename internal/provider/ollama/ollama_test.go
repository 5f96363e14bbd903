// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package ollama_test

import (
	"testing"

	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/internal/provider/ollama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NoCredentialRequired(t *testing.T) {
	inv, err := ollama.New(provider.Descriptor{ID: "ollama"}, "")
	require.NoError(t, err)
	assert.Equal(t, "ollama", inv.Name())
	assert.NoError(t, inv.Close())
}

func TestNew_CustomEndpoint(t *testing.T) {
	inv, err := ollama.New(provider.Descriptor{
		ID:       "ollama",
		Endpoint: "http://10.0.0.5:11434/v1",
		Model:    "mistral",
	}, "")
	require.NoError(t, err)
	assert.Equal(t, "ollama", inv.Name())
}
