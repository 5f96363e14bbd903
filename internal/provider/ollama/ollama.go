// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package ollama adapts a local Ollama server through its
// OpenAI-compatible endpoint, reusing the openai adapter.
package ollama

import (
	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/internal/provider/openai"
)

const (
	defaultEndpoint = "http://127.0.0.1:11434/v1"
	defaultModel    = "llama3.1"

	// Ollama ignores the API key but the SDK requires a non-empty one.
	placeholderKey = "ollama"
)

func init() {
	provider.RegisterFactory("ollama", New)
}

// New creates an Ollama adapter. No credential is required; a local
// endpoint is assumed when none is configured.
func New(desc provider.Descriptor, credential string) (provider.Invoker, error) {
	if desc.Endpoint == "" {
		desc.Endpoint = defaultEndpoint
	}
	if desc.Model == "" {
		desc.Model = defaultModel
	}
	if credential == "" {
		credential = placeholderKey
	}
	return openai.New(desc, credential)
}
