// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package provider defines the invocation boundary between the
// resilience core and the AI backends, plus the registry that builds
// adapters from configuration.
package provider

import (
	"context"
	"time"

	"github.com/aegis-dev/aegis/internal/config"
)

// Category groups providers for reporting.
type Category string

const (
	CategoryCloud      Category = "cloud"
	CategoryLocal      Category = "local"
	CategoryEnterprise Category = "enterprise"
	CategoryFree       Category = "free"
)

// Descriptor is the immutable identity of a configured provider.
// Created at startup from configuration, never mutated.
type Descriptor struct {
	ID          string
	DisplayName string
	Category    Category
	Priority    int
	Credential  string // credential reference (env var name or keyring URI); empty = none required
	Endpoint    string
	Model       string
	Timeout     time.Duration
	MaxTokens   int
	RatePerMin  int
}

// NewDescriptor builds a Descriptor from one provider's configuration.
func NewDescriptor(id string, cfg config.ProviderConfig) Descriptor {
	name := cfg.DisplayName
	if name == "" {
		name = id
	}
	return Descriptor{
		ID:          id,
		DisplayName: name,
		Category:    Category(cfg.Category),
		Priority:    cfg.Priority,
		Credential:  cfg.Credential,
		Endpoint:    cfg.Endpoint,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout(),
		MaxTokens:   cfg.MaxTokens,
		RatePerMin:  cfg.RatePerMin,
	}
}

// RequiresCredential reports whether the provider needs a resolvable
// credential before it can be invoked.
func (d Descriptor) RequiresCredential() bool {
	return d.Credential != ""
}

// Request is one generation request at the invocation boundary. The
// core never builds provider-specific payloads; adapters translate this
// shape into their SDK's parameters.
type Request struct {
	Task        string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Response is a completed generation.
type Response struct {
	Provider     string
	Model        string
	Text         string
	InputTokens  int
	OutputTokens int
}

// Invoker is the single abstract capability a provider exposes to the
// resilience core. Errors returned from Invoke must carry one of the
// provider error codes so retry classification works.
type Invoker interface {
	Name() string
	Invoke(ctx context.Context, req Request) (Response, error)
	// Probe makes a cheap authenticated call (model list or ping) to
	// confirm the provider is reachable and the credential is accepted.
	Probe(ctx context.Context) error
	Close() error
}
