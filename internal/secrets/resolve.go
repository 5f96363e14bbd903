// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package secrets

import (
	"os"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Resolver turns provider credential references into secret values.
// A reference is either an environment variable name (e.g. OPENAI_API_KEY)
// or a keyring://service/key URI resolved through the secret store.
type Resolver struct {
	store Store

	// getenv is replaceable for tests.
	getenv func(string) string
}

// NewResolver creates a Resolver backed by the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, getenv: os.Getenv}
}

// SetGetenv overrides the environment lookup (for testing).
func (r *Resolver) SetGetenv(fn func(string) string) {
	r.getenv = fn
}

// Resolve returns the secret value for a credential reference.
// Returns CodeSecretNotFound when the reference cannot be resolved.
func (r *Resolver) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", aegiserr.New(aegiserr.CodeSecretInvalidInput, "credential reference must not be empty")
	}

	if IsKeyringURI(ref) {
		service, key, err := ParseKeyringURI(ref)
		if err != nil {
			return "", err
		}
		val, err := r.store.Retrieve(service, key)
		if err != nil {
			return "", aegiserr.Wrapf(err, aegiserr.CodeSecretResolveFailure, "resolving keyring URI %q", ref)
		}
		return val, nil
	}

	if val := r.getenv(ref); val != "" {
		return val, nil
	}

	return "", aegiserr.Errorf(aegiserr.CodeSecretNotFound, "credential %q not set in environment", ref)
}

// Has reports whether a credential reference resolves to a non-empty value.
// It satisfies config.CredentialLookup.
func (r *Resolver) Has(ref string) bool {
	val, err := r.Resolve(ref)
	return err == nil && val != ""
}
