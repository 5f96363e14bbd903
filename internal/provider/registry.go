// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package provider

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/aegis-dev/aegis/internal/config"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Factory builds an adapter for one configured provider. credential is
// the resolved secret value, empty when the descriptor requires none.
type Factory func(desc Descriptor, credential string) (Invoker, error)

var (
	factories   = map[string]Factory{}
	factoriesMu sync.RWMutex
)

// RegisterFactory registers an adapter factory under a provider id.
// Adapter packages call this from init(). Goroutine-safe.
func RegisterFactory(id string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[id] = f
}

func lookupFactory(id string) (Factory, bool) {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	f, ok := factories[id]
	return f, ok
}

// CredentialResolver turns a credential reference (env var name or
// keyring URI) into the secret value.
type CredentialResolver interface {
	Resolve(ref string) (string, error)
}

// Registry holds the built adapters and their descriptors for one
// configuration. It is immutable after construction; hot reload builds
// a new Registry and swaps it.
type Registry struct {
	descriptors map[string]Descriptor
	invokers    map[string]Invoker
}

// NewEmptyRegistry creates a Registry with no providers; adapters are
// added with Register. Used by tests and custom wiring.
func NewEmptyRegistry() *Registry {
	return &Registry{
		descriptors: make(map[string]Descriptor),
		invokers:    make(map[string]Invoker),
	}
}

// NewRegistry builds adapters for every configured provider. A provider
// whose credential cannot be resolved is skipped with a warning unless
// it is the configured primary, which is a hard error: a broken primary
// is a configuration problem, not a degraded state.
func NewRegistry(cfg *config.Config, resolver CredentialResolver) (*Registry, error) {
	r := &Registry{
		descriptors: make(map[string]Descriptor),
		invokers:    make(map[string]Invoker),
	}

	ids := make([]string, 0, len(cfg.Providers))
	for id := range cfg.Providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		desc := NewDescriptor(id, cfg.Providers[id])

		factory, ok := lookupFactory(id)
		if !ok {
			if id == cfg.Primary {
				return nil, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue,
					"primary provider %q has no registered adapter", id)
			}
			slog.Warn("no adapter registered for provider, skipping", "provider", id)
			continue
		}

		credential := ""
		if desc.RequiresCredential() {
			var err error
			credential, err = resolver.Resolve(desc.Credential)
			if err != nil {
				if id == cfg.Primary {
					// Resolver errors already carry their own code, so a
					// wrap would not surface the credential-missing one.
					return nil, aegiserr.Errorf(aegiserr.CodeConfigCredentialMissing,
						"resolving credential for primary provider %q: %v", id, err)
				}
				slog.Warn("credential unresolved for fallback provider, skipping",
					"provider", id, "error", err)
				continue
			}
		}

		inv, err := factory(desc, credential)
		if err != nil {
			if id == cfg.Primary {
				return nil, aegiserr.Wrapf(err, aegiserr.CodeConfigValidateInvalidValue,
					"building adapter for primary provider %q", id)
			}
			slog.Warn("building adapter failed for fallback provider, skipping",
				"provider", id, "error", err)
			continue
		}

		r.descriptors[id] = desc
		r.invokers[id] = inv
	}

	if len(r.invokers) == 0 {
		return nil, aegiserr.New(aegiserr.CodeConfigValidateInvalidValue,
			"no usable providers configured")
	}
	return r, nil
}

// Register adds a prebuilt adapter. Used by tests and custom wiring.
func (r *Registry) Register(desc Descriptor, inv Invoker) {
	r.descriptors[desc.ID] = desc
	r.invokers[desc.ID] = inv
}

// Get returns the adapter for a provider id.
func (r *Registry) Get(id string) (Invoker, error) {
	inv, ok := r.invokers[id]
	if !ok {
		return nil, aegiserr.Errorf(aegiserr.CodeProviderNotFound,
			"provider %q is not registered", id)
	}
	return inv, nil
}

// Descriptor returns the descriptor for a provider id.
func (r *Registry) Descriptor(id string) (Descriptor, error) {
	desc, ok := r.descriptors[id]
	if !ok {
		return Descriptor{}, aegiserr.Errorf(aegiserr.CodeProviderNotFound,
			"provider %q is not registered", id)
	}
	return desc, nil
}

// Descriptors returns every registered descriptor, sorted by id.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.descriptors))
	for _, d := range r.descriptors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IDs returns the registered provider ids, sorted.
func (r *Registry) IDs() []string {
	out := make([]string, 0, len(r.invokers))
	for id := range r.invokers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Close closes every adapter, joining any errors.
func (r *Registry) Close() error {
	var errs []error
	for _, inv := range r.invokers {
		if err := inv.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
