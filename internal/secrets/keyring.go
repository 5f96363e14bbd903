// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package secrets

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/zalando/go-keyring"
)

// indexEntry is the reserved per-service entry holding the JSON set of
// stored key names. go-keyring cannot enumerate entries on any platform,
// so List is backed by this self-maintained index.
const indexEntry = "__aegis-index__"

const keyringScheme = "keyring://"

// KeyringURI renders the keyring://service/key reference for a stored
// secret, the form provider credential fields accept in aegis.yaml.
func KeyringURI(service, key string) string {
	return fmt.Sprintf("%s%s/%s", keyringScheme, service, key)
}

// IsKeyringURI reports whether ref uses the keyring:// URI scheme.
func IsKeyringURI(ref string) bool {
	return strings.HasPrefix(ref, keyringScheme)
}

// ParseKeyringURI extracts service and key from a keyring://service/key URI.
func ParseKeyringURI(uri string) (service, key string, err error) {
	if !IsKeyringURI(uri) {
		return "", "", aegiserr.Errorf(aegiserr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}

	path := strings.TrimPrefix(uri, keyringScheme)
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", aegiserr.Errorf(aegiserr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}

	return parts[0], parts[1], nil
}

// KeyringStore implements Store on the OS credential store via
// zalando/go-keyring: Keychain on macOS, secret-service (D-Bus) on
// Linux, Credential Manager on Windows. The mutex serializes index
// rewrites so concurrent Store and Delete calls cannot drop entries
// from the read-modify-write cycle.
type KeyringStore struct {
	mu sync.Mutex
}

// NewKeyringStore returns a KeyringStore.
func NewKeyringStore() *KeyringStore {
	return &KeyringStore{}
}

func (s *KeyringStore) Store(service, key, value string) error {
	if err := checkRef("store", service, key); err != nil {
		return err
	}
	if key == indexEntry {
		return aegiserr.Errorf(aegiserr.CodeSecretInvalidInput, "secret store: key %q is reserved", key)
	}

	if err := keyring.Set(service, key, value); err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}

	return s.mutateIndex(service, func(keys map[string]struct{}) {
		keys[key] = struct{}{}
	})
}

func (s *KeyringStore) Retrieve(service, key string) (string, error) {
	if err := checkRef("retrieve", service, key); err != nil {
		return "", err
	}

	val, err := keyring.Get(service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", aegiserr.Errorf(aegiserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return "", aegiserr.Wrapf(err, aegiserr.CodeSecretStoreFailure, "retrieving secret %s/%s", service, key)
	}
	return val, nil
}

func (s *KeyringStore) Delete(service, key string) error {
	if err := checkRef("delete", service, key); err != nil {
		return err
	}

	if err := keyring.Delete(service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return aegiserr.Errorf(aegiserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
		}
		return aegiserr.Wrapf(err, aegiserr.CodeSecretDeleteFailure, "deleting secret %s/%s", service, key)
	}

	return s.mutateIndex(service, func(keys map[string]struct{}) {
		delete(keys, key)
	})
}

// List returns the sorted key names stored under a service.
func (s *KeyringStore) List(service string) ([]string, error) {
	keys, err := readIndex(service)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}
	return sortedKeys(keys), nil
}

// checkRef rejects empty service or key names before they reach the
// OS keyring, where the resulting errors are backend-specific.
func checkRef(op, service, key string) error {
	if service == "" {
		return aegiserr.Errorf(aegiserr.CodeSecretInvalidInput, "secret %s: service must not be empty", op)
	}
	if key == "" {
		return aegiserr.Errorf(aegiserr.CodeSecretInvalidInput, "secret %s: key must not be empty", op)
	}
	return nil
}

// mutateIndex applies one change to a service's key index under the
// lock and persists the result. An index that becomes empty is removed
// from the keyring entirely.
func (s *KeyringStore) mutateIndex(service string, apply func(map[string]struct{})) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := readIndex(service)
	if err != nil {
		return err
	}
	apply(keys)

	if len(keys) == 0 {
		if delErr := keyring.Delete(service, indexEntry); delErr != nil && !errors.Is(delErr, keyring.ErrNotFound) {
			slog.Debug("removing empty key index failed", "service", service, "error", delErr)
		}
		return nil
	}

	data, err := json.Marshal(sortedKeys(keys))
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeSecretListFailure, "encoding key index for service %s", service)
	}
	if err := keyring.Set(service, indexEntry, string(data)); err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeSecretListFailure, "saving key index for service %s", service)
	}
	return nil
}

// readIndex loads a service's key index as a set. A missing index means
// no keys have been stored yet.
func readIndex(service string) (map[string]struct{}, error) {
	raw, err := keyring.Get(service, indexEntry)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return map[string]struct{}{}, nil
		}
		return nil, aegiserr.Wrapf(err, aegiserr.CodeSecretListFailure, "loading key index for service %s", service)
	}

	var names []string
	if err := json.Unmarshal([]byte(raw), &names); err != nil {
		return nil, aegiserr.Wrapf(err, aegiserr.CodeSecretListFailure, "decoding key index for service %s", service)
	}

	keys := make(map[string]struct{}, len(names))
	for _, n := range names {
		keys[n] = struct{}{}
	}
	return keys, nil
}

func sortedKeys(keys map[string]struct{}) []string {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
