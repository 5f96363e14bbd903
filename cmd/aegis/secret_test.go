// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package main

import (
	"bytes"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-dev/aegis/internal/secrets"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// mockSecretStore is an in-memory secrets.Store for testing.
type mockSecretStore struct {
	data map[string]string
}

func newMockSecretStore(keys ...string) *mockSecretStore {
	m := &mockSecretStore{data: make(map[string]string)}
	for _, k := range keys {
		m.data[k] = "redacted"
	}
	return m
}

func (m *mockSecretStore) Store(_, key, value string) error {
	m.data[key] = value
	return nil
}

func (m *mockSecretStore) Retrieve(_, key string) (string, error) {
	v, ok := m.data[key]
	if !ok {
		return "", aegiserr.Errorf(aegiserr.CodeSecretNotFound, "not found")
	}
	return v, nil
}

func (m *mockSecretStore) Delete(_, key string) error {
	if _, ok := m.data[key]; !ok {
		return aegiserr.Errorf(aegiserr.CodeSecretNotFound, "not found")
	}
	delete(m.data, key)
	return nil
}

func (m *mockSecretStore) List(_ string) ([]string, error) {
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func withMockSecretStore(t *testing.T, mock *mockSecretStore) {
	t.Helper()
	origFactory := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return mock }
	t.Cleanup(func() { secretStoreFactory = origFactory })
}

func TestSecretSet_FromArg(t *testing.T) {
	mock := newMockSecretStore()
	withMockSecretStore(t, mock)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"secret", "set", "anthropic-key", "sk-ant-test"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Equal(t, "sk-ant-test", mock.data["anthropic-key"])
	assert.Contains(t, buf.String(), "keyring://aegis/anthropic-key")
}

func TestSecretSet_FromStdin(t *testing.T) {
	mock := newMockSecretStore()
	withMockSecretStore(t, mock)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetIn(strings.NewReader("sk-from-stdin\n"))
	root.SetArgs([]string{"secret", "set", "openai-key"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-stdin", mock.data["openai-key"])
}

func TestSecretSet_EmptyValue(t *testing.T) {
	withMockSecretStore(t, newMockSecretStore())

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetIn(strings.NewReader("\n"))
	root.SetArgs([]string{"secret", "set", "blank"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeCLIInputInvalid))
}

func TestSecretGet(t *testing.T) {
	mock := newMockSecretStore("anthropic-key")
	withMockSecretStore(t, mock)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"secret", "get", "anthropic-key"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Equal(t, "redacted\n", buf.String())
}

func TestSecretGet_NotFound(t *testing.T) {
	withMockSecretStore(t, newMockSecretStore())

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"secret", "get", "nope"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeSecretNotFound))
}

func TestSecretList(t *testing.T) {
	tests := []struct {
		name     string
		keys     []string
		wantKeys []string
		wantMsg  string
	}{
		{
			name:    "empty store",
			keys:    nil,
			wantMsg: "No secrets stored.\n",
		},
		{
			name:     "single key",
			keys:     []string{"anthropic-key"},
			wantKeys: []string{"anthropic-key"},
		},
		{
			name:     "multiple keys",
			keys:     []string{"api-key-1", "api-key-2"},
			wantKeys: []string{"api-key-1", "api-key-2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withMockSecretStore(t, newMockSecretStore(tt.keys...))

			root := NewRootCmd()
			buf := new(bytes.Buffer)
			root.SetOut(buf)
			root.SetArgs([]string{"secret", "list"})

			err := root.Execute()
			require.NoError(t, err)

			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, buf.String())
				return
			}
			got := strings.Fields(buf.String())
			sort.Strings(got)
			assert.Equal(t, tt.wantKeys, got)
		})
	}
}

func TestSecretDelete(t *testing.T) {
	mock := newMockSecretStore("stale-key")
	withMockSecretStore(t, mock)

	root := NewRootCmd()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetArgs([]string{"secret", "delete", "stale-key"})

	err := root.Execute()
	require.NoError(t, err)
	assert.Empty(t, mock.data)
	assert.Contains(t, buf.String(), "Deleted secret: stale-key")
}

func TestSecretDelete_NotFound(t *testing.T) {
	withMockSecretStore(t, newMockSecretStore())

	root := NewRootCmd()
	root.SetOut(new(bytes.Buffer))
	root.SetArgs([]string{"secret", "delete", "nope"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeSecretNotFound))
}
