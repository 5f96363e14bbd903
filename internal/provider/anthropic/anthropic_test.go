// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package anthropic_test

import (
	"testing"

	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/internal/provider/anthropic"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := anthropic.New(provider.Descriptor{ID: "anthropic"}, "")
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeProviderRequestInvalid))
}

func TestNew_NameFollowsDescriptor(t *testing.T) {
	c, err := anthropic.New(provider.Descriptor{ID: "anthropic"}, "test-key")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", c.Name())
	assert.NoError(t, c.Close())
}
