// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package failover_test

import (
	"testing"
	"time"

	"github.com/aegis-dev/aegis/internal/breaker"
	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/failover"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHealth is a canned HealthView.
type fakeHealth struct {
	scores      map[string]float64
	lastSuccess map[string]time.Time
}

func (f *fakeHealth) Score(provider string) float64 {
	return f.scores[provider]
}

func (f *fakeHealth) LastSuccess(provider string) time.Time {
	return f.lastSuccess[provider]
}

func testProviders() map[string]config.ProviderConfig {
	return map[string]config.ProviderConfig{
		"openai":    {Priority: 10},
		"anthropic": {Priority: 8},
		"ollama":    {Priority: 1},
	}
}

func testWeights() config.SelectionConfig {
	return config.SelectionConfig{PriorityWeight: 0.3, HealthWeight: 0.5, RecencyWeight: 0.2}
}

func newSelector(hv failover.HealthView) (*failover.Selector, *breaker.Set) {
	breakers := breaker.NewSet(breaker.Settings{FailureThreshold: 1})
	return failover.NewSelector(testWeights(), testProviders(), hv, breakers), breakers
}

func TestSelectNext_HigherScoreWins(t *testing.T) {
	hv := &fakeHealth{scores: map[string]float64{
		"openai":    0.2,
		"anthropic": 1.0,
		"ollama":    0.9,
	}}
	s, _ := newSelector(hv)

	got, err := s.SelectNext(nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got)
}

func TestSelectNext_PriorityBreaksHealthTie(t *testing.T) {
	// Identical health and no recency; the priority component decides.
	hv := &fakeHealth{scores: map[string]float64{
		"openai":    1.0,
		"anthropic": 1.0,
		"ollama":    1.0,
	}}
	s, _ := newSelector(hv)

	got, err := s.SelectNext(nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", got)
}

func TestSelectNext_IDBreaksFullTie(t *testing.T) {
	providers := map[string]config.ProviderConfig{
		"beta":  {Priority: 5},
		"alpha": {Priority: 5},
	}
	hv := &fakeHealth{scores: map[string]float64{"alpha": 0.7, "beta": 0.7}}
	breakers := breaker.NewSet(breaker.Settings{})
	s := failover.NewSelector(testWeights(), providers, hv, breakers)

	got, err := s.SelectNext(nil)
	require.NoError(t, err)
	assert.Equal(t, "alpha", got)
}

func TestSelectNext_RecencyBoost(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	providers := map[string]config.ProviderConfig{
		"a": {Priority: 5},
		"b": {Priority: 5},
	}
	hv := &fakeHealth{
		scores: map[string]float64{"a": 0.8, "b": 0.8},
		lastSuccess: map[string]time.Time{
			"b": now.Add(-time.Minute),
		},
	}
	breakers := breaker.NewSet(breaker.Settings{})
	s := failover.NewSelector(testWeights(), providers, hv, breakers)
	s.SetNowFunc(func() time.Time { return now })

	got, err := s.SelectNext(nil)
	require.NoError(t, err)
	assert.Equal(t, "b", got)
}

func TestSelectNext_SkipsExcluded(t *testing.T) {
	hv := &fakeHealth{scores: map[string]float64{
		"openai":    1.0,
		"anthropic": 0.9,
		"ollama":    0.8,
	}}
	s, _ := newSelector(hv)

	got, err := s.SelectNext(map[string]struct{}{"openai": {}})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got)
}

func TestSelectNext_SkipsOpenCircuit(t *testing.T) {
	hv := &fakeHealth{scores: map[string]float64{
		"openai":    1.0,
		"anthropic": 0.9,
		"ollama":    0.8,
	}}
	s, breakers := newSelector(hv)
	breakers.Get("openai").RecordFailure() // threshold 1, opens immediately

	got, err := s.SelectNext(nil)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got)
}

func TestSelectNext_Exhausted(t *testing.T) {
	hv := &fakeHealth{scores: map[string]float64{}}
	s, breakers := newSelector(hv)
	breakers.Get("ollama").RecordFailure()

	_, err := s.SelectNext(map[string]struct{}{"openai": {}, "anthropic": {}})
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeProviderExhausted))
}

func TestSelectNext_DeterministicAcrossCalls(t *testing.T) {
	hv := &fakeHealth{scores: map[string]float64{
		"openai":    0.5,
		"anthropic": 0.5,
		"ollama":    0.5,
	}}
	s, _ := newSelector(hv)

	first, err := s.SelectNext(nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		got, err := s.SelectNext(nil)
		require.NoError(t, err)
		assert.Equal(t, first, got)
	}
}
