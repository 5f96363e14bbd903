// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/aegis-dev/aegis/internal/events"
	"github.com/aegis-dev/aegis/internal/store"
	"github.com/aegis-dev/aegis/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(filepath.Join(t.TempDir(), "aegis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEventStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	ev := events.Event{
		ID:        "ev-1",
		Timestamp: base,
		Kind:      events.KindFallback,
		From:      "openai",
		To:        "anthropic",
		Reason:    "circuit open",
		Task:      "chat",
		Attempt:   2,
	}
	require.NoError(t, s.Events().Append(ctx, ev))

	got, err := s.Events().Query(ctx, store.EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ev, got[0])
}

func TestEventStore_QueryFilters(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	seed := []events.Event{
		{ID: "a", Timestamp: base, Kind: events.KindFallback, From: "openai", To: "anthropic"},
		{ID: "b", Timestamp: base.Add(time.Minute), Kind: events.KindRetry, From: "anthropic"},
		{ID: "c", Timestamp: base.Add(2 * time.Minute), Kind: events.KindBreaker, From: "openai", Reason: "opened"},
	}
	for _, ev := range seed {
		require.NoError(t, s.Events().Append(ctx, ev))
	}

	t.Run("by kind", func(t *testing.T) {
		got, err := s.Events().Query(ctx, store.EventFilter{Kind: events.KindRetry})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b", got[0].ID)
	})

	t.Run("by provider either side", func(t *testing.T) {
		got, err := s.Events().Query(ctx, store.EventFilter{Provider: "anthropic"})
		require.NoError(t, err)
		require.Len(t, got, 2)
	})

	t.Run("time window", func(t *testing.T) {
		got, err := s.Events().Query(ctx, store.EventFilter{
			From: base.Add(30 * time.Second),
			To:   base.Add(90 * time.Second),
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b", got[0].ID)
	})

	t.Run("limit and offset", func(t *testing.T) {
		got, err := s.Events().Query(ctx, store.EventFilter{Limit: 1, Offset: 2})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "c", got[0].ID)
	})
}

func TestMetricsStore_StatsAggregation(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	samples := []store.AttemptSample{
		{Provider: "openai", Timestamp: base, Success: true, LatencyMS: 300},
		{Provider: "openai", Timestamp: base.Add(time.Second), Success: false},
		{Provider: "openai", Timestamp: base.Add(2 * time.Second), Success: true, LatencyMS: 800, Retried: true},
		{Provider: "ollama", Timestamp: base, Success: true, LatencyMS: 50},
	}
	for _, sm := range samples {
		require.NoError(t, s.Metrics().RecordAttempt(ctx, sm))
	}

	stats, err := s.Metrics().Stats(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, stats, 2)

	byID := map[string]int{}
	for i, st := range stats {
		byID[st.Provider] = i
	}
	openai := stats[byID["openai"]]
	assert.Equal(t, 3, openai.Attempts)
	assert.Equal(t, 2, openai.Successes)
	assert.Equal(t, 1, openai.RetrySuccess)
	assert.Equal(t, 800*time.Millisecond, openai.P95Latency)

	ollama := stats[byID["ollama"]]
	assert.Equal(t, 1, ollama.Attempts)
	assert.Equal(t, 50*time.Millisecond, ollama.P95Latency)
}

func TestMetricsStore_Prune(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.Metrics().RecordAttempt(ctx, store.AttemptSample{
		Provider: "openai", Timestamp: base.Add(-48 * time.Hour), Success: true,
	}))
	require.NoError(t, s.Metrics().RecordAttempt(ctx, store.AttemptSample{
		Provider: "openai", Timestamp: base, Success: true,
	}))

	require.NoError(t, s.Metrics().Prune(ctx, base.Add(-24*time.Hour)))

	stats, err := s.Metrics().Stats(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Attempts)
}

func TestStore_ReopenPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "aegis.db")

	s1, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s1.Events().Append(ctx, events.Event{
		ID: "ev-1", Timestamp: time.Now().UTC(), Kind: events.KindHealth,
	}))
	require.NoError(t, s1.Close())

	s2, err := sqlite.New(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Events().Query(ctx, store.EventFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
}
