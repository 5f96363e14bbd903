// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/events"
)

func init() {
	RegisterBackend("memory", func(string) (Store, error) {
		return NewMemoryStore(), nil
	})
}

// MemoryStore is a non-persistent Store. It backs tests and runs where
// no data directory is available.
type MemoryStore struct {
	ev *memoryEventStore
	mt *memoryMetricsStore
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		ev: &memoryEventStore{},
		mt: &memoryMetricsStore{},
	}
}

func (m *MemoryStore) Events() EventStore    { return m.ev }
func (m *MemoryStore) Metrics() MetricsStore { return m.mt }
func (m *MemoryStore) Close() error          { return nil }

var _ Store = (*MemoryStore)(nil)

type memoryEventStore struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *memoryEventStore) Append(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memoryEventStore) Query(_ context.Context, filter EventFilter) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []events.Event
	for _, ev := range s.events {
		if filter.Kind != "" && ev.Kind != filter.Kind {
			continue
		}
		if filter.Provider != "" && ev.From != filter.Provider && ev.To != filter.Provider {
			continue
		}
		if !filter.From.IsZero() && ev.Timestamp.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && !ev.Timestamp.Before(filter.To) {
			continue
		}
		matched = append(matched, ev)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	out := make([]events.Event, len(matched))
	copy(out, matched)
	return out, nil
}

type memoryMetricsStore struct {
	mu      sync.Mutex
	samples []AttemptSample
}

func (s *memoryMetricsStore) RecordAttempt(_ context.Context, sample AttemptSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
	return nil
}

func (s *memoryMetricsStore) Stats(_ context.Context, since time.Time) ([]config.ObservedStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byProvider := map[string][]AttemptSample{}
	for _, sm := range s.samples {
		if !since.IsZero() && sm.Timestamp.Before(since) {
			continue
		}
		byProvider[sm.Provider] = append(byProvider[sm.Provider], sm)
	}

	ids := make([]string, 0, len(byProvider))
	for id := range byProvider {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]config.ObservedStats, 0, len(ids))
	for _, id := range ids {
		out = append(out, AggregateSamples(id, byProvider[id]))
	}
	return out, nil
}

func (s *memoryMetricsStore) Prune(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.Timestamp.Before(before) {
			kept = append(kept, sm)
		}
	}
	s.samples = kept
	return nil
}

// AggregateSamples folds raw attempt samples into the per-provider stats
// shape. Used by both the memory and sqlite backends so the percentile
// math lives in one place.
func AggregateSamples(provider string, samples []AttemptSample) config.ObservedStats {
	st := config.ObservedStats{Provider: provider}

	var latencies []int64
	for _, sm := range samples {
		st.Attempts++
		if sm.Success {
			st.Successes++
			latencies = append(latencies, sm.LatencyMS)
		}
		if sm.Retried && sm.Success {
			st.RetrySuccess++
		}
	}

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
		idx := (len(latencies)*95 + 99) / 100
		if idx > 0 {
			idx--
		}
		st.P95Latency = time.Duration(latencies[idx]) * time.Millisecond
	}
	return st
}
