// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package breaker

import (
	"sort"
	"sync"

	"github.com/aegis-dev/aegis/pkg/health"
)

// Set owns one Breaker per provider. Health probes and request attempts
// share the same instances, so both feed one failure counter.
type Set struct {
	mu       sync.Mutex
	settings Settings
	breakers map[string]*Breaker
}

// NewSet creates an empty Set; breakers are created on first use with
// the given settings.
func NewSet(settings Settings) *Set {
	return &Set{
		settings: settings,
		breakers: make(map[string]*Breaker),
	}
}

// Get returns the breaker for a provider, creating it on first use.
func (s *Set) Get(provider string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[provider]
	if !ok {
		b = New(provider, s.settings)
		s.breakers[provider] = b
	}
	return b
}

// ResetAll force-closes every breaker in the set.
func (s *Set) ResetAll() {
	for _, b := range s.all() {
		b.Reset()
	}
}

// Snapshots returns a point-in-time view of every breaker, sorted by
// provider id.
func (s *Set) Snapshots() []health.BreakerSnapshot {
	breakers := s.all()
	out := make([]health.BreakerSnapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

func (s *Set) all() []*Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Breaker, 0, len(s.breakers))
	for _, b := range s.breakers {
		out = append(out, b)
	}
	return out
}
