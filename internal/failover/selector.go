// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package failover ranks providers and picks the next candidate when the
// current one fails.
package failover

import (
	"sort"
	"time"

	"github.com/aegis-dev/aegis/internal/breaker"
	"github.com/aegis-dev/aegis/internal/config"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// recencyWindow bounds how long a past success keeps boosting a
// provider's rank.
const recencyWindow = 10 * time.Minute

// HealthView is the read surface the selector needs from the health
// monitor.
type HealthView interface {
	Score(provider string) float64
	LastSuccess(provider string) time.Time
}

// Selector picks the best available provider by weighted score.
type Selector struct {
	weights    config.SelectionConfig
	providers  map[string]config.ProviderConfig
	healthview HealthView
	breakers   *breaker.Set

	nowFunc func() time.Time
}

// NewSelector creates a Selector over the configured providers. The
// health view and breaker set are shared with the monitor and
// orchestrator.
func NewSelector(weights config.SelectionConfig, providers map[string]config.ProviderConfig, hv HealthView, breakers *breaker.Set) *Selector {
	return &Selector{
		weights:    weights,
		providers:  providers,
		healthview: hv,
		breakers:   breakers,
		nowFunc:    time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (s *Selector) SetNowFunc(fn func() time.Time) {
	s.nowFunc = fn
}

type candidate struct {
	id       string
	priority int
	score    float64
}

// SelectNext returns the highest-ranked provider not in excluded and not
// behind an open circuit. Ranking combines static priority, health score
// and recency of last success under the configured weights; ties break
// by priority, then id, so selection is deterministic.
func (s *Selector) SelectNext(excluded map[string]struct{}) (string, error) {
	maxPriority := 0
	for _, p := range s.providers {
		if p.Priority > maxPriority {
			maxPriority = p.Priority
		}
	}

	now := s.nowFunc()
	var candidates []candidate
	for id, p := range s.providers {
		if _, skip := excluded[id]; skip {
			continue
		}
		if s.breakers.Get(id).State() == breaker.StateOpen {
			continue
		}

		priorityScore := 0.0
		if maxPriority > 0 {
			priorityScore = float64(p.Priority) / float64(maxPriority)
		}
		healthScore := s.healthview.Score(id)
		recencyScore := 0.0
		if last := s.healthview.LastSuccess(id); !last.IsZero() {
			age := now.Sub(last)
			if age < 0 {
				age = 0
			}
			if age < recencyWindow {
				recencyScore = 1 - float64(age)/float64(recencyWindow)
			}
		}

		candidates = append(candidates, candidate{
			id:       id,
			priority: p.Priority,
			score: s.weights.PriorityWeight*priorityScore +
				s.weights.HealthWeight*healthScore +
				s.weights.RecencyWeight*recencyScore,
		})
	}

	if len(candidates) == 0 {
		return "", aegiserr.New(aegiserr.CodeProviderExhausted,
			"no provider available: all candidates excluded or circuit-open")
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.priority != b.priority {
			return a.priority > b.priority
		}
		return a.id < b.id
	})
	return candidates[0].id, nil
}
