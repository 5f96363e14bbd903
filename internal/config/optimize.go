// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package config

import (
	"math"
	"time"
)

// ObservedStats summarizes recent attempt history for one provider, as
// aggregated from the metrics store. Optimize consumes these to propose
// adjusted thresholds.
type ObservedStats struct {
	Provider     string
	Attempts     int
	Successes    int
	P95Latency   time.Duration
	RetrySuccess int // attempts that eventually succeeded after at least one retry
}

// SuccessRate returns successes / attempts, or 1 when there is no history.
func (s ObservedStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 1
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// minOptimizeAttempts is the history floor below which a provider's stats
// are ignored rather than extrapolated from noise.
const minOptimizeAttempts = 20

// Optimize proposes an adjusted configuration from observed performance
// history. It is advisory: the returned config is a modified copy and is
// never applied automatically.
//
// Heuristics:
//   - performance.max_response_time_ms tracks 1.5x the worst observed p95
//     latency, clamped to [1s, 60s].
//   - breaker.failure_threshold tightens to 3 when any provider's observed
//     success rate falls below min_success_rate, relaxes to 5 otherwise.
//   - retry.max_retries grows by one (cap 5) when retries are observed to
//     rescue calls, shrinks toward 2 when they never do.
func Optimize(cfg *Config, stats []ObservedStats) *Config {
	out := cfg.Clone()

	var worstP95 time.Duration
	var worstSuccess = 1.0
	retriesHelped := false
	considered := 0

	for _, s := range stats {
		if s.Attempts < minOptimizeAttempts {
			continue
		}
		considered++
		if s.P95Latency > worstP95 {
			worstP95 = s.P95Latency
		}
		if rate := s.SuccessRate(); rate < worstSuccess {
			worstSuccess = rate
		}
		if s.RetrySuccess > 0 {
			retriesHelped = true
		}
	}

	if considered == 0 {
		return out
	}

	if worstP95 > 0 {
		proposed := int64(math.Round(float64(worstP95.Milliseconds()) * 1.5))
		out.Performance.MaxResponseTimeMS = clampInt64(proposed, 1000, 60000)
	}

	if worstSuccess < cfg.Performance.MinSuccessRate {
		out.Breaker.FailureThreshold = 3
	} else {
		out.Breaker.FailureThreshold = 5
	}

	switch {
	case retriesHelped && out.Retry.MaxRetries < 5:
		out.Retry.MaxRetries++
	case !retriesHelped && out.Retry.MaxRetries > 2:
		out.Retry.MaxRetries--
	}

	return out
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	out.Fallbacks = append([]string(nil), c.Fallbacks...)
	out.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	if c.Providers != nil {
		out.Providers = make(map[string]ProviderConfig, len(c.Providers))
		for id, p := range c.Providers {
			out.Providers[id] = p
		}
	}
	return &out
}

func clampInt64(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
