// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package health

import "time"

// Snapshot exposes the current health state of a provider for monitoring
// and operator visibility. All fields are point-in-time values safe to
// serialize to JSON.
type Snapshot struct {
	Provider      string     `json:"provider"`
	Available     bool       `json:"available"`
	Score         float64    `json:"score"`
	LatencyScore  float64    `json:"latency_score"`
	SuccessScore  float64    `json:"success_score"`
	ErrorScore    float64    `json:"error_score"`
	BreakerScore  float64    `json:"breaker_score"`
	Successes     int        `json:"successes"`
	Failures      int        `json:"failures"`
	LastLatencyMS int64      `json:"last_latency_ms"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// BreakerSnapshot is a point-in-time view of a provider's circuit breaker.
type BreakerSnapshot struct {
	Provider            string     `json:"provider"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	OpenedAt            *time.Time `json:"opened_at,omitempty"`
	HalfOpenCalls       int        `json:"half_open_calls"`
}
