// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package retry

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/aegis-dev/aegis/internal/config"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Policy decides whether a failed attempt is retried in place and how long
// to wait before the retry. Only transient errors (timeouts, rate limits,
// upstream and network failures) are retryable; credential rejections and
// malformed requests escalate immediately.
type Policy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64

	// maxElapsed bounds the cumulative time spent on one provider; zero
	// means no elapsed-time bound beyond the attempt cap.
	maxElapsed time.Duration

	// rngFunc returns a value in [0, 1); replaceable for tests.
	rngFunc func() float64
}

// NewPolicy builds a Policy from retry configuration.
func NewPolicy(cfg config.RetryConfig) *Policy {
	p := &Policy{
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay(),
		maxDelay:   cfg.MaxDelay(),
		multiplier: cfg.Multiplier,
		maxElapsed: cfg.MaxElapsed(),
		rngFunc:    rand.Float64,
	}
	if p.baseDelay <= 0 {
		p.baseDelay = time.Second
	}
	if p.maxDelay < p.baseDelay {
		p.maxDelay = p.baseDelay
	}
	if p.multiplier < 1 {
		p.multiplier = 2
	}
	return p
}

// SetRandFunc overrides the jitter source (for testing).
func (p *Policy) SetRandFunc(fn func() float64) {
	p.rngFunc = fn
}

// MaxRetries returns the per-provider attempt cap.
func (p *Policy) MaxRetries() int { return p.maxRetries }

// ShouldRetry reports whether the attempt should be retried against the
// same provider. attempt is zero-based: attempt 0 is the first call, so a
// true result means attempt+1 will run. The attempt cap applies regardless
// of error class, guaranteeing termination.
func (p *Policy) ShouldRetry(err error, attempt int, elapsed time.Duration) bool {
	if attempt >= p.maxRetries {
		return false
	}
	if p.maxElapsed > 0 && elapsed >= p.maxElapsed {
		return false
	}
	return aegiserr.IsTransient(err)
}

// NextDelay computes the jittered backoff delay before retry n (zero-based):
// min(maxDelay, baseDelay * multiplier^attempt) scaled by a jitter factor
// in [0.5, 1.5), so independent callers never retry in lockstep.
func (p *Policy) NextDelay(attempt int) time.Duration {
	base := p.backoff(attempt)
	jitter := 0.5 + p.rngFunc()
	return time.Duration(float64(base) * jitter)
}

// backoff is the un-jittered exponential delay, capped at maxDelay.
func (p *Policy) backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	scaled := float64(p.baseDelay) * math.Pow(p.multiplier, float64(attempt))
	if scaled > float64(p.maxDelay) {
		return p.maxDelay
	}
	return time.Duration(scaled)
}
