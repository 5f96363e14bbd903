// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package retry_test

import (
	"testing"
	"time"

	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/retry"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func newPolicy(maxRetries int) *retry.Policy {
	return retry.NewPolicy(config.RetryConfig{
		MaxRetries:  maxRetries,
		BaseDelayMS: 1000,
		MaxDelayMS:  30000,
		Multiplier:  2.0,
	})
}

func transientErr() error {
	return aegiserr.New(aegiserr.CodeProviderCallTimeout, "deadline exceeded")
}

func TestShouldRetry_TransientErrors(t *testing.T) {
	p := newPolicy(3)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", aegiserr.New(aegiserr.CodeProviderCallTimeout, "x"), true},
		{"rate limited", aegiserr.New(aegiserr.CodeProviderRateLimited, "x"), true},
		{"upstream", aegiserr.New(aegiserr.CodeProviderUpstreamError, "x"), true},
		{"network", aegiserr.New(aegiserr.CodeProviderNetworkError, "x"), true},
		{"auth denied", aegiserr.New(aegiserr.CodeProviderAuthDenied, "x"), false},
		{"malformed request", aegiserr.New(aegiserr.CodeProviderRequestInvalid, "x"), false},
		{"breaker rejected", aegiserr.New(aegiserr.CodeBreakerRejected, "x"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.ShouldRetry(tt.err, 0, 0))
		})
	}
}

func TestShouldRetry_AttemptCapIsAbsolute(t *testing.T) {
	const maxRetries = 4
	p := newPolicy(maxRetries)

	for attempt := 0; attempt < 10; attempt++ {
		want := attempt < maxRetries
		assert.Equal(t, want, p.ShouldRetry(transientErr(), attempt, 0),
			"attempt %d", attempt)
	}
}

func TestShouldRetry_ElapsedCap(t *testing.T) {
	p := retry.NewPolicy(config.RetryConfig{
		MaxRetries:   5,
		BaseDelayMS:  1000,
		MaxDelayMS:   30000,
		Multiplier:   2.0,
		MaxElapsedMS: 10000,
	})

	assert.True(t, p.ShouldRetry(transientErr(), 0, 9*time.Second))
	assert.False(t, p.ShouldRetry(transientErr(), 0, 10*time.Second))
	assert.False(t, p.ShouldRetry(transientErr(), 0, 11*time.Second))

	// Zero disables the cap entirely.
	unbounded := newPolicy(5)
	assert.True(t, unbounded.ShouldRetry(transientErr(), 0, time.Hour))
}

func TestShouldRetry_ZeroMaxRetries(t *testing.T) {
	p := newPolicy(0)
	assert.False(t, p.ShouldRetry(transientErr(), 0, 0))
}

func TestNextDelay_ExponentialGrowth(t *testing.T) {
	p := newPolicy(5)
	// Fix jitter factor at exactly 1.0.
	p.SetRandFunc(func() float64 { return 0.5 })

	assert.Equal(t, 1*time.Second, p.NextDelay(0))
	assert.Equal(t, 2*time.Second, p.NextDelay(1))
	assert.Equal(t, 4*time.Second, p.NextDelay(2))
	assert.Equal(t, 8*time.Second, p.NextDelay(3))
}

func TestNextDelay_CappedAtMaxDelay(t *testing.T) {
	p := newPolicy(5)
	p.SetRandFunc(func() float64 { return 0.5 })

	// 1s * 2^10 = 1024s, far past the 30s cap.
	assert.Equal(t, 30*time.Second, p.NextDelay(10))
	assert.Equal(t, 30*time.Second, p.NextDelay(50))
}

func TestNextDelay_MonotonicIgnoringJitter(t *testing.T) {
	p := newPolicy(5)
	p.SetRandFunc(func() float64 { return 0.5 })

	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := p.NextDelay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, 30*time.Second)
		prev = d
	}
}

func TestNextDelay_JitterBounds(t *testing.T) {
	p := newPolicy(5)

	// With the real RNG, every delay must land in [0.5x, 1.5x) of the
	// un-jittered backoff.
	for i := 0; i < 200; i++ {
		d := p.NextDelay(1) // base 2s
		assert.GreaterOrEqual(t, d, 1*time.Second)
		assert.Less(t, d, 3*time.Second)
	}
}

func TestNextDelay_NegativeAttemptClamped(t *testing.T) {
	p := newPolicy(5)
	p.SetRandFunc(func() float64 { return 0.5 })
	assert.Equal(t, 1*time.Second, p.NextDelay(-3))
}
