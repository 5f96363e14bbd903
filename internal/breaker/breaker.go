// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package breaker

import (
	"log/slog"
	"sync"
	"time"

	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/aegis-dev/aegis/pkg/health"
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed permits all calls.
	StateClosed State = iota
	// StateOpen rejects all calls without invoking the provider.
	StateOpen
	// StateHalfOpen permits a bounded number of trial calls.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Settings configures a Breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the circuit.
	FailureThreshold int

	// ResetTimeout is how long an open circuit waits before permitting
	// trial calls.
	ResetTimeout time.Duration

	// HalfOpenMaxCalls is the number of trial calls permitted while
	// half-open; that many consecutive successes close the circuit.
	HalfOpenMaxCalls int
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.ResetTimeout <= 0 {
		s.ResetTimeout = 30 * time.Second
	}
	if s.HalfOpenMaxCalls <= 0 {
		s.HalfOpenMaxCalls = 1
	}
	return s
}

// Breaker gates calls to a single provider. Health probes and live request
// attempts report outcomes through the same RecordSuccess/RecordFailure
// path, so the breaker sees all traffic.
type Breaker struct {
	provider string
	settings Settings

	mu                sync.Mutex
	state             State
	failures          int // consecutive failures while closed
	openedAt          time.Time
	halfOpenCalls     int // trial slots handed out this half-open period
	halfOpenSuccesses int

	nowFunc func() time.Time // for testing
}

// New creates a closed Breaker for the named provider.
func New(provider string, settings Settings) *Breaker {
	return &Breaker{
		provider: provider,
		settings: settings.withDefaults(),
		state:    StateClosed,
		nowFunc:  time.Now,
	}
}

// Provider returns the owning provider id.
func (b *Breaker) Provider() string { return b.provider }

// SetNowFunc overrides the time source (for testing).
func (b *Breaker) SetNowFunc(fn func() time.Time) {
	b.mu.Lock()
	b.nowFunc = fn
	b.mu.Unlock()
}

// Allow reports whether a call may proceed right now. While half-open it
// reserves one trial slot, so check-and-reserve is atomic. A rejection
// carries CodeBreakerRejected and never invokes the provider.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case StateOpen:
		return aegiserr.New(aegiserr.CodeBreakerRejected,
			"circuit open for provider "+b.provider,
			aegiserr.FieldProvider(b.provider))
	case StateHalfOpen:
		if b.halfOpenCalls >= b.settings.HalfOpenMaxCalls {
			return aegiserr.New(aegiserr.CodeBreakerRejected,
				"circuit half-open, trial quota reached for provider "+b.provider,
				aegiserr.FieldProvider(b.provider))
		}
		b.halfOpenCalls++
	}

	return nil
}

// RecordSuccess reports a successful call or probe.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.settings.HalfOpenMaxCalls {
			b.transitionLocked(StateClosed)
		}
	}
}

// RecordFailure reports a failed call or probe.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentStateLocked() {
	case StateClosed:
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		// A trial failure reopens immediately and restarts the cooldown.
		b.transitionLocked(StateOpen)
	case StateOpen:
		// Already open; nothing to count.
	}
}

// State returns the current state, applying the open→half-open timeout.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStateLocked()
}

// Reset force-closes the breaker and clears the failure counter.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateClosed {
		b.transitionLocked(StateClosed)
	}
	b.failures = 0
}

// Snapshot returns a point-in-time view for the observability surface.
func (b *Breaker) Snapshot() health.BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := health.BreakerSnapshot{
		Provider:            b.provider,
		State:               b.currentStateLocked().String(),
		ConsecutiveFailures: b.failures,
		HalfOpenCalls:       b.halfOpenCalls,
	}
	if b.state != StateClosed && !b.openedAt.IsZero() {
		t := b.openedAt
		snap.OpenedAt = &t
	}
	return snap
}

// currentStateLocked returns the effective state, promoting Open to
// HalfOpen once the reset timeout has elapsed. Caller must hold b.mu.
func (b *Breaker) currentStateLocked() State {
	if b.state == StateOpen && b.nowFunc().Sub(b.openedAt) >= b.settings.ResetTimeout {
		b.transitionLocked(StateHalfOpen)
	}
	return b.state
}

// transitionLocked applies a state change and its entry actions.
// Caller must hold b.mu.
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	b.state = to

	switch to {
	case StateOpen:
		b.openedAt = b.nowFunc()
	case StateHalfOpen:
		b.halfOpenCalls = 0
		b.halfOpenSuccesses = 0
	case StateClosed:
		b.failures = 0
		b.halfOpenCalls = 0
		b.halfOpenSuccesses = 0
	}

	slog.Info("circuit breaker state change",
		"provider", b.provider,
		"from", from.String(),
		"to", to.String(),
	)
}
