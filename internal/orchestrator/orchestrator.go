// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package orchestrator drives the attempt, retry and failover loop. It
// is the only entry point through which callers reach a provider.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aegis-dev/aegis/internal/breaker"
	"github.com/aegis-dev/aegis/internal/events"
	"github.com/aegis-dev/aegis/internal/failover"
	"github.com/aegis-dev/aegis/internal/health"
	"github.com/aegis-dev/aegis/internal/provider"
	"github.com/aegis-dev/aegis/internal/retry"
	"github.com/aegis-dev/aegis/internal/store"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Deps are the collaborators an Orchestrator needs. Monitor, Breakers
// and Selector share state so every attempt outcome feeds selection.
type Deps struct {
	Primary  string
	Registry *provider.Registry
	Monitor  *health.Monitor
	Breakers *breaker.Set
	Selector *failover.Selector
	Policy   *retry.Policy
	Events   events.Sink
	Metrics  store.MetricsStore // optional; nil disables attempt persistence
}

// Orchestrator executes requests with in-place retries and ranked
// failover across providers.
type Orchestrator struct {
	deps Deps

	sleepFunc func(ctx context.Context, d time.Duration) error
	nowFunc   func() time.Time
}

// New creates an Orchestrator. Events may be nil.
func New(deps Deps) *Orchestrator {
	if deps.Events == nil {
		deps.Events = events.Tee(nil)
	}
	return &Orchestrator{
		deps:      deps,
		sleepFunc: sleepCtx,
		nowFunc:   time.Now,
	}
}

// SetSleepFunc replaces the retry delay sleeper. For tests.
func (o *Orchestrator) SetSleepFunc(fn func(ctx context.Context, d time.Duration) error) {
	o.sleepFunc = fn
}

// attemptFailure is one failed provider in the failover trail.
type attemptFailure struct {
	provider string
	attempts int
	err      error
}

// retryContext is the transient per-request retry state for one
// provider: attempt count and elapsed time since the first attempt.
type retryContext struct {
	attempt int
	started time.Time
}

// Execute runs the request against the best available provider,
// retrying transient failures in place and failing over when a provider
// is exhausted or rejects with a non-retryable error. The caller's ctx
// bounds the whole execution; each provider call additionally carries
// the descriptor's per-call timeout.
//
// The returned error is always one of: nil, a deadline error when ctx
// expires, a primary-credential error, or an exhaustion error carrying
// the per-provider failure trail.
func (o *Orchestrator) Execute(ctx context.Context, req provider.Request) (provider.Response, error) {
	excluded := make(map[string]struct{})
	var trail []attemptFailure
	var primaryAuthErr error

	current, err := o.deps.Selector.SelectNext(excluded)
	if err != nil {
		return provider.Response{}, o.terminal(req, trail, primaryAuthErr)
	}

	for {
		if ctx.Err() != nil {
			return provider.Response{}, aegiserr.Wrap(ctx.Err(), aegiserr.CodeProviderCallTimeout,
				"execution deadline exceeded", aegiserr.FieldTask(req.Task))
		}

		resp, attemptErr, attempts := o.tryProvider(ctx, current, req)
		if attemptErr == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			// The caller's overall deadline expired; abandon failover.
			return provider.Response{}, aegiserr.Wrap(ctx.Err(), aegiserr.CodeProviderCallTimeout,
				"execution deadline exceeded", aegiserr.FieldTask(req.Task))
		}

		trail = append(trail, attemptFailure{provider: current, attempts: attempts, err: attemptErr})
		if current == o.deps.Primary && aegiserr.IsAuthDenied(attemptErr) {
			primaryAuthErr = attemptErr
		}
		excluded[current] = struct{}{}

		next, selErr := o.deps.Selector.SelectNext(excluded)
		if selErr != nil {
			return provider.Response{}, o.terminal(req, trail, primaryAuthErr)
		}

		reason := failureReason(attemptErr)
		slog.Info("failing over",
			"from", current, "to", next, "reason", reason, "task", req.Task)
		o.deps.Events.Record(events.Event{
			Kind:    events.KindFallback,
			From:    current,
			To:      next,
			Reason:  reason,
			Task:    req.Task,
			Attempt: attempts,
		})
		current = next
	}
}

// tryProvider runs the per-provider retry loop. It returns the last
// error once retries are exhausted or a non-retryable failure occurs,
// plus the number of attempts made.
func (o *Orchestrator) tryProvider(ctx context.Context, id string, req provider.Request) (provider.Response, error, int) {
	inv, err := o.deps.Registry.Get(id)
	if err != nil {
		return provider.Response{}, err, 0
	}
	desc, err := o.deps.Registry.Descriptor(id)
	if err != nil {
		return provider.Response{}, err, 0
	}

	b := o.deps.Breakers.Get(id)
	rctx := retryContext{started: o.nowFunc()}

	for {
		if allowErr := b.Allow(); allowErr != nil {
			return provider.Response{}, allowErr, rctx.attempt
		}

		attemptStart := o.nowFunc()
		resp, invokeErr := o.invokeOnce(ctx, inv, desc, req)
		o.reportAttempt(id, rctx.attempt, invokeErr, o.nowFunc().Sub(attemptStart))

		if invokeErr == nil {
			return resp, nil, rctx.attempt + 1
		}
		if ctx.Err() != nil {
			return provider.Response{}, invokeErr, rctx.attempt + 1
		}

		elapsed := o.nowFunc().Sub(rctx.started)
		if !o.deps.Policy.ShouldRetry(invokeErr, rctx.attempt, elapsed) {
			return provider.Response{}, invokeErr, rctx.attempt + 1
		}

		delay := o.deps.Policy.NextDelay(rctx.attempt)
		rctx.attempt++
		slog.Debug("retrying provider",
			"provider", id, "attempt", rctx.attempt, "delay", delay, "error", invokeErr)
		o.deps.Events.Record(events.Event{
			Kind:    events.KindRetry,
			From:    id,
			Reason:  failureReason(invokeErr),
			Task:    req.Task,
			Attempt: rctx.attempt,
		})
		if sleepErr := o.sleepFunc(ctx, delay); sleepErr != nil {
			return provider.Response{}, invokeErr, rctx.attempt
		}
	}
}

// invokeOnce makes a single provider call under the per-call timeout.
func (o *Orchestrator) invokeOnce(ctx context.Context, inv provider.Invoker, desc provider.Descriptor, req provider.Request) (provider.Response, error) {
	callCtx := ctx
	if desc.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}
	return inv.Invoke(callCtx, req)
}

// reportAttempt feeds the outcome to the health monitor (which updates
// the breaker) and persists a metrics sample. This happens before the
// state machine proceeds, so monitoring always reflects real traffic.
func (o *Orchestrator) reportAttempt(id string, attempt int, invokeErr error, latency time.Duration) {
	o.deps.Monitor.ReportOutcome(id, latency, invokeErr)

	if o.deps.Metrics != nil {
		sample := store.AttemptSample{
			Provider:  id,
			Timestamp: o.nowFunc().UTC(),
			Success:   invokeErr == nil,
			LatencyMS: latency.Milliseconds(),
			Retried:   attempt > 0,
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := o.deps.Metrics.RecordAttempt(ctx, sample); err != nil {
			slog.Warn("recording attempt sample failed", "provider", id, "error", err)
		}
		cancel()
	}
}

// terminal builds the error returned when no provider remains. A
// credential rejection on the configured primary is surfaced as a
// configuration problem, distinct from a systemic outage.
func (o *Orchestrator) terminal(req provider.Request, trail []attemptFailure, primaryAuthErr error) error {
	if primaryAuthErr != nil {
		// Built as a fresh coded error: wrapping would leave the
		// provider-level auth code as the one CodeOf resolves.
		return aegiserr.New(aegiserr.CodePrimaryAuthDenied,
			fmt.Sprintf("primary provider %q rejected its credential; check configuration: %v", o.deps.Primary, primaryAuthErr),
			aegiserr.FieldProvider(o.deps.Primary), aegiserr.FieldTask(req.Task))
	}

	if len(trail) == 0 {
		return aegiserr.New(aegiserr.CodeProviderExhausted,
			"no provider available: all candidates excluded or circuit-open",
			aegiserr.FieldTask(req.Task))
	}

	var b strings.Builder
	b.WriteString("all providers failed: ")
	for i, f := range trail {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s (%d attempts): %s", f.provider, f.attempts, failureReason(f.err))
	}
	return aegiserr.New(aegiserr.CodeProviderExhausted, b.String(),
		aegiserr.FieldTask(req.Task), aegiserr.Field("providers_tried", len(trail)))
}

// failureReason renders a stable, operator-readable reason string for
// events and terminal errors.
func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case aegiserr.IsBreakerRejected(err):
		return "circuit open"
	case aegiserr.IsAuthDenied(err):
		return "non-retryable: authentication"
	case aegiserr.IsInvalidInput(err):
		return "non-retryable: malformed request"
	case aegiserr.IsRateLimited(err):
		return "rate limited"
	case aegiserr.IsTimeout(err):
		return "timeout"
	case aegiserr.IsTransient(err):
		return "upstream failure"
	default:
		return string(aegiserr.CodeOf(err))
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
