// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package health maintains rolling per-provider health records. Probe
// outcomes and real invocation outcomes flow through one reporting path,
// so the records and circuit breakers always reflect actual traffic.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aegis-dev/aegis/internal/breaker"
	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/events"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/aegis-dev/aegis/pkg/health"
)

// ProbeFunc performs one cheap authenticated call against a provider.
// A nil error means the provider answered within the probe deadline.
type ProbeFunc func(ctx context.Context) error

type sample struct {
	at      time.Time
	ok      bool
	latency time.Duration
}

// record is the mutable health state for one provider. All access goes
// through the Monitor mutex.
type record struct {
	probe ProbeFunc

	samples []sample // rolling window, oldest first
	head    int

	lastLatency   time.Duration
	lastCheckedAt time.Time
	lastSuccessAt time.Time
	lastError     string

	available bool
}

// Monitor owns every provider health record and the background probe
// loop.
type Monitor struct {
	mu       sync.Mutex
	cfg      config.HealthConfig
	perf     config.PerformanceConfig
	records  map[string]*record
	breakers *breaker.Set
	sink     events.Sink

	nowFunc func() time.Time

	loopMu   sync.Mutex
	loopStop context.CancelFunc
	loopDone chan struct{}
}

// NewMonitor creates a Monitor with no registered providers. The breaker
// set is shared with the orchestrator so probe failures and request
// failures feed the same counters.
func NewMonitor(cfg config.HealthConfig, perf config.PerformanceConfig, breakers *breaker.Set, sink events.Sink) *Monitor {
	if sink == nil {
		sink = events.Tee(nil)
	}
	return &Monitor{
		cfg:      cfg,
		perf:     perf,
		records:  make(map[string]*record),
		breakers: breakers,
		sink:     sink,
		nowFunc:  time.Now,
	}
}

// SetNowFunc overrides the time source (for testing).
func (m *Monitor) SetNowFunc(fn func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nowFunc = fn
}

// Register adds a provider to the monitored set. Records start
// available with an empty window; the first probe or invocation fills
// them in.
func (m *Monitor) Register(provider string, probe ProbeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[provider]; ok {
		return
	}
	m.records[provider] = &record{probe: probe, available: true}
}

// Providers returns the registered provider ids, sorted.
func (m *Monitor) Providers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.records))
	for id := range m.records {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ReportOutcome records one attempt outcome for a provider and updates
// its circuit breaker. This is the single feedback path shared by health
// probes and real invocations.
func (m *Monitor) ReportOutcome(provider string, latency time.Duration, err error) {
	b := m.breakers.Get(provider)
	if err != nil {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[provider]
	if !ok {
		rec = &record{available: true}
		m.records[provider] = rec
	}

	now := m.nowFunc()
	m.appendSampleLocked(rec, sample{at: now, ok: err == nil, latency: latency})
	rec.lastCheckedAt = now
	rec.lastLatency = latency
	if err != nil {
		rec.lastError = err.Error()
	} else {
		rec.lastError = ""
		rec.lastSuccessAt = now
	}

	wasAvailable := rec.available
	snap := m.snapshotLocked(provider, rec)
	rec.available = snap.Available

	if wasAvailable != rec.available {
		kind := events.KindHealth
		reason := "health score below minimum"
		if rec.available {
			kind = events.KindRecovery
			reason = "provider recovered"
		} else if rec.lastError != "" {
			reason = rec.lastError
		}
		slog.Info("provider availability change",
			"provider", provider, "available", rec.available, "score", snap.Score)
		m.sink.Record(events.Event{Kind: kind, From: provider, Reason: reason})
	}
}

// appendSampleLocked adds a sample to the rolling window, evicting the
// oldest once the window is full.
func (m *Monitor) appendSampleLocked(rec *record, s sample) {
	size := m.cfg.WindowSize
	if size <= 0 {
		size = 50
	}
	if len(rec.samples) < size {
		rec.samples = append(rec.samples, s)
		return
	}
	rec.samples[rec.head] = s
	rec.head = (rec.head + 1) % size
}

// CheckNow probes one provider immediately, bounded by the probe
// timeout, and returns the updated record. A probe that exceeds the
// timeout is recorded as a failure.
func (m *Monitor) CheckNow(ctx context.Context, provider string) (health.Snapshot, error) {
	m.mu.Lock()
	rec, ok := m.records[provider]
	m.mu.Unlock()
	if !ok {
		return health.Snapshot{}, aegiserr.Errorf(aegiserr.CodeProviderNotFound,
			"provider %q is not monitored", provider)
	}

	var err error
	start := m.nowFunc()
	if rec.probe != nil {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout())
		err = rec.probe(probeCtx)
		cancel()
	}
	m.ReportOutcome(provider, m.nowFunc().Sub(start), err)

	return m.GetRecord(provider)
}

// CheckAll probes every registered provider concurrently with bounded
// parallelism. Individual probe failures are reflected in the records,
// not returned; the error is non-nil only when ctx is cancelled.
func (m *Monitor) CheckAll(ctx context.Context) error {
	parallel := m.cfg.ProbeParallelism
	if parallel <= 0 {
		parallel = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, id := range m.Providers() {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			_, _ = m.CheckNow(gctx, id)
			return nil
		})
	}
	return g.Wait()
}

// GetRecord returns the current snapshot for a provider without probing.
func (m *Monitor) GetRecord(provider string) (health.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[provider]
	if !ok {
		return health.Snapshot{}, aegiserr.Errorf(aegiserr.CodeProviderNotFound,
			"provider %q is not monitored", provider)
	}
	return m.snapshotLocked(provider, rec), nil
}

// Snapshots returns every provider's current record, sorted by id.
func (m *Monitor) Snapshots() []health.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]health.Snapshot, 0, len(m.records))
	for id, rec := range m.records {
		out = append(out, m.snapshotLocked(id, rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// Score returns the composite health score for a provider; unknown
// providers score zero.
func (m *Monitor) Score(provider string) float64 {
	snap, err := m.GetRecord(provider)
	if err != nil {
		return 0
	}
	return snap.Score
}

// LastSuccess returns when the provider last succeeded, or a zero time.
func (m *Monitor) LastSuccess(provider string) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[provider]
	if !ok {
		return time.Time{}
	}
	return rec.lastSuccessAt
}

// Available reports whether the provider may carry traffic: composite
// score at or above the minimum and circuit not open.
func (m *Monitor) Available(provider string) bool {
	snap, err := m.GetRecord(provider)
	if err != nil {
		return false
	}
	return snap.Available
}

// snapshotLocked derives the composite score from the rolling window.
// The four sub-scores (latency vs threshold, success rate, error rate
// vs threshold, breaker state) are averaged into one 0-1 score; a
// provider with no samples yet scores 1 on the window-derived parts.
func (m *Monitor) snapshotLocked(provider string, rec *record) health.Snapshot {
	snap := health.Snapshot{
		Provider:      provider,
		LatencyScore:  1,
		SuccessScore:  1,
		ErrorScore:    1,
		LastLatencyMS: rec.lastLatency.Milliseconds(),
		LastError:     rec.lastError,
	}
	if !rec.lastCheckedAt.IsZero() {
		t := rec.lastCheckedAt
		snap.LastCheckedAt = &t
	}
	if !rec.lastSuccessAt.IsZero() {
		t := rec.lastSuccessAt
		snap.LastSuccessAt = &t
	}

	var successLatency time.Duration
	for _, s := range rec.samples {
		if s.ok {
			snap.Successes++
			successLatency += s.latency
		} else {
			snap.Failures++
		}
	}

	total := snap.Successes + snap.Failures
	if total > 0 {
		successRate := float64(snap.Successes) / float64(total)
		errorRate := float64(snap.Failures) / float64(total)

		snap.SuccessScore = successRate
		if m.perf.MaxErrorRate > 0 {
			snap.ErrorScore = 1 - clamp01(errorRate/m.perf.MaxErrorRate)
		} else {
			snap.ErrorScore = 1 - errorRate
		}
	}
	if snap.Successes > 0 && m.perf.MaxResponseTimeMS > 0 {
		avg := successLatency / time.Duration(snap.Successes)
		snap.LatencyScore = 1 - clamp01(float64(avg.Milliseconds())/float64(m.perf.MaxResponseTimeMS))
	}

	state := m.breakers.Get(provider).State()
	switch state {
	case breaker.StateClosed:
		snap.BreakerScore = 1
	case breaker.StateHalfOpen:
		snap.BreakerScore = 0.5
	case breaker.StateOpen:
		snap.BreakerScore = 0
	}

	snap.Score = (snap.LatencyScore + snap.SuccessScore + snap.ErrorScore + snap.BreakerScore) / 4
	snap.Available = snap.Score >= m.cfg.MinScore && state != breaker.StateOpen
	return snap
}

// StartBackgroundLoop launches the periodic probe loop. Calling it while
// a loop is running restarts the loop with the current interval.
func (m *Monitor) StartBackgroundLoop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()

	m.stopLocked()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.loopStop = cancel
	m.loopDone = done

	interval := m.cfg.Interval()
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		slog.Info("health probe loop started", "interval", interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = m.CheckAll(ctx)
			}
		}
	}()
}

// StopBackgroundLoop stops the probe loop and waits for it to exit.
func (m *Monitor) StopBackgroundLoop() {
	m.loopMu.Lock()
	defer m.loopMu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if m.loopStop == nil {
		return
	}
	m.loopStop()
	<-m.loopDone
	m.loopStop = nil
	m.loopDone = nil
	slog.Info("health probe loop stopped")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
