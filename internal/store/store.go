// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package store persists resilience events and per-attempt metrics so that
// history survives restarts and tuning can work from observed behavior.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/events"
)

// AttemptSample is one recorded provider call outcome.
type AttemptSample struct {
	Provider  string
	Timestamp time.Time
	Success   bool
	LatencyMS int64
	// Retried marks attempts that were in-place retries of an earlier
	// failure; Success on a retried sample means the retry recovered.
	Retried bool
}

// EventFilter narrows an event query. Zero values match everything.
type EventFilter struct {
	Kind     events.Kind
	Provider string // matches either side of a fallback
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// EventStore persists resilience events.
type EventStore interface {
	Append(ctx context.Context, ev events.Event) error
	Query(ctx context.Context, filter EventFilter) ([]events.Event, error)
}

// MetricsStore persists attempt samples and aggregates them into the
// per-provider stats the tuning pass consumes.
type MetricsStore interface {
	RecordAttempt(ctx context.Context, sample AttemptSample) error
	Stats(ctx context.Context, since time.Time) ([]config.ObservedStats, error)
	Prune(ctx context.Context, before time.Time) error
}

// Store is the persistence surface for one aegis instance.
type Store interface {
	Events() EventStore
	Metrics() MetricsStore
	Close() error
}

// eventSink adapts an EventStore to the events.Sink interface so the
// in-memory log and the persistent store can share one Record path.
// Append failures are logged, not propagated; persistence must never
// fail a live request.
type eventSink struct {
	es      EventStore
	timeout time.Duration
}

// NewEventSink wraps an EventStore as an events.Sink.
func NewEventSink(es EventStore) events.Sink {
	return &eventSink{es: es, timeout: 5 * time.Second}
}

func (s *eventSink) Record(ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.es.Append(ctx, ev); err != nil {
		slog.Warn("event persistence failed", "event_id", ev.ID, "error", err)
	}
}

var _ events.Sink = (*eventSink)(nil)
