// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an event record.
type Kind string

const (
	// KindFallback records a switch from one provider to another.
	KindFallback Kind = "fallback"
	// KindRetry records an in-place retry against the same provider.
	KindRetry Kind = "retry"
	// KindBreaker records a circuit breaker state transition.
	KindBreaker Kind = "breaker"
	// KindHealth records a health check outcome.
	KindHealth Kind = "health"
	// KindRecovery records a provider returning to service.
	KindRecovery Kind = "recovery"
)

// Event is one resilience event record. From/To are provider IDs; To is
// empty for events that concern a single provider.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Task      string    `json:"task,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
}

// Sink receives events as they are recorded. Implementations must not
// block; slow consumers should buffer or drop.
type Sink interface {
	Record(ev Event)
}

// Log is a bounded in-memory event log with subscriber fan-out. The
// newest capacity events are retained; older ones are evicted in order.
type Log struct {
	mu       sync.Mutex
	buf      []Event
	capacity int
	subs     map[int]chan Event
	nextSub  int

	nowFunc func() time.Time
	idFunc  func() string
}

// DefaultCapacity bounds the in-memory log when no capacity is given.
const DefaultCapacity = 1000

// NewLog creates a log retaining at most capacity events.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		subs:     make(map[int]chan Event),
		nowFunc:  time.Now,
		idFunc:   uuid.NewString,
	}
}

// SetNowFunc replaces the clock. For tests.
func (l *Log) SetNowFunc(fn func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nowFunc = fn
}

// SetIDFunc replaces the ID generator. For tests.
func (l *Log) SetIDFunc(fn func() string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.idFunc = fn
}

// Record stamps the event with an ID and timestamp (when unset), appends
// it to the ring, and fans it out to subscribers. Subscribers with full
// channels miss the event rather than blocking the recorder.
func (l *Log) Record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.ID == "" {
		ev.ID = l.idFunc()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = l.nowFunc().UTC()
	}

	l.buf = append(l.buf, ev)
	if len(l.buf) > l.capacity {
		l.buf = l.buf[len(l.buf)-l.capacity:]
	}

	for _, ch := range l.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Recent returns up to n of the most recent events, oldest first. n <= 0
// returns everything retained.
func (l *Log) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.buf) {
		n = len(l.buf)
	}
	out := make([]Event, n)
	copy(out, l.buf[len(l.buf)-n:])
	return out
}

// Subscribe registers a buffered channel that receives every event
// recorded after this call. The returned cancel func unregisters and
// closes the channel.
func (l *Log) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

var _ Sink = (*Log)(nil)

// Tee fans one Record call out to several sinks.
type Tee []Sink

func (t Tee) Record(ev Event) {
	for _, s := range t {
		if s != nil {
			s.Record(ev)
		}
	}
}

var _ Sink = (Tee)(nil)
