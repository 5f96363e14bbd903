// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package sqlite implements the store backend on a single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aegis-dev/aegis/internal/config"
	"github.com/aegis-dev/aegis/internal/events"
	"github.com/aegis-dev/aegis/internal/store"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

// Compile-time interface checks.
var (
	_ store.Store        = (*Store)(nil)
	_ store.EventStore   = (*eventStore)(nil)
	_ store.MetricsStore = (*metricsStore)(nil)
)

// Store implements store.Store backed by a single SQLite database.
type Store struct {
	db      *sql.DB
	events  *eventStore
	metrics *metricsStore
}

// New opens (or creates) a SQLite database at dbPath and initialises the
// events and attempts tables.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, aegiserr.Wrap(err, aegiserr.CodeStoreOpenFailure, "opening resilience db")
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, aegiserr.Wrap(err, aegiserr.CodeStoreOpenFailure, "pinging resilience db")
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, aegiserr.Wrap(err, aegiserr.CodeStoreOpenFailure, "migrating resilience db")
	}

	return &Store{
		db:      db,
		events:  &eventStore{db: db},
		metrics: &metricsStore{db: db},
	}, nil
}

func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS events (
	id        TEXT PRIMARY KEY,
	timestamp TEXT NOT NULL,
	kind      TEXT NOT NULL,
	from_id   TEXT NOT NULL DEFAULT '',
	to_id     TEXT NOT NULL DEFAULT '',
	reason    TEXT NOT NULL DEFAULT '',
	task      TEXT NOT NULL DEFAULT '',
	attempt   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_kind      ON events(kind);

CREATE TABLE IF NOT EXISTS attempts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	provider   TEXT NOT NULL,
	timestamp  TEXT NOT NULL,
	success    INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	retried    INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_attempts_provider  ON attempts(provider);
CREATE INDEX IF NOT EXISTS idx_attempts_timestamp ON attempts(timestamp);
`
	_, err := db.Exec(ddl)
	return err
}

// Events returns the event sub-store.
func (s *Store) Events() store.EventStore { return s.events }

// Metrics returns the metrics sub-store.
func (s *Store) Metrics() store.MetricsStore { return s.metrics }

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// ---------- eventStore ----------

type eventStore struct {
	db *sql.DB
}

func (s *eventStore) Append(ctx context.Context, ev events.Event) error {
	const q = `INSERT INTO events (id, timestamp, kind, from_id, to_id, reason, task, attempt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		ev.ID, formatTime(ev.Timestamp), string(ev.Kind),
		ev.From, ev.To, ev.Reason, ev.Task, ev.Attempt,
	)
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeStoreWriteFailure, "appending event %s", ev.ID)
	}
	return nil
}

func (s *eventStore) Query(ctx context.Context, filter store.EventFilter) ([]events.Event, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT id, timestamp, kind, from_id, to_id, reason, task, attempt FROM events`)

	var conditions []string
	var args []any

	if filter.Kind != "" {
		conditions = append(conditions, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Provider != "" {
		conditions = append(conditions, "(from_id = ? OR to_id = ?)")
		args = append(args, filter.Provider, filter.Provider)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, formatTime(filter.To))
	}

	if len(conditions) > 0 {
		qb.WriteString(" WHERE ")
		qb.WriteString(strings.Join(conditions, " AND "))
	}

	qb.WriteString(" ORDER BY timestamp ASC")

	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}
	qb.WriteString(" LIMIT ? OFFSET ?")
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, aegiserr.Wrap(err, aegiserr.CodeStoreQueryFailure, "querying events")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	var out []events.Event
	for rows.Next() {
		var ev events.Event
		var ts, kind string
		if err := rows.Scan(&ev.ID, &ts, &kind, &ev.From, &ev.To, &ev.Reason, &ev.Task, &ev.Attempt); err != nil {
			return nil, aegiserr.Wrap(err, aegiserr.CodeStoreQueryFailure, "scanning event row")
		}
		ev.Kind = events.Kind(kind)
		ev.Timestamp, err = parseTime(ts)
		if err != nil {
			return nil, aegiserr.Wrapf(err, aegiserr.CodeStoreQueryFailure, "parsing event %s timestamp", ev.ID)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, aegiserr.Wrap(err, aegiserr.CodeStoreQueryFailure, "iterating events")
	}
	return out, nil
}

// ---------- metricsStore ----------

type metricsStore struct {
	db *sql.DB
}

func (s *metricsStore) RecordAttempt(ctx context.Context, sample store.AttemptSample) error {
	const q = `INSERT INTO attempts (provider, timestamp, success, latency_ms, retried)
VALUES (?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		sample.Provider, formatTime(sample.Timestamp),
		boolToInt(sample.Success), sample.LatencyMS, boolToInt(sample.Retried),
	)
	if err != nil {
		return aegiserr.Wrapf(err, aegiserr.CodeStoreWriteFailure,
			"recording attempt for %s", sample.Provider)
	}
	return nil
}

// Stats pulls raw samples and aggregates in Go; the p95 math is shared
// with the memory backend.
func (s *metricsStore) Stats(ctx context.Context, since time.Time) ([]config.ObservedStats, error) {
	var qb strings.Builder
	qb.WriteString(`SELECT provider, timestamp, success, latency_ms, retried FROM attempts`)

	var args []any
	if !since.IsZero() {
		qb.WriteString(" WHERE timestamp >= ?")
		args = append(args, formatTime(since))
	}
	qb.WriteString(" ORDER BY provider ASC, timestamp ASC")

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, aegiserr.Wrap(err, aegiserr.CodeStoreQueryFailure, "querying attempts")
	}
	defer rows.Close() //nolint:errcheck // error on read-path close is not actionable

	byProvider := map[string][]store.AttemptSample{}
	var order []string
	for rows.Next() {
		var sm store.AttemptSample
		var ts string
		var success, retried int
		if err := rows.Scan(&sm.Provider, &ts, &success, &sm.LatencyMS, &retried); err != nil {
			return nil, aegiserr.Wrap(err, aegiserr.CodeStoreQueryFailure, "scanning attempt row")
		}
		sm.Success = success != 0
		sm.Retried = retried != 0
		sm.Timestamp, err = parseTime(ts)
		if err != nil {
			return nil, aegiserr.Wrap(err, aegiserr.CodeStoreQueryFailure, "parsing attempt timestamp")
		}
		if _, seen := byProvider[sm.Provider]; !seen {
			order = append(order, sm.Provider)
		}
		byProvider[sm.Provider] = append(byProvider[sm.Provider], sm)
	}
	if err := rows.Err(); err != nil {
		return nil, aegiserr.Wrap(err, aegiserr.CodeStoreQueryFailure, "iterating attempts")
	}

	out := make([]config.ObservedStats, 0, len(order))
	for _, id := range order {
		out = append(out, store.AggregateSamples(id, byProvider[id]))
	}
	return out, nil
}

func (s *metricsStore) Prune(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE timestamp < ?`, formatTime(before))
	if err != nil {
		return aegiserr.Wrap(err, aegiserr.CodeStoreWriteFailure, "pruning attempts")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime serialises a timestamp for storage.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
