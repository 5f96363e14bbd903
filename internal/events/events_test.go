// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package events_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/aegis-dev/aegis/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_RecordStampsIDAndTimestamp(t *testing.T) {
	log := events.NewLog(10)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log.SetNowFunc(func() time.Time { return now })
	log.SetIDFunc(func() string { return "ev-1" })

	log.Record(events.Event{Kind: events.KindFallback, From: "openai", To: "anthropic", Reason: "circuit open"})

	got := log.Recent(0)
	require.Len(t, got, 1)
	assert.Equal(t, "ev-1", got[0].ID)
	assert.Equal(t, now, got[0].Timestamp)
	assert.Equal(t, events.KindFallback, got[0].Kind)
	assert.Equal(t, "openai", got[0].From)
	assert.Equal(t, "anthropic", got[0].To)
}

func TestLog_BoundedEviction(t *testing.T) {
	log := events.NewLog(3)
	for i := 0; i < 5; i++ {
		log.Record(events.Event{Kind: events.KindRetry, Reason: fmt.Sprintf("r%d", i)})
	}

	got := log.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "r2", got[0].Reason)
	assert.Equal(t, "r4", got[2].Reason)
}

func TestLog_RecentLimit(t *testing.T) {
	log := events.NewLog(10)
	for i := 0; i < 5; i++ {
		log.Record(events.Event{Kind: events.KindHealth, Reason: fmt.Sprintf("r%d", i)})
	}

	got := log.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, "r3", got[0].Reason)
	assert.Equal(t, "r4", got[1].Reason)
}

func TestLog_SubscribeReceivesEvents(t *testing.T) {
	log := events.NewLog(10)
	ch, cancel := log.Subscribe(4)
	defer cancel()

	log.Record(events.Event{Kind: events.KindBreaker, From: "google", Reason: "opened"})

	select {
	case ev := <-ch:
		assert.Equal(t, events.KindBreaker, ev.Kind)
		assert.Equal(t, "google", ev.From)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestLog_SlowSubscriberDoesNotBlock(t *testing.T) {
	log := events.NewLog(10)
	_, cancel := log.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			log.Record(events.Event{Kind: events.KindRetry})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("recorder blocked on a slow subscriber")
	}
	assert.Len(t, log.Recent(0), 10)
}

func TestLog_CancelClosesChannel(t *testing.T) {
	log := events.NewLog(10)
	ch, cancel := log.Subscribe(1)

	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Recording after cancel must not panic.
	log.Record(events.Event{Kind: events.KindRecovery})
}

func TestTee_FansOut(t *testing.T) {
	a := events.NewLog(5)
	b := events.NewLog(5)
	tee := events.Tee{a, b, nil}

	tee.Record(events.Event{Kind: events.KindFallback, From: "x", To: "y"})

	assert.Len(t, a.Recent(0), 1)
	assert.Len(t, b.Recent(0), 1)
}
