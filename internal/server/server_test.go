// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-dev/aegis/internal/events"
	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/aegis-dev/aegis/pkg/health"
)

type fakeHealthService struct {
	snaps   []health.Snapshot
	checked []string
}

func (f *fakeHealthService) Snapshots() []health.Snapshot { return f.snaps }

func (f *fakeHealthService) CheckNow(_ context.Context, provider string) (health.Snapshot, error) {
	f.checked = append(f.checked, provider)
	for _, s := range f.snaps {
		if s.Provider == provider {
			return s, nil
		}
	}
	return health.Snapshot{}, aegiserr.Errorf(aegiserr.CodeProviderNotFound,
		"provider %q is not monitored", provider)
}

type fakeBreakerService struct {
	snaps  []health.BreakerSnapshot
	resets int
}

func (f *fakeBreakerService) Snapshots() []health.BreakerSnapshot { return f.snaps }
func (f *fakeBreakerService) ResetAll()                           { f.resets++ }

type fakeInvokeHandler struct {
	resp provider.Response
	err  error
	reqs []provider.Request
}

func (f *fakeInvokeHandler) Execute(_ context.Context, req provider.Request) (provider.Response, error) {
	f.reqs = append(f.reqs, req)
	return f.resp, f.err
}

func newTestServer(t *testing.T) (*Server, *fakeHealthService, *fakeBreakerService, *events.Log) {
	t.Helper()

	srv, err := New(Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	hs := &fakeHealthService{
		snaps: []health.Snapshot{
			{Provider: "anthropic", Available: true, Score: 0.91},
			{Provider: "openai", Available: false, Score: 0.12},
		},
	}
	bs := &fakeBreakerService{
		snaps: []health.BreakerSnapshot{
			{Provider: "anthropic", State: "closed"},
			{Provider: "openai", State: "open", ConsecutiveFailures: 5},
		},
	}
	log := events.NewLog(16)

	srv.RegisterServices(&Services{Health: hs, Breakers: bs, Events: log})
	return srv, hs, bs, log
}

func TestNew_RequiresListenAddr(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen address")
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestListProviders(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/providers", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Providers []health.Snapshot `json:"providers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Providers, 2)
	assert.Equal(t, "anthropic", body.Providers[0].Provider)
	assert.True(t, body.Providers[0].Available)
	assert.InDelta(t, 0.12, body.Providers[1].Score, 1e-9)
}

func TestCheckProvider(t *testing.T) {
	srv, hs, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/providers/anthropic/check", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"anthropic"}, hs.checked)

	var snap health.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "anthropic", snap.Provider)
}

func TestCheckProvider_Unknown(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/providers/nope/check", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListBreakers(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/breakers", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Breakers []health.BreakerSnapshot `json:"breakers"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Breakers, 2)
	assert.Equal(t, "open", body.Breakers[1].State)
	assert.Equal(t, 5, body.Breakers[1].ConsecutiveFailures)
}

func TestResetBreakers(t *testing.T) {
	srv, _, bs, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/breakers/reset", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, bs.resets)
	assert.Contains(t, rec.Body.String(), `"status":"reset"`)
}

func newInvokeServer(t *testing.T, handler *fakeInvokeHandler) *Server {
	t.Helper()

	srv, err := New(Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	srv.RegisterServices(&Services{
		Health:   &fakeHealthService{},
		Breakers: &fakeBreakerService{},
		Events:   events.NewLog(16),
		Invoker:  handler,
	})
	return srv
}

func TestInvoke(t *testing.T) {
	handler := &fakeInvokeHandler{
		resp: provider.Response{
			Provider:     "anthropic",
			Model:        "claude-sonnet-4-5",
			Text:         "hello",
			InputTokens:  12,
			OutputTokens: 3,
		},
	}
	srv := newInvokeServer(t, handler)

	body := strings.NewReader(`{"task":"summarize","prompt":"hi","max_tokens":64}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoke", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		Provider string `json:"provider"`
		Text     string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "anthropic", out.Provider)
	assert.Equal(t, "hello", out.Text)

	require.Len(t, handler.reqs, 1)
	assert.Equal(t, "summarize", handler.reqs[0].Task)
	assert.Equal(t, "hi", handler.reqs[0].Prompt)
	assert.Equal(t, 64, handler.reqs[0].MaxTokens)
}

func TestInvoke_Exhausted(t *testing.T) {
	handler := &fakeInvokeHandler{
		err: aegiserr.New(aegiserr.CodeProviderExhausted, "all providers failed"),
	}
	srv := newInvokeServer(t, handler)

	body := strings.NewReader(`{"prompt":"hi"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoke", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "all providers failed")
}

func TestInvoke_MissingPrompt(t *testing.T) {
	srv := newInvokeServer(t, &fakeInvokeHandler{})

	body := strings.NewReader(`{"task":"x"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/invoke", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestEventStream_Replay(t *testing.T) {
	srv, _, _, log := newTestServer(t)

	log.Record(events.Event{Kind: events.KindFallback, From: "openai", To: "anthropic", Reason: "timeout"})
	log.Record(events.Event{Kind: events.KindRecovery, From: "openai"})

	// A pre-cancelled context makes the handler return right after replay.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?replay=10", nil).WithContext(ctx)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: fallback")
	assert.Contains(t, body, `"from":"openai"`)
	assert.Contains(t, body, "event: recovery")
}

func TestEventStream_InvalidReplay(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events?replay=banana", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestEventStream_NoServices(t *testing.T) {
	srv, err := New(Config{ListenAddr: "127.0.0.1:0"})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventStream_Live(t *testing.T) {
	srv, _, _, log := newTestServer(t)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck

	// Nothing has been recorded yet: the stream must open immediately
	// on an idle daemon rather than withholding headers until the
	// first event.
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// The subscriber registers when the handler starts; keep recording
	// until the stream delivers something.
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-time.After(10 * time.Millisecond):
				log.Record(events.Event{Kind: events.KindRetry, From: "openai", Reason: "rate limited"})
			}
		}
	}()

	scanner := bufio.NewScanner(resp.Body)
	var sawEvent, sawData bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: retry" {
			sawEvent = true
		}
		if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"rate limited"`) {
			sawData = true
		}
		if sawEvent && sawData {
			break
		}
	}
	assert.True(t, sawEvent, "expected an SSE event line")
	assert.True(t, sawData, "expected an SSE data line")
}
