// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aegis-dev/aegis/internal/events"
)

// EventSource is the slice of the event log the SSE endpoint needs.
type EventSource interface {
	Subscribe(buffer int) (<-chan events.Event, func())
	Recent(n int) []events.Event
}

func (s *Server) registerEventStreamRoute() {
	s.router.Get("/api/v1/events", s.handleEventStream)

	// Register the operation in the OpenAPI spec manually. The SSE streaming
	// handler needs raw http.ResponseWriter access, so it cannot use Huma's
	// standard handler signature. We keep the chi route above for actual
	// request handling and add the spec entry here for documentation.
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "event-stream",
		Method:      http.MethodGet,
		Path:        "/api/v1/events",
		Summary:     "Stream resilience events via SSE",
		Description: "Streams failover, retry, breaker, and health events as server-sent events. The replay query parameter prepends that many recent events before live streaming begins.",
		Tags:        []string{"events"},
		Parameters: []*huma.Param{
			{
				Name:        "replay",
				In:          "query",
				Description: "Number of recent events to replay before streaming",
				Schema:      &huma.Schema{Type: "integer"},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Server-sent event stream",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{
							Type:        "string",
							Description: "Server-sent event stream",
						},
					},
				},
			},
			"503": {Description: "Event log not configured"},
		},
	})
}

func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	if s.services == nil || s.services.Events == nil {
		http.Error(w, `{"error":"event log not configured"}`, http.StatusServiceUnavailable)
		return
	}

	replay := 0
	if raw := r.URL.Query().Get("replay"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, `{"error":"replay must be a non-negative integer"}`, http.StatusBadRequest)
			return
		}
		replay = n
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		// httptest.ResponseRecorder doesn't implement Flusher,
		// but we still write the events for testability.
		flusher = nil
	}

	// Flush the headers right away so clients see the stream open on an
	// idle daemon instead of blocking until the first event arrives.
	w.WriteHeader(http.StatusOK)
	if flusher != nil {
		flusher.Flush()
	}

	// Subscribe before replaying so events recorded in between are not lost;
	// an event seen twice is harmless for consumers keyed on event ID.
	ch, cancel := s.services.Events.Subscribe(64)
	defer cancel()

	if replay > 0 {
		for _, ev := range s.services.Events.Recent(replay) {
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeSSEEvent(w, ev); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}
