// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
	"github.com/aegis-dev/aegis/pkg/health"
)

// HealthService is the slice of the health monitor the server needs.
type HealthService interface {
	Snapshots() []health.Snapshot
	CheckNow(ctx context.Context, provider string) (health.Snapshot, error)
}

// BreakerService exposes circuit breaker state and the bulk reset action.
type BreakerService interface {
	Snapshots() []health.BreakerSnapshot
	ResetAll()
}

// InvokeHandler executes a request with retries and failover applied.
type InvokeHandler interface {
	Execute(ctx context.Context, req provider.Request) (provider.Response, error)
}

// Services bundles the dependencies behind the REST routes.
type Services struct {
	Health   HealthService
	Breakers BreakerService
	Events   EventSource
	Invoker  InvokeHandler
}

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	// Provider endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-providers",
		Method:      http.MethodGet,
		Path:        "/api/v1/providers",
		Summary:     "List provider health snapshots",
		Tags:        []string{"providers"},
	}, s.handleListProviders)

	huma.Register(s.api, huma.Operation{
		OperationID: "check-provider",
		Method:      http.MethodPost,
		Path:        "/api/v1/providers/{id}/check",
		Summary:     "Run an immediate health probe against one provider",
		Tags:        []string{"providers"},
	}, s.handleCheckProvider)

	// Invocation endpoint: runs one request through the resilience
	// pipeline (selection, breaker gating, retries, failover).
	huma.Register(s.api, huma.Operation{
		OperationID: "invoke",
		Method:      http.MethodPost,
		Path:        "/api/v1/invoke",
		Summary:     "Execute a request with failover",
		Tags:        []string{"providers"},
	}, s.handleInvoke)

	// Breaker endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "list-breakers",
		Method:      http.MethodGet,
		Path:        "/api/v1/breakers",
		Summary:     "List circuit breaker states",
		Tags:        []string{"breakers"},
	}, s.handleListBreakers)

	huma.Register(s.api, huma.Operation{
		OperationID: "reset-breakers",
		Method:      http.MethodPost,
		Path:        "/api/v1/breakers/reset",
		Summary:     "Reset all circuit breakers to closed",
		Tags:        []string{"breakers"},
	}, s.handleResetBreakers)
}

// --- Request/Response types for huma ---

type listProvidersOutput struct {
	Body struct {
		Providers []health.Snapshot `json:"providers"`
	}
}

type checkProviderInput struct {
	ID string `path:"id"`
}
type checkProviderOutput struct {
	Body health.Snapshot
}

type invokeInput struct {
	Body struct {
		Task        string  `json:"task,omitempty" doc:"Task label recorded on events and metrics"`
		System      string  `json:"system,omitempty" doc:"System instruction"`
		Prompt      string  `json:"prompt" minLength:"1" doc:"User prompt"`
		MaxTokens   int     `json:"max_tokens,omitempty" doc:"Response token cap"`
		Temperature float64 `json:"temperature,omitempty" doc:"Sampling temperature"`
	}
}
type invokeOutput struct {
	Body struct {
		Provider     string `json:"provider" doc:"Provider that served the request"`
		Model        string `json:"model" doc:"Model used"`
		Text         string `json:"text" doc:"Response text"`
		InputTokens  int    `json:"input_tokens"`
		OutputTokens int    `json:"output_tokens"`
	}
}

type listBreakersOutput struct {
	Body struct {
		Breakers []health.BreakerSnapshot `json:"breakers"`
	}
}

type resetBreakersOutput struct {
	Body struct {
		Status string `json:"status" example:"reset" doc:"Reset outcome"`
	}
}

// --- Handlers ---

func (s *Server) handleListProviders(_ context.Context, _ *struct{}) (*listProvidersOutput, error) {
	out := &listProvidersOutput{}
	out.Body.Providers = s.services.Health.Snapshots()
	return out, nil
}

func (s *Server) handleCheckProvider(ctx context.Context, input *checkProviderInput) (*checkProviderOutput, error) {
	snap, err := s.services.Health.CheckNow(ctx, input.ID)
	if err != nil {
		if aegiserr.IsNotFound(err) {
			return nil, huma.Error404NotFound(fmt.Sprintf("provider %q not found", input.ID))
		}
		return nil, huma.Error500InternalServerError(fmt.Sprintf("checking provider %q", input.ID), err)
	}
	return &checkProviderOutput{Body: snap}, nil
}

func (s *Server) handleInvoke(ctx context.Context, input *invokeInput) (*invokeOutput, error) {
	if s.services.Invoker == nil {
		return nil, huma.Error503ServiceUnavailable("invoker not configured")
	}

	resp, err := s.services.Invoker.Execute(ctx, provider.Request{
		Task:        input.Body.Task,
		System:      input.Body.System,
		Prompt:      input.Body.Prompt,
		MaxTokens:   input.Body.MaxTokens,
		Temperature: input.Body.Temperature,
	})
	if err != nil {
		return nil, huma.NewError(aegiserr.HTTPStatus(err), err.Error())
	}

	out := &invokeOutput{}
	out.Body.Provider = resp.Provider
	out.Body.Model = resp.Model
	out.Body.Text = resp.Text
	out.Body.InputTokens = resp.InputTokens
	out.Body.OutputTokens = resp.OutputTokens
	return out, nil
}

func (s *Server) handleListBreakers(_ context.Context, _ *struct{}) (*listBreakersOutput, error) {
	out := &listBreakersOutput{}
	out.Body.Breakers = s.services.Breakers.Snapshots()
	return out, nil
}

func (s *Server) handleResetBreakers(_ context.Context, _ *struct{}) (*resetBreakersOutput, error) {
	s.services.Breakers.ResetAll()
	out := &resetBreakersOutput{}
	out.Body.Status = "reset"
	return out, nil
}
