// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package google adapts the Google Gemini API to the provider
// invocation boundary.
package google

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

const defaultModel = "gemini-2.5-flash"

func init() {
	provider.RegisterFactory("google", func(desc provider.Descriptor, credential string) (provider.Invoker, error) {
		return New(desc, credential)
	})
}

// Client implements provider.Invoker using the Gemini API.
type Client struct {
	desc   provider.Descriptor
	client *genai.Client
}

var _ provider.Invoker = (*Client)(nil)

// New creates the adapter. Returns an error if the API key is missing.
func New(desc provider.Descriptor, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, aegiserr.New(aegiserr.CodeProviderRequestInvalid,
			"google: missing api key", aegiserr.FieldProvider(desc.ID))
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, aegiserr.Wrapf(err, aegiserr.CodeProviderUpstreamError,
			"google: creating client")
	}

	return &Client{desc: desc, client: client}, nil
}

func (c *Client) Name() string { return c.desc.ID }

func (c *Client) Invoke(ctx context.Context, req provider.Request) (provider.Response, error) {
	cfg := &genai.GenerateContentConfig{}
	if req.System != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if max := req.MaxTokens; max > 0 {
		cfg.MaxOutputTokens = int32(max)
	} else if c.desc.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(c.desc.MaxTokens)
	}

	model := c.model()
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(req.Prompt), cfg)
	if err != nil {
		return provider.Response{}, c.classify(err)
	}

	var text strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			text.WriteString(part.Text)
		}
	}

	out := provider.Response{
		Provider: c.desc.ID,
		Model:    model,
		Text:     text.String(),
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// Probe lists models to confirm the key is accepted without spending
// tokens.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1}); err != nil {
		return c.classify(err)
	}
	return nil
}

func (c *Client) Close() error { return nil }

func (c *Client) model() string {
	if c.desc.Model != "" {
		return c.desc.Model
	}
	return defaultModel
}

func (c *Client) classify(err error) error {
	var apierr genai.APIError
	if errors.As(err, &apierr) {
		return provider.ClassifyHTTPError(c.desc.ID, apierr.Code, err)
	}
	return provider.ClassifyTransportError(c.desc.ID, err)
}
