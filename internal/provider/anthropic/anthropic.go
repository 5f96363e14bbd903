// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package anthropic adapts the Anthropic Messages API to the provider
// invocation boundary.
package anthropic

import (
	"context"
	"errors"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

const (
	defaultModel     = "claude-sonnet-4-5"
	defaultMaxTokens = 1024
)

func init() {
	provider.RegisterFactory("anthropic", func(desc provider.Descriptor, credential string) (provider.Invoker, error) {
		return New(desc, credential)
	})
}

// Client implements provider.Invoker using the Anthropic SDK.
type Client struct {
	desc   provider.Descriptor
	client anthropicsdk.Client
}

var _ provider.Invoker = (*Client)(nil)

// New creates the adapter. Returns an error if the API key is missing.
func New(desc provider.Descriptor, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, aegiserr.New(aegiserr.CodeProviderRequestInvalid,
			"anthropic: missing api key", aegiserr.FieldProvider(desc.ID))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if desc.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(desc.Endpoint))
	}

	return &Client{desc: desc, client: anthropicsdk.NewClient(opts...)}, nil
}

func (c *Client) Name() string { return c.desc.ID }

func (c *Client) Invoke(ctx context.Context, req provider.Request) (provider.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.desc.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(c.model()),
		MaxTokens: int64(maxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(req.Temperature)
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return provider.Response{}, c.classify(err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return provider.Response{
		Provider:     c.desc.ID,
		Model:        string(msg.Model),
		Text:         text.String(),
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// Probe lists models to confirm the key is accepted without spending
// tokens.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx, anthropicsdk.ModelListParams{}); err != nil {
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
	var apierr *anthropicsdk.Error
	if errors.As(err, &apierr) {
		return provider.ClassifyHTTPError(c.desc.ID, apierr.StatusCode, err)
	}
	return provider.ClassifyTransportError(c.desc.ID, err)
}
