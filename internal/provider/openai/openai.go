// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Aegis Contributors

// Package openai adapts the OpenAI Chat Completions API to the provider
// invocation boundary. It also serves any OpenAI-compatible endpoint
// when a custom base URL is configured.
package openai

import (
	"context"
	"errors"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/aegis-dev/aegis/internal/provider"
	aegiserr "github.com/aegis-dev/aegis/pkg/errors"
)

const defaultModel = "gpt-4.1-mini"

func init() {
	provider.RegisterFactory("openai", func(desc provider.Descriptor, credential string) (provider.Invoker, error) {
		return New(desc, credential)
	})
}

// Client implements provider.Invoker using the OpenAI SDK.
type Client struct {
	desc   provider.Descriptor
	client openaisdk.Client
}

var _ provider.Invoker = (*Client)(nil)

// New creates the adapter. Returns an error if the API key is missing.
func New(desc provider.Descriptor, apiKey string) (*Client, error) {
	if apiKey == "" {
		return nil, aegiserr.New(aegiserr.CodeProviderRequestInvalid,
			"openai: missing api key", aegiserr.FieldProvider(desc.ID))
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if desc.Endpoint != "" {
		opts = append(opts, option.WithBaseURL(desc.Endpoint))
	}

	return &Client{desc: desc, client: openaisdk.NewClient(opts...)}, nil
}

func (c *Client) Name() string { return c.desc.ID }

func (c *Client) Invoke(ctx context.Context, req provider.Request) (provider.Response, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model()),
		Messages: buildMessages(req),
	}
	if max := pickMaxTokens(req.MaxTokens, c.desc.MaxTokens); max > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(max))
	}
	if req.Temperature > 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return provider.Response{}, c.classify(err)
	}
	if len(resp.Choices) == 0 {
		return provider.Response{}, aegiserr.New(aegiserr.CodeProviderUpstreamError,
			"openai: empty completion response", aegiserr.FieldProvider(c.desc.ID))
	}

	return provider.Response{
		Provider:     c.desc.ID,
		Model:        resp.Model,
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// Probe lists models: a cheap authenticated round-trip that also works
// against OpenAI-compatible servers.
func (c *Client) Probe(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
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
	var apierr *openaisdk.Error
	if errors.As(err, &apierr) {
		return provider.ClassifyHTTPError(c.desc.ID, apierr.StatusCode, err)
	}
	return provider.ClassifyTransportError(c.desc.ID, err)
}

func buildMessages(req provider.Request) []openaisdk.ChatCompletionMessageParamUnion {
	var msgs []openaisdk.ChatCompletionMessageParamUnion
	if req.System != "" {
		msgs = append(msgs, openaisdk.SystemMessage(req.System))
	}
	msgs = append(msgs, openaisdk.UserMessage(req.Prompt))
	return msgs
}

func pickMaxTokens(reqMax, descMax int) int {
	if reqMax > 0 {
		return reqMax
	}
	return descMax
}
