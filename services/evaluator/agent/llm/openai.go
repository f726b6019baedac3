// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/commitlens/services/evaluator/agent/tools"
)

const (
	defaultModel      = "gpt-4o-mini"
	apiKeySecretPath  = "/run/secrets/openai_api_key"
	defaultRequestRPS = 2
)

// OpenAIClient implements Client against the OpenAI chat API.
//
// Thread Safety: OpenAIClient is safe for concurrent use.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// OpenAIOption configures an OpenAIClient.
type OpenAIOption func(*OpenAIClient)

// WithModel overrides the model name.
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) OpenAIOption {
	return func(c *OpenAIClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// NewOpenAIClient creates a client using the OPENAI_API_KEY
// environment variable, falling back to the container secret file.
func NewOpenAIClient(opts ...OpenAIOption) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		keyBytes, err := os.ReadFile(apiKeySecretPath)
		if err != nil {
			slog.Error("OPENAI_API_KEY not set and secret not found", "path", apiKeySecretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
		apiKey = strings.TrimSpace(string(keyBytes))
		slog.Info("read OpenAI API key from secrets file")
	}

	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = defaultModel
	}

	c := &OpenAIClient{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(defaultRequestRPS), 1),
	}
	for _, opt := range opts {
		opt(c)
	}

	slog.Info("initialized OpenAI client", "model", c.model)
	return c, nil
}

// Complete implements the Client interface.
func (c *OpenAIClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    buildMessages(request),
		Tools:       buildTools(request.Tools),
		Temperature: request.Temperature,
	}
	if request.MaxTokens > 0 {
		req.MaxCompletionTokens = request.MaxTokens
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	out := &Response{
		Content:      choice.Message.Content,
		StopReason:   stopReason(choice.FinishReason),
		TokensUsed:   resp.Usage.TotalTokens,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		Duration:     time.Since(start),
		Model:        resp.Model,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// Name implements the Client interface.
func (c *OpenAIClient) Name() string { return "openai" }

// Model implements the Client interface.
func (c *OpenAIClient) Model() string { return c.model }

func buildMessages(request *Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(request.Messages)+1)
	if request.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: request.SystemPrompt,
		})
	}

	for _, msg := range request.Messages {
		out := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		messages = append(messages, out)
	}
	return messages
}

// buildTools converts tool definitions into the OpenAI function
// schema.
func buildTools(defs []tools.Definition) []openai.Tool {
	if len(defs) == 0 {
		return nil
	}

	out := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		properties := make(map[string]jsonschema.Definition, len(def.Params))
		var required []string
		for name, param := range def.Params {
			properties[name] = jsonschema.Definition{
				Type:        paramSchemaType(param.Type),
				Description: param.Description,
			}
			if param.Required {
				required = append(required, name)
			}
		}

		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters: jsonschema.Definition{
					Type:       jsonschema.Object,
					Properties: properties,
					Required:   required,
				},
			},
		})
	}
	return out
}

func paramSchemaType(t tools.ParamType) jsonschema.DataType {
	switch t {
	case tools.ParamTypeInt:
		return jsonschema.Integer
	case tools.ParamTypeBool:
		return jsonschema.Boolean
	case tools.ParamTypeStringArray:
		return jsonschema.Array
	default:
		return jsonschema.String
	}
}

func stopReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonToolCalls:
		return "tool_use"
	case openai.FinishReasonLength:
		return "max_tokens"
	default:
		return "end"
	}
}

// IsTransient reports whether an error is worth retrying: rate limits,
// server-side failures, and network timeouts. Cancellation and client
// errors are fatal.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
