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
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// MockClient is a scriptable LLM client for testing.
//
// Thread Safety:
//
//	MockClient is safe for concurrent use.
type MockClient struct {
	mu sync.RWMutex

	name  string
	model string

	// responses are queued responses returned in order.
	responses []*Response

	// defaultResponse is returned when the queue is empty.
	defaultResponse *Response

	// calls records every Complete invocation.
	calls []CompletionCall

	// responseFunc allows dynamic response generation. Takes
	// precedence over the queue.
	responseFunc func(*Request) (*Response, error)

	// errorToReturn causes Complete to fail.
	errorToReturn error

	// errorBudget limits how many times errorToReturn fires; negative
	// means always.
	errorBudget int
}

// CompletionCall records a call to Complete.
type CompletionCall struct {
	Request   *Request
	Timestamp time.Time
}

// NewMockClient creates a new mock LLM client.
func NewMockClient() *MockClient {
	return &MockClient{
		name:  "mock",
		model: "mock-model",
		defaultResponse: &Response{
			Content:      "Mock response",
			StopReason:   "end",
			TokensUsed:   100,
			InputTokens:  50,
			OutputTokens: 50,
		},
		errorBudget: -1,
	}
}

// WithResponseFunc sets a dynamic response function.
func (c *MockClient) WithResponseFunc(f func(*Request) (*Response, error)) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responseFunc = f
	return c
}

// WithError configures Complete to return an error on every call.
func (c *MockClient) WithError(err error) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorToReturn = err
	c.errorBudget = -1
	return c
}

// WithErrorCount configures Complete to fail the next n calls, then
// fall through to queued responses.
func (c *MockClient) WithErrorCount(err error, n int) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorToReturn = err
	c.errorBudget = n
	return c
}

// QueueResponse adds a response to the queue.
func (c *MockClient) QueueResponse(response *Response) *MockClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses = append(c.responses, response)
	return c
}

// QueueToolCall queues a response that invokes a tool.
func (c *MockClient) QueueToolCall(toolName string, arguments map[string]any) *MockClient {
	argsJSON, _ := json.Marshal(arguments)

	return c.QueueResponse(&Response{
		StopReason: "tool_use",
		ToolCalls: []ToolCall{{
			ID:        fmt.Sprintf("call_%d", len(c.responses)),
			Name:      toolName,
			Arguments: string(argsJSON),
		}},
		TokensUsed:   100,
		InputTokens:  50,
		OutputTokens: 50,
	})
}

// QueueFinalResponse queues a plain text response with no tool calls.
func (c *MockClient) QueueFinalResponse(content string) *MockClient {
	return c.QueueResponse(&Response{
		Content:      content,
		StopReason:   "end",
		TokensUsed:   100 + len(content)/4,
		InputTokens:  50,
		OutputTokens: 50 + len(content)/4,
	})
}

// Complete implements the Client interface.
func (c *MockClient) Complete(ctx context.Context, request *Request) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, CompletionCall{
		Request:   request,
		Timestamp: time.Now(),
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.errorToReturn != nil && c.errorBudget != 0 {
		if c.errorBudget > 0 {
			c.errorBudget--
		}
		return nil, c.errorToReturn
	}

	if c.responseFunc != nil {
		return c.responseFunc(request)
	}

	if len(c.responses) > 0 {
		response := c.responses[0]
		c.responses = c.responses[1:]
		response.Model = c.model
		return response, nil
	}

	response := *c.defaultResponse
	response.Model = c.model
	return &response, nil
}

// Name implements the Client interface.
func (c *MockClient) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// Model implements the Client interface.
func (c *MockClient) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model
}

// CallCount returns the number of Complete calls made.
func (c *MockClient) CallCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.calls)
}

// LastRequest returns the most recent request, or nil.
func (c *MockClient) LastRequest() *Request {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.calls) == 0 {
		return nil
	}
	return c.calls[len(c.calls)-1].Request
}

// Calls returns all recorded calls.
func (c *MockClient) Calls() []CompletionCall {
	c.mu.RLock()
	defer c.mu.RUnlock()

	calls := make([]CompletionCall, len(c.calls))
	copy(calls, c.calls)
	return calls
}

// Verify returns an error if queued responses were not consumed.
func (c *MockClient) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.responses) > 0 {
		return fmt.Errorf("mock: %d queued responses not consumed", len(c.responses))
	}
	return nil
}
