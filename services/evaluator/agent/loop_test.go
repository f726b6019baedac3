// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/commitlens/services/evaluator/agent/events"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/llm"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/tools"
)

// fakeTool is a scriptable tool body for session tests.
type fakeTool struct {
	definition tools.Definition
	execute    func(ctx context.Context, args map[string]any) (*tools.Result, error)
	callCount  int
}

func newFakeTool(name string, quota int) *fakeTool {
	return &fakeTool{
		definition: tools.Definition{
			Name:        name,
			Description: "test tool",
			Category:    tools.CategoryFile,
			CallQuota:   quota,
			Params: map[string]tools.ParamDef{
				"path": {Type: tools.ParamTypeString},
			},
		},
	}
}

func (f *fakeTool) Name() string                 { return f.definition.Name }
func (f *fakeTool) Definition() tools.Definition { return f.definition }

func (f *fakeTool) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	f.callCount++
	if f.execute != nil {
		return f.execute(ctx, args)
	}
	return &tools.Result{
		Output:  fmt.Sprintf("output %d from %s", f.callCount, f.definition.Name),
		Summary: "ok",
	}, nil
}

func testRegistry(t *testing.T, ts ...tools.Tool) *tools.Registry {
	t.Helper()
	registry := tools.NewRegistry()
	for _, tool := range ts {
		registry.Register(tool)
	}
	return registry
}

func testBudget() Budget {
	b := DefaultBudget()
	b.PerCallTimeout = time.Second
	return b
}

func newTestSession(t *testing.T, client llm.Client, registry *tools.Registry, opts ...SessionOption) *Session {
	t.Helper()
	opts = append([]SessionOption{
		WithBudget(testBudget()),
		WithRetryConfig(fastRetryConfig()),
	}, opts...)
	s, err := NewSession(client, registry, nil, opts...)
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}
	return s
}

func TestNewSession_Validation(t *testing.T) {
	registry := testRegistry(t, newFakeTool("read_file", 3))
	client := llm.NewMockClient()

	t.Run("nil client", func(t *testing.T) {
		if _, err := NewSession(nil, registry, nil); !errors.Is(err, ErrNilClient) {
			t.Errorf("error = %v, want ErrNilClient", err)
		}
	})

	t.Run("nil registry", func(t *testing.T) {
		if _, err := NewSession(client, nil, nil); !errors.Is(err, ErrNilRegistry) {
			t.Errorf("error = %v, want ErrNilRegistry", err)
		}
	})

	t.Run("invalid budget", func(t *testing.T) {
		bad := DefaultBudget()
		bad.MaxIterations = 0
		if _, err := NewSession(client, registry, nil, WithBudget(bad)); !errors.Is(err, ErrInvalidBudget) {
			t.Errorf("error = %v, want ErrInvalidBudget", err)
		}
	})
}

func TestBudget_Validate(t *testing.T) {
	mutations := []struct {
		name string
		mod  func(*Budget)
	}{
		{"zero calls", func(b *Budget) { b.MaxTotalCalls = 0 }},
		{"negative wall clock", func(b *Budget) { b.MaxWallClock = -time.Second }},
		{"zero iterations", func(b *Budget) { b.MaxIterations = 0 }},
		{"zero per-call timeout", func(b *Budget) { b.PerCallTimeout = 0 }},
		{"zero response bytes", func(b *Budget) { b.MaxResponseBytes = 0 }},
	}

	if err := DefaultBudget().Validate(); err != nil {
		t.Fatalf("default budget should validate: %v", err)
	}

	for _, tt := range mutations {
		t.Run(tt.name, func(t *testing.T) {
			b := DefaultBudget()
			tt.mod(&b)
			if err := b.Validate(); !errors.Is(err, ErrInvalidBudget) {
				t.Errorf("error = %v, want ErrInvalidBudget", err)
			}
		})
	}
}

func TestSession_HappyPath(t *testing.T) {
	tool := newFakeTool("read_file", 3)
	registry := testRegistry(t, tool)

	client := llm.NewMockClient()
	client.QueueToolCall("read_file", map[string]any{"path": "parser.go"})
	client.QueueFinalResponse(ContextGatheringComplete)
	client.QueueFinalResponse(validJudgment)

	session := newTestSession(t, client, registry)
	result, err := session.Run(context.Background(), testCommit(), "diff --git a/parser.go b/parser.go\n")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FinalState != StateCompleted {
		t.Errorf("final state = %s, want completed", result.FinalState)
	}
	if result.Evaluation == nil || result.Evaluation.Degraded {
		t.Fatalf("expected full-context evaluation, got %+v", result.Evaluation)
	}
	if result.Iterations != 2 {
		t.Errorf("iterations = %d, want 2", result.Iterations)
	}
	if tool.callCount != 1 {
		t.Errorf("tool executed %d times, want 1", tool.callCount)
	}
	if len(result.History) != 1 || result.History[0].Outcome != tools.OutcomeSuccess {
		t.Errorf("history = %+v, want one successful record", result.History)
	}
	if result.Usage.TotalCalls != 1 {
		t.Errorf("usage total calls = %d, want 1", result.Usage.TotalCalls)
	}
	if err := client.Verify(); err != nil {
		t.Error(err)
	}

	// The tool output must have been fed back to the model.
	judgeReq := client.LastRequest()
	if len(judgeReq.Tools) != 0 {
		t.Error("judging request should not offer tools")
	}
	if !strings.Contains(judgeReq.Messages[0].Content, "output 1 from read_file") {
		t.Error("judging prompt missing gathered context")
	}
}

func TestSession_GlobalBudgetForcesJudging(t *testing.T) {
	tool := newFakeTool("read_file", 10)
	registry := testRegistry(t, tool)

	budget := testBudget()
	budget.MaxTotalCalls = 2

	client := llm.NewMockClient().WithResponseFunc(func(req *llm.Request) (*llm.Response, error) {
		if len(req.Tools) > 0 {
			return &llm.Response{
				StopReason: "tool_use",
				ToolCalls:  []llm.ToolCall{{ID: "call_x", Name: "read_file", Arguments: `{"path":"a.go"}`}},
			}, nil
		}
		return &llm.Response{Content: validJudgment, StopReason: "end"}, nil
	})

	session := newTestSession(t, client, registry, WithBudget(budget))
	result, err := session.Run(context.Background(), testCommit(), "diff")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FinalState != StateCompleted {
		t.Errorf("final state = %s, want completed", result.FinalState)
	}
	if tool.callCount != 2 {
		t.Errorf("tool executed %d times, want 2", tool.callCount)
	}

	// Third admission attempt is rejected and ends gathering.
	if len(result.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(result.History))
	}
	last := result.History[2]
	if !last.Rejected() || last.RejectReason != tools.RejectGlobalCallLimit {
		t.Errorf("last record = %+v, want global call limit rejection", last)
	}
}

func TestSession_PerToolQuotaIsNotTerminal(t *testing.T) {
	limited := newFakeTool("git_blame_file", 1)
	open := newFakeTool("read_file", 5)
	registry := testRegistry(t, limited, open)

	client := llm.NewMockClient()
	client.QueueToolCall("git_blame_file", map[string]any{"path": "a.go"})
	client.QueueToolCall("git_blame_file", map[string]any{"path": "b.go"})
	client.QueueToolCall("read_file", map[string]any{"path": "b.go"})
	client.QueueFinalResponse(ContextGatheringComplete)
	client.QueueFinalResponse(validJudgment)

	session := newTestSession(t, client, registry)
	result, err := session.Run(context.Background(), testCommit(), "diff")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FinalState != StateCompleted {
		t.Errorf("final state = %s, want completed", result.FinalState)
	}
	if limited.callCount != 1 {
		t.Errorf("limited tool executed %d times, want 1", limited.callCount)
	}
	if open.callCount != 1 {
		t.Errorf("open tool executed %d times, want 1", open.callCount)
	}

	if len(result.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(result.History))
	}
	second := result.History[1]
	if !second.Rejected() || second.RejectReason != tools.RejectPerOperationLimit {
		t.Errorf("second record = %+v, want per-operation rejection", second)
	}
	if err := client.Verify(); err != nil {
		t.Error(err)
	}
}

func TestSession_IterationLimitForcesJudging(t *testing.T) {
	tool := newFakeTool("read_file", 20)
	registry := testRegistry(t, tool)

	budget := testBudget()
	budget.MaxIterations = 3

	client := llm.NewMockClient().WithResponseFunc(func(req *llm.Request) (*llm.Response, error) {
		if len(req.Tools) > 0 {
			return &llm.Response{
				StopReason: "tool_use",
				ToolCalls:  []llm.ToolCall{{ID: "call_x", Name: "read_file", Arguments: `{}`}},
			}, nil
		}
		return &llm.Response{Content: validJudgment, StopReason: "end"}, nil
	})

	session := newTestSession(t, client, registry, WithBudget(budget))
	result, err := session.Run(context.Background(), testCommit(), "diff")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.Iterations != 3 {
		t.Errorf("iterations = %d, want 3", result.Iterations)
	}
	if result.FinalState != StateCompleted {
		t.Errorf("final state = %s, want completed", result.FinalState)
	}
}

func TestSession_CorrectiveRetryRecovers(t *testing.T) {
	registry := testRegistry(t, newFakeTool("read_file", 3))

	client := llm.NewMockClient()
	client.QueueFinalResponse(ContextGatheringComplete)
	client.QueueFinalResponse("I would score this commit a solid four out of five.")
	client.QueueFinalResponse(validJudgment)

	session := newTestSession(t, client, registry)
	result, err := session.Run(context.Background(), testCommit(), "diff")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FinalState != StateCompleted {
		t.Errorf("final state = %s, want completed after corrective retry", result.FinalState)
	}
	if result.Evaluation.Degraded {
		t.Error("corrective retry success should not be degraded")
	}

	// The retry request must carry the corrective instruction.
	retryReq := client.LastRequest()
	lastMsg := retryReq.Messages[len(retryReq.Messages)-1]
	if !strings.Contains(lastMsg.Content, "could not be parsed") {
		t.Errorf("retry message = %q, want corrective instruction", lastMsg.Content)
	}
}

func TestSession_MalformedTwiceFallsBack(t *testing.T) {
	registry := testRegistry(t, newFakeTool("read_file", 3))

	client := llm.NewMockClient()
	client.QueueFinalResponse(ContextGatheringComplete)
	client.QueueFinalResponse("not json")
	client.QueueFinalResponse(`{"technical_complexity": 7, "scope_of_impact": 2, "code_quality_delta": 3,
		"risk_criticality": 3, "knowledge_sharing": 3, "innovation": 3}`)
	client.QueueFinalResponse(validJudgment)

	session := newTestSession(t, client, registry)
	result, err := session.Run(context.Background(), testCommit(), "diff")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FinalState != StateFellBack {
		t.Errorf("final state = %s, want fell_back", result.FinalState)
	}
	if !result.Evaluation.Degraded {
		t.Error("fallback evaluation must be marked degraded")
	}
	if result.Evaluation.DegradedReason == "" {
		t.Error("fallback evaluation must carry a reason")
	}
	if err := result.Evaluation.Validate(); err != nil {
		t.Errorf("fallback evaluation must validate: %v", err)
	}
}

func TestSession_FallbackNeverFails(t *testing.T) {
	registry := testRegistry(t, newFakeTool("read_file", 3))

	// Every judging and fallback response is unusable.
	client := llm.NewMockClient()
	client.QueueFinalResponse(ContextGatheringComplete)
	client.QueueFinalResponse("garbage one")
	client.QueueFinalResponse("garbage two")
	client.QueueFinalResponse("garbage three")

	session := newTestSession(t, client, registry)
	result, err := session.Run(context.Background(), testCommit(), "diff")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FinalState != StateFellBack {
		t.Errorf("final state = %s, want fell_back", result.FinalState)
	}
	eval := result.Evaluation
	if eval == nil || !eval.Degraded {
		t.Fatalf("expected degraded neutral evaluation, got %+v", eval)
	}
	if eval.TechnicalComplexity != 3 || eval.Innovation != 3 {
		t.Errorf("neutral evaluation scores = %+v, want all 3", eval)
	}
	if len(eval.Categories) != 1 || eval.Categories[0] != "evaluation_incomplete" {
		t.Errorf("categories = %v, want [evaluation_incomplete]", eval.Categories)
	}
}

func TestSession_WallClockDeadlineBoundsRun(t *testing.T) {
	registry := testRegistry(t, newFakeTool("read_file", 3))

	// Every reasoning call stalls for longer than the whole session
	// allowance, ignoring its context the way a wedged transport would.
	client := llm.NewMockClient().WithResponseFunc(func(*llm.Request) (*llm.Response, error) {
		time.Sleep(100 * time.Millisecond)
		return &llm.Response{Content: "late", StopReason: "end"}, nil
	})

	budget := testBudget()
	budget.MaxWallClock = 50 * time.Millisecond
	budget.PerCallTimeout = 25 * time.Millisecond

	session := newTestSession(t, client, registry, WithBudget(budget))

	start := time.Now()
	result, err := session.Run(context.Background(), testCommit(), "diff")
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	bound := budget.MaxWallClock + budget.PerCallTimeout
	if elapsed > bound+100*time.Millisecond {
		t.Errorf("session ran %s, want at most about %s", elapsed, bound)
	}
	if result.FinalState != StateFellBack {
		t.Errorf("final state = %s, want fell_back", result.FinalState)
	}
	eval := result.Evaluation
	if eval == nil || !eval.Degraded {
		t.Fatalf("expected degraded evaluation, got %+v", eval)
	}
}

func TestSession_ReasoningUnavailableAborts(t *testing.T) {
	tool := newFakeTool("read_file", 3)
	registry := testRegistry(t, tool)

	client := llm.NewMockClient().WithError(errors.New("connection refused"))

	session := newTestSession(t, client, registry)
	result, err := session.Run(context.Background(), testCommit(), "diff")
	if !errors.Is(err, ErrReasoningUnavailable) {
		t.Fatalf("error = %v, want ErrReasoningUnavailable", err)
	}

	if result == nil {
		t.Fatal("aborted run must still return a result")
	}
	if result.FinalState != StateAborted {
		t.Errorf("final state = %s, want aborted", result.FinalState)
	}
	if result.Evaluation != nil {
		t.Error("aborted run must not carry an evaluation")
	}
	if result.Usage.GlobalRemaining != testBudget().MaxTotalCalls {
		t.Errorf("no tools should have been consumed, usage = %+v", result.Usage)
	}
	// Non-transient errors must not be retried.
	if client.CallCount() != 1 {
		t.Errorf("call count = %d, want 1", client.CallCount())
	}
}

func TestSession_TransientErrorRetriedDuringGathering(t *testing.T) {
	registry := testRegistry(t, newFakeTool("read_file", 3))

	client := llm.NewMockClient()
	client.WithErrorCount(context.DeadlineExceeded, 1)
	client.QueueFinalResponse(ContextGatheringComplete)
	client.QueueFinalResponse(validJudgment)

	session := newTestSession(t, client, registry)
	result, err := session.Run(context.Background(), testCommit(), "diff")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.FinalState != StateCompleted {
		t.Errorf("final state = %s, want completed after transient retry", result.FinalState)
	}
	if client.CallCount() != 3 {
		t.Errorf("call count = %d, want 3 (1 failed + 2 ok)", client.CallCount())
	}
}

func TestSession_MalformedToolArguments(t *testing.T) {
	tool := newFakeTool("read_file", 3)
	registry := testRegistry(t, tool)

	client := llm.NewMockClient()
	client.QueueResponse(&llm.Response{
		StopReason: "tool_use",
		ToolCalls:  []llm.ToolCall{{ID: "call_0", Name: "read_file", Arguments: `{"path": `}},
	})
	client.QueueFinalResponse(ContextGatheringComplete)
	client.QueueFinalResponse(validJudgment)

	session := newTestSession(t, client, registry)
	result, err := session.Run(context.Background(), testCommit(), "diff")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FinalState != StateCompleted {
		t.Errorf("final state = %s, want completed", result.FinalState)
	}
	if tool.callCount != 0 {
		t.Error("tool must not execute on undecodable arguments")
	}

	// The decode failure is surfaced to the model as a tool message.
	second := client.Calls()[1].Request
	lastMsg := second.Messages[len(second.Messages)-1]
	if lastMsg.Role != "tool" || !strings.Contains(lastMsg.Content, "not valid JSON") {
		t.Errorf("feedback message = %+v, want JSON error as tool content", lastMsg)
	}
}

func TestSession_UnknownToolFeedsBackRejection(t *testing.T) {
	registry := testRegistry(t, newFakeTool("read_file", 3))

	client := llm.NewMockClient()
	client.QueueToolCall("delete_everything", map[string]any{})
	client.QueueFinalResponse(ContextGatheringComplete)
	client.QueueFinalResponse(validJudgment)

	session := newTestSession(t, client, registry)
	result, err := session.Run(context.Background(), testCommit(), "diff")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.FinalState != StateCompleted {
		t.Errorf("final state = %s, want completed", result.FinalState)
	}
	if len(result.History) != 1 {
		t.Fatalf("history length = %d, want 1", len(result.History))
	}
	rec := result.History[0]
	if rec.RejectReason != tools.RejectUnknownOperation {
		t.Errorf("reject reason = %s, want unknown_operation", rec.RejectReason)
	}
}

func TestSession_EmitsLifecycleEvents(t *testing.T) {
	registry := testRegistry(t, newFakeTool("read_file", 3))

	client := llm.NewMockClient()
	client.QueueToolCall("read_file", map[string]any{"path": "a.go"})
	client.QueueFinalResponse(ContextGatheringComplete)
	client.QueueFinalResponse(validJudgment)

	emitter := events.NewEmitter()
	var seen []events.Type
	emitter.Subscribe(func(event *events.Event) {
		seen = append(seen, event.Type)
	})

	session, err := NewSession(client, registry, emitter,
		WithBudget(testBudget()),
		WithRetryConfig(fastRetryConfig()))
	if err != nil {
		t.Fatalf("NewSession failed: %v", err)
	}

	if _, err := session.Run(context.Background(), testCommit(), "diff"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	counts := map[events.Type]int{}
	for _, et := range seen {
		counts[et]++
	}

	// idle->gathering, gathering->judging, judging->completed.
	if counts[events.TypeStateTransition] != 3 {
		t.Errorf("state transitions = %d, want 3", counts[events.TypeStateTransition])
	}
	if counts[events.TypeToolStart] != 1 || counts[events.TypeToolSuccess] != 1 {
		t.Errorf("tool events = %v, want one start and one success", counts)
	}
	if counts[events.TypeAgentComplete] != 1 {
		t.Errorf("agent complete events = %d, want 1", counts[events.TypeAgentComplete])
	}
	if counts[events.TypeAgentThinking] == 0 {
		t.Error("expected thinking events during the session")
	}
}

func TestSession_CancelledContextAborts(t *testing.T) {
	registry := testRegistry(t, newFakeTool("read_file", 3))
	client := llm.NewMockClient()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	session := newTestSession(t, client, registry)
	result, err := session.Run(ctx, testCommit(), "diff")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if result == nil || result.FinalState != StateAborted {
		t.Errorf("result = %+v, want aborted", result)
	}
}
