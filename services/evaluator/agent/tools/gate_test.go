// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func testLimits() Limits {
	return Limits{
		MaxTotalCalls:    20,
		MaxWallClock:     45 * time.Second,
		PerCallTimeout:   5 * time.Second,
		MaxResponseBytes: 5000,
	}
}

func newTestGate(t *testing.T, registry *Registry, limits Limits, opts ...GateOption) *Gate {
	t.Helper()
	gate, err := NewGate(registry, nil, limits, opts...)
	if err != nil {
		t.Fatalf("NewGate failed: %v", err)
	}
	return gate
}

func TestLimits_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Limits)
		wantErr bool
	}{
		{name: "valid", mutate: func(l *Limits) {}, wantErr: false},
		{name: "zero calls", mutate: func(l *Limits) { l.MaxTotalCalls = 0 }, wantErr: true},
		{name: "negative wall clock", mutate: func(l *Limits) { l.MaxWallClock = -time.Second }, wantErr: true},
		{name: "zero timeout", mutate: func(l *Limits) { l.PerCallTimeout = 0 }, wantErr: true},
		{name: "zero response bytes", mutate: func(l *Limits) { l.MaxResponseBytes = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limits := testLimits()
			tt.mutate(&limits)
			err := limits.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidLimits) {
				t.Errorf("expected ErrInvalidLimits, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestGate_Admit(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("read_file", CategoryFile))
	gate := newTestGate(t, registry, testLimits())

	t.Run("successful call", func(t *testing.T) {
		record := gate.Admit(context.Background(), "read_file", map[string]any{})
		if record.Outcome != OutcomeSuccess {
			t.Fatalf("expected success, got %s (%s)", record.Outcome, record.Error)
		}
		if record.Output != "mock output" {
			t.Errorf("unexpected output: %s", record.Output)
		}
		if record.ID == "" {
			t.Error("expected non-empty invocation ID")
		}
	})

	t.Run("quota consumed on success", func(t *testing.T) {
		summary := gate.Summary()
		if summary.TotalCalls != 1 {
			t.Errorf("expected 1 total call, got %d", summary.TotalCalls)
		}
		if summary.PerTool["read_file"] != 1 {
			t.Errorf("expected 1 read_file call, got %d", summary.PerTool["read_file"])
		}
	})

	t.Run("unknown tool rejected", func(t *testing.T) {
		record := gate.Admit(context.Background(), "no_such_tool", map[string]any{})
		if record.Outcome != OutcomeRejected {
			t.Fatalf("expected rejection, got %s", record.Outcome)
		}
		if record.RejectReason != RejectUnknownOperation {
			t.Errorf("expected unknown_operation, got %s", record.RejectReason)
		}
	})

	t.Run("rejection consumes no quota", func(t *testing.T) {
		if got := gate.Summary().TotalCalls; got != 1 {
			t.Errorf("expected total calls to stay at 1, got %d", got)
		}
	})
}

func TestGate_PerToolQuota(t *testing.T) {
	registry := NewRegistry()
	limited := newMockTool("git_diff_commits", CategoryGit)
	limited.definition.CallQuota = 2
	registry.Register(limited)
	other := newMockTool("read_file", CategoryFile)
	registry.Register(other)

	gate := newTestGate(t, registry, testLimits())

	for i := 0; i < 2; i++ {
		record := gate.Admit(context.Background(), "git_diff_commits", map[string]any{})
		if record.Outcome != OutcomeSuccess {
			t.Fatalf("call %d: expected success, got %s", i+1, record.Outcome)
		}
	}

	t.Run("third call rejected", func(t *testing.T) {
		record := gate.Admit(context.Background(), "git_diff_commits", map[string]any{})
		if record.Outcome != OutcomeRejected {
			t.Fatalf("expected rejection, got %s", record.Outcome)
		}
		if record.RejectReason != RejectPerOperationLimit {
			t.Errorf("expected per_operation_limit, got %s", record.RejectReason)
		}
		if record.RejectReason.Global() {
			t.Error("per-tool quota rejection must not be a global stop signal")
		}
	})

	t.Run("other tools still admitted", func(t *testing.T) {
		record := gate.Admit(context.Background(), "read_file", map[string]any{})
		if record.Outcome != OutcomeSuccess {
			t.Errorf("expected success for unrelated tool, got %s", record.Outcome)
		}
	})

	t.Run("tool body not executed on rejection", func(t *testing.T) {
		if limited.callCount != 2 {
			t.Errorf("expected 2 body executions, got %d", limited.callCount)
		}
	})
}

func TestGate_GlobalCallLimit(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("read_file", CategoryFile))

	limits := testLimits()
	limits.MaxTotalCalls = 3
	gate := newTestGate(t, registry, limits)

	for i := 0; i < 3; i++ {
		record := gate.Admit(context.Background(), "read_file", map[string]any{})
		if record.Outcome != OutcomeSuccess {
			t.Fatalf("call %d: expected success, got %s", i+1, record.Outcome)
		}
	}

	record := gate.Admit(context.Background(), "read_file", map[string]any{})
	if record.RejectReason != RejectGlobalCallLimit {
		t.Fatalf("expected global_call_limit, got %s", record.RejectReason)
	}
	if !record.RejectReason.Global() {
		t.Error("global call limit must be a global stop signal")
	}
	if !gate.Exhausted() {
		t.Error("gate should report exhausted at the global ceiling")
	}
}

func TestGate_TimeBudget(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("read_file", CategoryFile))

	current := time.Unix(1700000000, 0)
	clock := func() time.Time { return current }

	limits := testLimits()
	limits.MaxWallClock = 10 * time.Second
	gate := newTestGate(t, registry, limits, WithGateClock(clock))

	t.Run("within budget", func(t *testing.T) {
		record := gate.Admit(context.Background(), "read_file", map[string]any{})
		if record.Outcome != OutcomeSuccess {
			t.Fatalf("expected success, got %s", record.Outcome)
		}
	})

	t.Run("budget spent", func(t *testing.T) {
		current = current.Add(11 * time.Second)

		record := gate.Admit(context.Background(), "read_file", map[string]any{})
		if record.RejectReason != RejectTimeBudgetExceeded {
			t.Fatalf("expected time_budget_exceeded, got %s", record.RejectReason)
		}
		if !record.RejectReason.Global() {
			t.Error("time budget rejection must be a global stop signal")
		}
		if gate.Summary().TimeRemaining != 0 {
			t.Errorf("expected zero time remaining, got %v", gate.Summary().TimeRemaining)
		}
	})
}

func TestGate_ExecutionFailure(t *testing.T) {
	registry := NewRegistry()
	failing := newMockTool("git_blame_file", CategoryGit)
	failing.ExecuteFunc = func(ctx context.Context, args map[string]any) (*Result, error) {
		return nil, errors.New("object not found")
	}
	registry.Register(failing)

	gate := newTestGate(t, registry, testLimits())

	record := gate.Admit(context.Background(), "git_blame_file", map[string]any{})
	if record.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", record.Outcome)
	}
	if !strings.Contains(record.Error, "object not found") {
		t.Errorf("expected error detail, got %q", record.Error)
	}

	// Failure still burns budget.
	summary := gate.Summary()
	if summary.TotalCalls != 1 {
		t.Errorf("expected 1 total call after failure, got %d", summary.TotalCalls)
	}
	if summary.PerTool["git_blame_file"] != 1 {
		t.Errorf("expected failed call to consume tool quota, got %d", summary.PerTool["git_blame_file"])
	}
}

func TestGate_PerCallTimeout(t *testing.T) {
	registry := NewRegistry()
	slow := newMockTool("search_in_files", CategoryFile)
	slow.ExecuteFunc = func(ctx context.Context, args map[string]any) (*Result, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(5 * time.Second):
			return &Result{Output: "too late"}, nil
		}
	}
	registry.Register(slow)

	limits := testLimits()
	limits.PerCallTimeout = 50 * time.Millisecond
	gate := newTestGate(t, registry, limits)

	start := time.Now()
	record := gate.Admit(context.Background(), "search_in_files", map[string]any{})
	elapsed := time.Since(start)

	if record.Outcome != OutcomeFailure {
		t.Fatalf("expected failure, got %s", record.Outcome)
	}
	if !strings.Contains(record.Error, "deadline") {
		t.Errorf("expected deadline error, got %q", record.Error)
	}
	if elapsed > 2*time.Second {
		t.Errorf("timeout did not bound execution, took %v", elapsed)
	}

	// A timed-out call still consumed its quota.
	if gate.Summary().TotalCalls != 1 {
		t.Errorf("expected timed-out call to count, got %d", gate.Summary().TotalCalls)
	}
}

func TestGate_InvalidArguments(t *testing.T) {
	registry := NewRegistry()
	tool := newMockTool("read_file", CategoryFile)
	tool.definition.Params = map[string]ParamDef{
		"file_path": {Type: ParamTypeString, Required: true},
	}
	registry.Register(tool)

	gate := newTestGate(t, registry, testLimits())

	record := gate.Admit(context.Background(), "read_file", map[string]any{})
	if record.RejectReason != RejectInvalidArguments {
		t.Fatalf("expected invalid_arguments, got %s", record.RejectReason)
	}
	if tool.callCount != 0 {
		t.Error("tool body must not run on invalid arguments")
	}
	if gate.Summary().TotalCalls != 0 {
		t.Error("invalid arguments must not consume quota")
	}
}

func TestGate_OutputTruncation(t *testing.T) {
	registry := NewRegistry()
	chatty := newMockTool("git_show_commit", CategoryGit)
	chatty.ExecuteFunc = func(ctx context.Context, args map[string]any) (*Result, error) {
		return &Result{Output: strings.Repeat("x", 10000)}, nil
	}
	registry.Register(chatty)

	limits := testLimits()
	limits.MaxResponseBytes = 100
	gate := newTestGate(t, registry, limits)

	record := gate.Admit(context.Background(), "git_show_commit", map[string]any{})
	if record.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s", record.Outcome)
	}
	if !record.Truncated {
		t.Error("expected output to be marked truncated")
	}
	if !strings.HasSuffix(record.Output, "[output truncated]") {
		t.Error("expected truncation marker in output")
	}
	if len(record.Output) > 100+len("\n... [output truncated]") {
		t.Errorf("output not truncated to limit, len=%d", len(record.Output))
	}
}

func TestGate_History(t *testing.T) {
	registry := NewRegistry()
	registry.Register(newMockTool("read_file", CategoryFile))

	limits := testLimits()
	limits.MaxTotalCalls = 2
	gate := newTestGate(t, registry, limits)

	gate.Admit(context.Background(), "read_file", map[string]any{})
	gate.Admit(context.Background(), "nonexistent", map[string]any{})
	gate.Admit(context.Background(), "read_file", map[string]any{})
	gate.Admit(context.Background(), "read_file", map[string]any{})

	history := gate.History()
	if len(history) != 4 {
		t.Fatalf("expected 4 records including rejections, got %d", len(history))
	}

	wantOutcomes := []Outcome{OutcomeSuccess, OutcomeRejected, OutcomeSuccess, OutcomeRejected}
	for i, want := range wantOutcomes {
		if history[i].Outcome != want {
			t.Errorf("record %d: expected %s, got %s", i, want, history[i].Outcome)
		}
	}

	t.Run("history is a copy", func(t *testing.T) {
		history[0].ToolName = "mutated"
		if gate.History()[0].ToolName == "mutated" {
			t.Error("History must return a copy")
		}
	})
}

func TestGate_SummaryRemaining(t *testing.T) {
	registry := NewRegistry()
	tool := newMockTool("git_log_search", CategoryGit)
	tool.definition.CallQuota = 3
	registry.Register(tool)

	gate := newTestGate(t, registry, testLimits())

	gate.Admit(context.Background(), "git_log_search", map[string]any{})

	summary := gate.Summary()
	if summary.Remaining["git_log_search"] != 2 {
		t.Errorf("expected 2 remaining, got %d", summary.Remaining["git_log_search"])
	}
	if summary.GlobalRemaining != testLimits().MaxTotalCalls-1 {
		t.Errorf("expected %d global remaining, got %d", testLimits().MaxTotalCalls-1, summary.GlobalRemaining)
	}

	// Summary is read-only: repeated calls see the same state.
	again := gate.Summary()
	if again.TotalCalls != summary.TotalCalls {
		t.Error("Summary must not mutate gate state")
	}
}
