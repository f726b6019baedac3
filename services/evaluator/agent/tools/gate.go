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
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/commitlens/services/evaluator/agent/events"
)

// ErrInvalidLimits indicates a non-positive session limit.
var ErrInvalidLimits = errors.New("invalid limits")

// Limits bounds what a single session may consume through the gate.
type Limits struct {
	// MaxTotalCalls is the ceiling on admitted invocations across all
	// tools. Rejections do not count against it.
	MaxTotalCalls int

	// MaxWallClock is the total time budget for tool execution,
	// measured from the gate's creation.
	MaxWallClock time.Duration

	// PerCallTimeout bounds a single tool body's execution.
	PerCallTimeout time.Duration

	// MaxResponseBytes truncates tool output beyond this size.
	MaxResponseBytes int
}

// Validate checks that every limit is positive.
func (l Limits) Validate() error {
	if l.MaxTotalCalls <= 0 {
		return fmt.Errorf("%w: max total calls must be positive, got %d", ErrInvalidLimits, l.MaxTotalCalls)
	}
	if l.MaxWallClock <= 0 {
		return fmt.Errorf("%w: max wall clock must be positive, got %v", ErrInvalidLimits, l.MaxWallClock)
	}
	if l.PerCallTimeout <= 0 {
		return fmt.Errorf("%w: per-call timeout must be positive, got %v", ErrInvalidLimits, l.PerCallTimeout)
	}
	if l.MaxResponseBytes <= 0 {
		return fmt.Errorf("%w: max response bytes must be positive, got %d", ErrInvalidLimits, l.MaxResponseBytes)
	}
	return nil
}

// Gate admits, bounds, and records every tool invocation for one
// evaluation session.
//
// Description:
//
//	All tool execution flows through Admit. The gate enforces the
//	global call ceiling, per-tool quotas, the session wall clock, and
//	argument validity before a tool body runs, then executes the body
//	under a per-call timeout and appends an ExecutionRecord either way.
//	Quota is consumed on success and on failure, never on rejection,
//	so a tool that errors out still burns its budget but a rejected
//	request costs nothing.
//
// Thread Safety: Gate is NOT safe for concurrent use. Each session
// owns its gate exclusively and drives it from a single goroutine;
// concurrent sessions each get their own gate.
type Gate struct {
	registry *Registry
	emitter  *events.Emitter
	limits   Limits
	logger   *slog.Logger

	startedAt  time.Time
	totalCalls int
	perTool    map[string]int
	history    []ExecutionRecord

	// now is swappable for tests.
	now func() time.Time
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithGateLogger sets the logger used for admission decisions.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGateClock overrides the gate's time source.
func WithGateClock(now func() time.Time) GateOption {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// NewGate creates a gate over the given registry.
//
// Description:
//
//	The wall clock budget starts counting immediately. The emitter
//	receives an event before every execution and a terminal event for
//	every admitted or rejected request.
//
// Inputs:
//
//	registry - Tool catalog. Must not be nil.
//	emitter - Event sink. May be nil; events are then dropped.
//	limits - Session limits. Must pass Validate.
//
// Outputs:
//
//	*Gate - The configured gate.
//	error - ErrInvalidLimits if any limit is non-positive.
func NewGate(registry *Registry, emitter *events.Emitter, limits Limits, opts ...GateOption) (*Gate, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}

	g := &Gate{
		registry: registry,
		emitter:  emitter,
		limits:   limits,
		logger:   slog.Default(),
		perTool:  make(map[string]int),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	g.startedAt = g.now()

	return g, nil
}

// Admit runs a tool request through admission, execution, and
// recording.
//
// Description:
//
//	Checks, in order: global call ceiling, tool existence, per-tool
//	quota, remaining wall clock, argument validity. A failed check
//	produces a rejected record without executing anything or consuming
//	quota. An admitted request executes under the per-call timeout;
//	its outcome (success or failure) consumes one global call and one
//	unit of the tool's quota. Every request, rejected or admitted,
//	appends exactly one record to the history.
//
// Inputs:
//
//	ctx - Cancels execution early. Admission checks are not cancelable.
//	name - Registered tool name.
//	args - Raw arguments as decoded from the LLM tool call.
//
// Outputs:
//
//	*ExecutionRecord - Always non-nil; inspect Outcome and RejectReason.
func (g *Gate) Admit(ctx context.Context, name string, args map[string]any) *ExecutionRecord {
	if g.totalCalls >= g.limits.MaxTotalCalls {
		return g.reject(name, args, RejectGlobalCallLimit,
			fmt.Sprintf("global call limit reached (%d)", g.limits.MaxTotalCalls))
	}

	tool, ok := g.registry.Get(name)
	if !ok {
		return g.reject(name, args, RejectUnknownOperation,
			fmt.Sprintf("unknown tool %q", name))
	}
	def := tool.Definition()

	if def.CallQuota > 0 && g.perTool[name] >= def.CallQuota {
		return g.reject(name, args, RejectPerOperationLimit,
			fmt.Sprintf("quota for %s exhausted (%d)", name, def.CallQuota))
	}

	if g.Elapsed() >= g.limits.MaxWallClock {
		return g.reject(name, args, RejectTimeBudgetExceeded,
			fmt.Sprintf("time budget exhausted (%v)", g.limits.MaxWallClock))
	}

	if err := ValidateArgs(def, args); err != nil {
		return g.reject(name, args, RejectInvalidArguments, err.Error())
	}

	record := ExecutionRecord{
		ID:        uuid.New().String(),
		ToolName:  name,
		Args:      args,
		Preview:   def.PreviewFor(args),
		StartedAt: g.now(),
	}

	g.emit(events.TypeToolStart, &events.ToolStartData{
		ToolName:     name,
		InvocationID: record.ID,
		Preview:      record.Preview,
		TotalCalls:   g.totalCalls,
	})

	result, err := g.execute(ctx, tool, args)
	record.CompletedAt = g.now()

	// Success and failure both consume quota.
	g.totalCalls++
	g.perTool[name]++

	if err != nil {
		record.Outcome = OutcomeFailure
		record.Error = err.Error()
		g.logger.Warn("tool execution failed",
			"tool", name,
			"error", err,
			"duration", record.Duration())
	} else {
		record.Outcome = OutcomeSuccess
		record.Output, record.Truncated = truncate(result.Output, g.limits.MaxResponseBytes)
		record.Summary = result.Summary
	}

	g.history = append(g.history, record)
	g.emitTerminal(&record)

	return &record
}

// execute runs the tool body under the per-call timeout. The body runs
// in its own goroutine so a stuck tool cannot hold the session past
// its deadline; an abandoned body's result is discarded.
func (g *Gate) execute(ctx context.Context, tool Tool, args map[string]any) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.limits.PerCallTimeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := tool.Execute(callCtx, args)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return nil, out.err
		}
		if out.result == nil {
			return nil, fmt.Errorf("tool %s returned no result", tool.Name())
		}
		return out.result, nil
	case <-callCtx.Done():
		return nil, fmt.Errorf("tool %s: %w", tool.Name(), callCtx.Err())
	}
}

// reject records a refused request. No quota is consumed.
func (g *Gate) reject(name string, args map[string]any, reason RejectReason, detail string) *ExecutionRecord {
	now := g.now()
	record := ExecutionRecord{
		ID:           uuid.New().String(),
		ToolName:     name,
		Args:         args,
		StartedAt:    now,
		CompletedAt:  now,
		Outcome:      OutcomeRejected,
		RejectReason: reason,
		Error:        detail,
	}

	g.logger.Info("tool request rejected",
		"tool", name,
		"reason", string(reason),
		"detail", detail)

	g.history = append(g.history, record)
	g.emitTerminal(&record)

	return &record
}

func (g *Gate) emitTerminal(record *ExecutionRecord) {
	data := &events.ToolResultData{
		ToolName:     record.ToolName,
		InvocationID: record.ID,
		Outcome:      string(record.Outcome),
		RejectReason: string(record.RejectReason),
		Error:        record.Error,
		Duration:     record.Duration(),
		TotalCalls:   g.totalCalls,
	}
	if record.Outcome == OutcomeSuccess {
		data.ResultPreview = record.Summary
		g.emit(events.TypeToolSuccess, data)
		return
	}
	g.emit(events.TypeToolError, data)
}

func (g *Gate) emit(eventType events.Type, data any) {
	if g.emitter != nil {
		g.emitter.Emit(eventType, data)
	}
}

// Elapsed returns time consumed since the gate was created.
func (g *Gate) Elapsed() time.Duration {
	return g.now().Sub(g.startedAt)
}

// Exhausted reports whether the session can admit no further tool
// calls: either the global ceiling is reached or the wall clock budget
// is spent.
func (g *Gate) Exhausted() bool {
	return g.totalCalls >= g.limits.MaxTotalCalls || g.Elapsed() >= g.limits.MaxWallClock
}

// Summary returns a snapshot of budget consumption. It has no side
// effects and may be called at any point in the session.
func (g *Gate) Summary() UsageSummary {
	perTool := make(map[string]int, len(g.perTool))
	for name, count := range g.perTool {
		perTool[name] = count
	}

	remaining := make(map[string]int)
	for _, def := range g.registry.Definitions() {
		if def.CallQuota <= 0 {
			continue
		}
		left := def.CallQuota - g.perTool[def.Name]
		if left < 0 {
			left = 0
		}
		remaining[def.Name] = left
	}

	elapsed := g.Elapsed()
	timeRemaining := g.limits.MaxWallClock - elapsed
	if timeRemaining < 0 {
		timeRemaining = 0
	}

	return UsageSummary{
		TotalCalls:      g.totalCalls,
		PerTool:         perTool,
		Remaining:       remaining,
		GlobalRemaining: g.limits.MaxTotalCalls - g.totalCalls,
		Elapsed:         elapsed,
		TimeRemaining:   timeRemaining,
	}
}

// History returns a copy of all execution records in admission order.
func (g *Gate) History() []ExecutionRecord {
	out := make([]ExecutionRecord, len(g.history))
	copy(out, g.history)
	return out
}

// truncate cuts s to at most maxBytes, reporting whether it did.
func truncate(s string, maxBytes int) (string, bool) {
	if len(s) <= maxBytes {
		return s, false
	}
	return s[:maxBytes] + "\n... [output truncated]", true
}
