// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools provides the operation registry and the execution gate.
//
// The registry is the static catalog of operations the agent may invoke:
// name, argument schema, per-operation call quota, and a preview formatter.
// The gate is the sole admission authority for one session: it enforces the
// global call budget, per-operation quotas, the wall-clock budget, and the
// per-call timeout, and it keeps the append-only audit trail of every
// admission attempt.
package tools

import (
	"context"
	"fmt"
	"time"
)

// Category groups tools for menu presentation.
type Category string

const (
	// CategoryGit covers repository history operations.
	CategoryGit Category = "git"

	// CategoryFile covers file and directory operations.
	CategoryFile Category = "file"

	// CategoryCodeAnalysis covers cross-file code queries.
	CategoryCodeAnalysis Category = "code_analysis"
)

// ParamType enumerates supported argument types.
type ParamType string

const (
	ParamTypeString      ParamType = "string"
	ParamTypeInt         ParamType = "integer"
	ParamTypeBool        ParamType = "boolean"
	ParamTypeStringArray ParamType = "array"
)

// ParamDef describes one argument in a tool's schema.
type ParamDef struct {
	// Type is the expected argument type.
	Type ParamType `json:"type"`

	// Description explains the argument to the reasoning service.
	Description string `json:"description"`

	// Required marks arguments that must be present.
	Required bool `json:"required,omitempty"`

	// Default is applied when an optional argument is absent.
	Default any `json:"default,omitempty"`

	// Minimum and Maximum bound numeric arguments when non-nil.
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`
}

// PreviewFunc formats validated arguments into a human-readable command
// string, e.g. "git log --author='alice' -n 10".
type PreviewFunc func(args map[string]any) string

// Definition is the immutable specification of one tool.
//
// Definitions are created once at process start and shared read-only by
// all sessions.
type Definition struct {
	// Name is the unique tool name.
	Name string `json:"name"`

	// Description explains when the reasoning service should pick this tool.
	Description string `json:"description"`

	// Category groups the tool for presentation.
	Category Category `json:"category"`

	// Params is the argument schema.
	Params map[string]ParamDef `json:"params"`

	// CallQuota is the maximum invocations per session.
	CallQuota int `json:"call_quota"`

	// Preview formats arguments into a command preview. Optional; a
	// generic "name(k=v, ...)" form is used when nil.
	Preview PreviewFunc `json:"-"`
}

// PreviewFor renders the command preview for the given arguments.
func (d Definition) PreviewFor(args map[string]any) string {
	if d.Preview != nil {
		return d.Preview(args)
	}
	return genericPreview(d.Name, args)
}

// Tool is an invocable operation body.
//
// Bodies must be read-only with respect to the repository under
// evaluation and must honor the deadline on the supplied context.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Definition returns the tool's static specification.
	Definition() Definition

	// Execute runs the tool with validated arguments. The context
	// carries the per-call deadline; bodies must observe it.
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is a successful tool output before truncation.
type Result struct {
	// Output is the serialized result fed back to the reasoning service.
	Output string

	// Summary is a short human-readable description of the result
	// ("Found 4 commits"), used in progress events.
	Summary string
}

// Outcome classifies the terminal status of one admission attempt.
type Outcome string

const (
	// OutcomeSuccess means the body ran and returned a result.
	OutcomeSuccess Outcome = "success"

	// OutcomeFailure means the body ran and failed or timed out.
	// Failed calls still consume their quota.
	OutcomeFailure Outcome = "failure"

	// OutcomeRejected means the gate refused admission. Rejections
	// never consume quota.
	OutcomeRejected Outcome = "rejected"
)

// RejectReason identifies which limit refused an admission.
type RejectReason string

const (
	// RejectGlobalCallLimit: the session-wide call budget is exhausted.
	RejectGlobalCallLimit RejectReason = "global_call_limit"

	// RejectPerOperationLimit: this tool's own quota is exhausted.
	RejectPerOperationLimit RejectReason = "per_operation_limit"

	// RejectTimeBudgetExceeded: the session wall-clock budget is spent.
	RejectTimeBudgetExceeded RejectReason = "time_budget_exceeded"

	// RejectInvalidArguments: the arguments failed schema validation.
	RejectInvalidArguments RejectReason = "invalid_arguments"

	// RejectUnknownOperation: no tool with the requested name exists.
	RejectUnknownOperation RejectReason = "unknown_operation"
)

// Global returns true for reasons that end the gathering phase.
//
// Per-operation quota and argument problems are local: the reasoning
// service may simply pick a different tool or fix its arguments.
func (r RejectReason) Global() bool {
	return r == RejectGlobalCallLimit || r == RejectTimeBudgetExceeded
}

// ExecutionRecord is one immutable entry in the session audit trail.
//
// Records are appended in strict invocation order and never edited.
// The ordered sequence doubles as the transcript fed back to the
// reasoning service.
type ExecutionRecord struct {
	// ID uniquely identifies this invocation.
	ID string `json:"id"`

	// ToolName is the requested operation.
	ToolName string `json:"tool_name"`

	// Args are the raw arguments as requested.
	Args map[string]any `json:"args"`

	// Preview is the human-readable command string.
	Preview string `json:"preview"`

	// StartedAt and CompletedAt bound the admission attempt.
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`

	// Outcome classifies the attempt.
	Outcome Outcome `json:"outcome"`

	// Output is the truncated result (success only).
	Output string `json:"output,omitempty"`

	// Truncated indicates Output was cut to the response byte limit.
	Truncated bool `json:"truncated,omitempty"`

	// Summary is the short result description (success only).
	Summary string `json:"summary,omitempty"`

	// Error is the failure message (failure only).
	Error string `json:"error,omitempty"`

	// RejectReason is the refusing limit (rejected only).
	RejectReason RejectReason `json:"reject_reason,omitempty"`
}

// Duration returns how long the attempt took.
func (r *ExecutionRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// Rejected reports whether the gate refused this invocation.
func (r *ExecutionRecord) Rejected() bool {
	return r.Outcome == OutcomeRejected
}

// TranscriptContent renders the record as the content string fed back
// to the reasoning service for this invocation.
func (r *ExecutionRecord) TranscriptContent() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return r.Output
	case OutcomeFailure:
		return fmt.Sprintf("Error: %s", r.Error)
	default:
		return fmt.Sprintf("Rejected: %s", r.RejectReason)
	}
}

// UsageSummary is a read-only snapshot of gate accounting.
type UsageSummary struct {
	// TotalCalls counts executed invocations (success + failure).
	TotalCalls int `json:"total_calls"`

	// PerTool counts executed invocations per tool name.
	PerTool map[string]int `json:"per_tool"`

	// Remaining is the per-tool quota still available.
	Remaining map[string]int `json:"remaining"`

	// GlobalRemaining is the session call budget still available.
	GlobalRemaining int `json:"global_remaining"`

	// Elapsed is the wall time since the session started.
	Elapsed time.Duration `json:"elapsed"`

	// TimeRemaining is the wall-clock budget left (never negative).
	TimeRemaining time.Duration `json:"time_remaining"`
}

// ValidationError reports a schema violation for one argument.
type ValidationError struct {
	// Parameter is the offending argument name.
	Parameter string

	// Message describes the violation.
	Message string

	// Actual is the offending value's type or content, when helpful.
	Actual string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Actual != "" {
		return fmt.Sprintf("parameter %q: %s (got %s)", e.Parameter, e.Message, e.Actual)
	}
	return fmt.Sprintf("parameter %q: %s", e.Parameter, e.Message)
}
