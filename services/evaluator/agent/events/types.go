// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides the lifecycle event stream for evaluation sessions.
//
// The orchestration loop and the execution gate publish events through an
// Emitter; consumers (CLI progress lines, logging, metrics) subscribe with
// handlers. Publishing never blocks the session beyond a small fixed bound
// and a misbehaving handler never stalls or crashes the core.
package events

import "time"

// Type identifies the kind of event.
type Type string

const (
	// TypeToolStart fires before a tool body executes, after admission.
	TypeToolStart Type = "tool_start"

	// TypeToolSuccess fires when a tool body completes successfully.
	TypeToolSuccess Type = "tool_success"

	// TypeToolError fires when a tool body fails, times out, or the
	// invocation is rejected by the gate.
	TypeToolError Type = "tool_error"

	// TypeAgentThinking fires on each reasoning step of the loop.
	TypeAgentThinking Type = "agent_thinking"

	// TypeStateTransition fires on each loop state change.
	TypeStateTransition Type = "state_transition"

	// TypeAgentComplete fires once when the session reaches a terminal state.
	TypeAgentComplete Type = "agent_complete"
)

// Event is a single lifecycle event.
type Event struct {
	// ID uniquely identifies this event.
	ID string `json:"id"`

	// Type is the event kind.
	Type Type `json:"type"`

	// SessionID identifies the evaluation session.
	SessionID string `json:"session_id"`

	// Iteration is the reasoning iteration when the event fired.
	Iteration int `json:"iteration"`

	// Timestamp is when the event was created.
	Timestamp time.Time `json:"timestamp"`

	// Data carries the type-specific payload (one of the *Data structs).
	Data any `json:"data,omitempty"`
}

// ToolStartData accompanies TypeToolStart.
type ToolStartData struct {
	// ToolName is the operation being invoked.
	ToolName string `json:"tool_name"`

	// InvocationID identifies this invocation in the audit trail.
	InvocationID string `json:"invocation_id"`

	// Preview is the human-readable command string.
	Preview string `json:"preview"`

	// TotalCalls is the session call count before this invocation.
	TotalCalls int `json:"total_calls"`
}

// ToolResultData accompanies TypeToolSuccess and TypeToolError.
type ToolResultData struct {
	ToolName     string `json:"tool_name"`
	InvocationID string `json:"invocation_id"`

	// Outcome is the record outcome string (success, failure, rejected).
	Outcome string `json:"outcome"`

	// RejectReason is set for rejected invocations.
	RejectReason string `json:"reject_reason,omitempty"`

	// Error is the failure message for failed invocations.
	Error string `json:"error,omitempty"`

	// ResultPreview is a short summary of the output.
	ResultPreview string `json:"result_preview,omitempty"`

	// Duration is how long execution took (zero for rejections).
	Duration time.Duration `json:"duration"`

	// TotalCalls is the session call count after this invocation.
	TotalCalls int `json:"total_calls"`
}

// ThinkingData accompanies TypeAgentThinking.
type ThinkingData struct {
	// Message describes what the agent is doing.
	Message string `json:"message"`
}

// StateTransitionData accompanies TypeStateTransition.
type StateTransitionData struct {
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Reason    string `json:"reason,omitempty"`
}

// SessionCompleteData accompanies TypeAgentComplete.
type SessionCompleteData struct {
	// FinalState is the terminal loop state.
	FinalState string `json:"final_state"`

	// Degraded indicates the fallback judgment path was used.
	Degraded bool `json:"degraded"`

	// TotalCalls is the number of tool invocations admitted and executed.
	TotalCalls int `json:"total_calls"`

	// Duration is the full session wall time.
	Duration time.Duration `json:"duration"`
}
