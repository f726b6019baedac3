// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package agent drives the commit evaluation loop. A session
// alternates between reasoning-service decisions and gated tool
// executions until the model signals it has enough context, then asks
// for a scored judgment. Sessions degrade rather than fail: exhausted
// budgets force judging, and a judgment that cannot be obtained with
// context falls back to a context-free one.
package agent

import (
	"fmt"
	"time"

	"github.com/AleutianAI/commitlens/services/evaluator/agent/llm"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/tools"
	"github.com/AleutianAI/commitlens/services/evaluator/schema"
)

// State identifies a phase of the evaluation session.
type State string

const (
	// StateIdle is the initial state before Run is called.
	StateIdle State = "idle"

	// StateGathering is the tool-use phase.
	StateGathering State = "gathering"

	// StateJudging is the scoring phase.
	StateJudging State = "judging"

	// StateCompleted is the terminal state for a full-context
	// evaluation.
	StateCompleted State = "completed"

	// StateFellBack is the terminal state for a degraded evaluation.
	StateFellBack State = "fell_back"

	// StateAborted is the terminal state when the reasoning service
	// was unreachable.
	StateAborted State = "aborted"
)

// Terminal reports whether the state ends a session.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFellBack, StateAborted:
		return true
	}
	return false
}

// Budget bounds a single evaluation session.
//
// Description:
//
//	All limits must be positive. MaxTotalCalls and MaxWallClock are
//	enforced by the execution gate; MaxIterations bounds the number of
//	reasoning round-trips in the gathering phase.
type Budget struct {
	MaxTotalCalls    int
	MaxWallClock     time.Duration
	MaxIterations    int
	PerCallTimeout   time.Duration
	MaxResponseBytes int
}

// DefaultBudget returns the standard session budget.
func DefaultBudget() Budget {
	return Budget{
		MaxTotalCalls:    20,
		MaxWallClock:     45 * time.Second,
		MaxIterations:    8,
		PerCallTimeout:   10 * time.Second,
		MaxResponseBytes: 16 * 1024,
	}
}

// Validate checks that every limit is positive.
func (b Budget) Validate() error {
	if b.MaxTotalCalls <= 0 {
		return fmt.Errorf("%w: max total calls %d", ErrInvalidBudget, b.MaxTotalCalls)
	}
	if b.MaxWallClock <= 0 {
		return fmt.Errorf("%w: max wall clock %s", ErrInvalidBudget, b.MaxWallClock)
	}
	if b.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations %d", ErrInvalidBudget, b.MaxIterations)
	}
	if b.PerCallTimeout <= 0 {
		return fmt.Errorf("%w: per call timeout %s", ErrInvalidBudget, b.PerCallTimeout)
	}
	if b.MaxResponseBytes <= 0 {
		return fmt.Errorf("%w: max response bytes %d", ErrInvalidBudget, b.MaxResponseBytes)
	}
	return nil
}

// gateLimits converts the session budget to execution gate limits.
func (b Budget) gateLimits() tools.Limits {
	return tools.Limits{
		MaxTotalCalls:    b.MaxTotalCalls,
		MaxWallClock:     b.MaxWallClock,
		PerCallTimeout:   b.PerCallTimeout,
		MaxResponseBytes: b.MaxResponseBytes,
	}
}

// decisionKind classifies a reasoning-service response.
type decisionKind int

const (
	decisionInvoke decisionKind = iota
	decisionFinal
)

// decision is the session's reading of one model response. Tool calls
// take precedence over text; only the first call in a response is
// honored, execution is strictly sequential.
type decision struct {
	kind decisionKind
	call llm.ToolCall
	text string
}

func decide(resp *llm.Response) decision {
	if resp.HasToolCalls() {
		return decision{kind: decisionInvoke, call: resp.ToolCalls[0], text: resp.Content}
	}
	return decision{kind: decisionFinal, text: resp.Content}
}

// RunResult is the outcome of one evaluation session.
//
// Description:
//
//	Usage and History are populated for every terminal state,
//	including Aborted. Evaluation is nil only when the session
//	aborted.
type RunResult struct {
	Evaluation *schema.CommitEvaluation
	FinalState State
	Usage      tools.UsageSummary
	History    []tools.ExecutionRecord
	Iterations int
	Duration   time.Duration
}
