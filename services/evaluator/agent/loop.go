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
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/commitlens/services/evaluator/agent/events"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/llm"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/tools"
	"github.com/AleutianAI/commitlens/services/evaluator/schema"
)

const (
	sessionSystemPrompt = "You are a precise software engineering analyst. " +
		"You evaluate git commits for contribution quality."

	gatheringMaxTokens = 4096
	judgingMaxTokens   = 2048
	defaultTemperature = 0.3
)

// Session runs one commit evaluation from start to a terminal state.
//
// Description:
//
//	A session owns its gate, transcript, and state. Construct a fresh
//	session per commit; concurrent evaluations each get their own.
//
// Thread Safety: NOT thread-safe. Run must be called at most once.
type Session struct {
	id       string
	client   llm.Client
	registry *tools.Registry
	emitter  *events.Emitter
	budget   Budget
	retry    RetryConfig
	sm       *StateMachine
	logger   *slog.Logger

	state       State
	temperature float32
}

// SessionOption customizes a session.
type SessionOption func(*Session)

// WithBudget overrides the default session budget.
func WithBudget(budget Budget) SessionOption {
	return func(s *Session) {
		s.budget = budget
	}
}

// WithRetryConfig overrides the reasoning-call retry policy.
func WithRetryConfig(config RetryConfig) SessionOption {
	return func(s *Session) {
		s.retry = config
	}
}

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTemperature overrides the sampling temperature.
func WithTemperature(temperature float32) SessionOption {
	return func(s *Session) {
		s.temperature = temperature
	}
}

// NewSession builds an evaluation session.
//
// Inputs:
//
//	client   - The reasoning service client. Required.
//	registry - The tool registry for the gathering phase. Required.
//	emitter  - Optional event sink. May be nil.
//
// Outputs:
//
//	*Session - Ready to Run.
//	error    - Non-nil for a missing client/registry or invalid budget.
func NewSession(client llm.Client, registry *tools.Registry, emitter *events.Emitter, opts ...SessionOption) (*Session, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if registry == nil {
		return nil, ErrNilRegistry
	}

	s := &Session{
		id:          uuid.New().String(),
		client:      client,
		registry:    registry,
		emitter:     emitter,
		budget:      DefaultBudget(),
		retry:       DefaultRetryConfig(),
		sm:          DefaultStateMachine,
		logger:      slog.Default(),
		state:       StateIdle,
		temperature: defaultTemperature,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.budget.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// State returns the current session state.
func (s *Session) State() State {
	return s.state
}

// Run evaluates one commit.
//
// Description:
//
//	Runs the gathering phase (tool use bounded by the session budget),
//	then the judging phase (one corrective retry on malformed output,
//	then a context-free fallback). The whole run is held under a hard
//	deadline of MaxWallClock plus one PerCallTimeout; expiry degrades
//	the session rather than aborting it. The returned result always
//	carries the usage summary and full audit trail, whatever the
//	terminal state.
//
// Outputs:
//
//	*RunResult - Never nil. Evaluation is nil only when FinalState is
//	             aborted.
//	error      - Non-nil only for an aborted session.
func (s *Session) Run(ctx context.Context, commit *schema.CommitMetadata, diff string) (*RunResult, error) {
	start := time.Now()

	// One in-flight call may straddle the wall clock, so the hard
	// deadline allows for it.
	runCtx, cancel := context.WithTimeout(ctx, s.budget.MaxWallClock+s.budget.PerCallTimeout)
	defer cancel()

	gate, err := tools.NewGate(s.registry, s.emitter, s.budget.gateLimits(), tools.WithGateLogger(s.logger))
	if err != nil {
		return nil, err
	}
	if s.emitter != nil {
		s.emitter.SetSessionID(s.id)
	}

	s.logger.Info("evaluation session starting",
		"session_id", s.id,
		"commit", commit.ShortHash(),
		"model", s.client.Model())

	if err := s.transition(StateGathering); err != nil {
		return nil, err
	}

	iterations, gatherErr := s.gather(ctx, runCtx, gate, commit, diff)
	if gatherErr != nil {
		return s.abort(gate, start, iterations, gatherErr)
	}

	if err := s.transition(StateJudging); err != nil {
		return nil, err
	}

	eval, judgeErr := s.judge(ctx, runCtx, gate, commit, diff)
	if judgeErr != nil {
		// Only caller cancellation reaches here; service errors
		// degrade inside judge.
		return s.abort(gate, start, iterations, judgeErr)
	}

	final := StateCompleted
	if eval.Degraded {
		final = StateFellBack
	}
	if err := s.transition(final); err != nil {
		return nil, err
	}

	result := &RunResult{
		Evaluation: eval,
		FinalState: final,
		Usage:      gate.Summary(),
		History:    gate.History(),
		Iterations: iterations,
		Duration:   time.Since(start),
	}
	s.complete(result)
	return result, nil
}

// gather runs the tool-use phase. Returns the number of reasoning
// round-trips consumed and a non-nil error only when the caller
// cancelled or the reasoning service could not be reached at all.
// Expiry of the session deadline forces judgment instead.
func (s *Session) gather(ctx, runCtx context.Context, gate *tools.Gate, commit *schema.CommitMetadata, diff string) (int, error) {
	messages := []llm.Message{
		{Role: "user", Content: gatheringPrompt(commit, diff)},
	}
	defs := s.registry.Definitions()

	iterations := 0
	for iterations < s.budget.MaxIterations {
		iterations++
		if s.emitter != nil {
			s.emitter.SetIteration(iterations)
		}
		s.emitThinking(fmt.Sprintf("deciding next step (iteration %d/%d)", iterations, s.budget.MaxIterations))

		resp, err := s.completeWithRetry(runCtx, &llm.Request{
			SystemPrompt: sessionSystemPrompt,
			Messages:     messages,
			Tools:        defs,
			MaxTokens:    gatheringMaxTokens,
			Temperature:  s.temperature,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return iterations, ctxErr
			}
			if runCtx.Err() != nil {
				s.logger.Info("session deadline reached, forcing judgment",
					"session_id", s.id,
					"iterations", iterations)
				return iterations, nil
			}
			return iterations, fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
		}

		d := decide(resp)
		if d.kind == decisionFinal {
			s.logger.Info("gathering finished by model",
				"session_id", s.id,
				"iterations", iterations)
			return iterations, nil
		}

		args, argErr := decodeArguments(d.call.Arguments)
		messages = append(messages, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: []llm.ToolCall{d.call},
		})
		if argErr != nil {
			messages = append(messages, llm.Message{
				Role:       "tool",
				ToolCallID: d.call.ID,
				Content:    fmt.Sprintf("Error: tool arguments are not valid JSON: %v", argErr),
			})
			continue
		}

		record := gate.Admit(runCtx, d.call.Name, args)
		messages = append(messages, llm.Message{
			Role:       "tool",
			ToolCallID: d.call.ID,
			Content:    record.TranscriptContent(),
		})

		if record.Rejected() && record.RejectReason.Global() {
			s.logger.Info("session budget exhausted, forcing judgment",
				"session_id", s.id,
				"reject_reason", string(record.RejectReason))
			return iterations, nil
		}

		if err := ctx.Err(); err != nil {
			return iterations, err
		}
		if runCtx.Err() != nil {
			s.logger.Info("session deadline reached, forcing judgment",
				"session_id", s.id,
				"iterations", iterations)
			return iterations, nil
		}
	}

	s.logger.Info("iteration limit reached, forcing judgment",
		"session_id", s.id,
		"iterations", iterations)
	return iterations, nil
}

// judge runs the scoring phase: one strict attempt, one corrective
// retry, then the context-free fallback. The returned error is non-nil
// only for caller cancellation.
func (s *Session) judge(ctx, runCtx context.Context, gate *tools.Gate, commit *schema.CommitMetadata, diff string) (*schema.CommitEvaluation, error) {
	s.emitThinking("scoring commit with gathered context")

	messages := []llm.Message{
		{Role: "user", Content: judgingPrompt(commit, diff, gate.History())},
	}

	for attempt := 1; attempt <= 2; attempt++ {
		resp, err := s.completeWithRetry(runCtx, &llm.Request{
			SystemPrompt: sessionSystemPrompt,
			Messages:     messages,
			MaxTokens:    judgingMaxTokens,
			Temperature:  s.temperature,
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return s.fallback(ctx, runCtx, commit, diff, fmt.Sprintf("reasoning service error: %v", err))
		}

		eval, parseErr := parseEvaluation(resp.Content, commit)
		if parseErr == nil {
			return eval, nil
		}

		s.logger.Warn("judging response rejected",
			"session_id", s.id,
			"attempt", attempt,
			"error", parseErr)
		messages = append(messages,
			llm.Message{Role: "assistant", Content: resp.Content},
			llm.Message{Role: "user", Content: correctiveInstruction},
		)
	}

	return s.fallback(ctx, runCtx, commit, diff, "malformed evaluation after corrective retry")
}

// fallback produces the degraded, context-free evaluation. It never
// fails for service reasons: when the session deadline has passed or
// even the context-free call cannot produce a parseable judgment, the
// neutral evaluation stands in.
func (s *Session) fallback(ctx, runCtx context.Context, commit *schema.CommitMetadata, diff, reason string) (*schema.CommitEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.emitThinking("falling back to context-free evaluation")
	s.logger.Warn("degrading to context-free evaluation",
		"session_id", s.id,
		"reason", reason)

	if runCtx.Err() != nil {
		return schema.NeutralEvaluation(commit, reason), nil
	}

	resp, err := s.completeWithRetry(runCtx, &llm.Request{
		SystemPrompt: sessionSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: judgingPrompt(commit, diff, nil)},
		},
		MaxTokens:   judgingMaxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return schema.NeutralEvaluation(commit, reason), nil
	}

	eval, parseErr := parseEvaluationLenient(resp.Content, commit)
	if parseErr != nil {
		return schema.NeutralEvaluation(commit, reason), nil
	}

	eval.Degraded = true
	eval.DegradedReason = reason
	return eval, nil
}

// completeWithRetry calls the reasoning service under the session
// retry policy. Non-transient errors return immediately.
func (s *Session) completeWithRetry(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	var resp *llm.Response
	err := retry(ctx, s.retry, llm.IsTransient, func(ctx context.Context, attempt int) error {
		r, callErr := s.callReasoning(ctx, req)
		if callErr != nil {
			s.logger.Warn("reasoning call failed",
				"session_id", s.id,
				"attempt", attempt,
				"error", callErr)
			return callErr
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// callReasoning runs one reasoning call in its own goroutine so a
// stuck call cannot hold the session past its deadline. An abandoned
// call's response is discarded.
func (s *Session) callReasoning(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	type outcome struct {
		resp *llm.Response
		err  error
	}
	done := make(chan outcome, 1)

	go func() {
		resp, err := s.client.Complete(ctx, req)
		done <- outcome{resp: resp, err: err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// abort ends the session on an infrastructure failure. Usage and
// history are still surfaced for the audit trail.
func (s *Session) abort(gate *tools.Gate, start time.Time, iterations int, cause error) (*RunResult, error) {
	if err := s.transition(StateAborted); err != nil {
		s.logger.Error("abort transition failed", "session_id", s.id, "error", err)
	}

	result := &RunResult{
		FinalState: StateAborted,
		Usage:      gate.Summary(),
		History:    gate.History(),
		Iterations: iterations,
		Duration:   time.Since(start),
	}
	s.complete(result)
	return result, cause
}

// transition moves the session to a new state, emitting the change.
func (s *Session) transition(to State) error {
	from := s.state
	if err := s.sm.Transition(from, to); err != nil {
		return err
	}
	s.state = to

	s.logger.Debug("state transition",
		"session_id", s.id,
		"from", string(from),
		"to", string(to))
	s.emit(events.TypeStateTransition, &events.StateTransitionData{
		FromState: string(from),
		ToState:   string(to),
		Reason:    reasonFor(from, to),
	})
	return nil
}

// complete emits the terminal session event.
func (s *Session) complete(result *RunResult) {
	degraded := result.Evaluation != nil && result.Evaluation.Degraded
	s.emit(events.TypeAgentComplete, &events.SessionCompleteData{
		FinalState: string(result.FinalState),
		Degraded:   degraded,
		TotalCalls: result.Usage.TotalCalls,
		Duration:   result.Duration,
	})
	s.logger.Info("evaluation session finished",
		"session_id", s.id,
		"final_state", string(result.FinalState),
		"iterations", result.Iterations,
		"tool_calls", result.Usage.TotalCalls,
		"duration", result.Duration)
}

func (s *Session) emitThinking(message string) {
	s.emit(events.TypeAgentThinking, &events.ThinkingData{Message: message})
}

func (s *Session) emit(eventType events.Type, data any) {
	if s.emitter == nil {
		return
	}
	s.emitter.Emit(eventType, data)
}

// decodeArguments parses the raw tool-call argument JSON. An empty
// string means no arguments.
func decodeArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
