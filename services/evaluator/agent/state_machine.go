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

import "fmt"

// StateMachine validates session state transitions.
//
// Thread Safety: the transition table is immutable after construction;
// a machine may be shared across goroutines.
type StateMachine struct {
	transitions map[State]map[State]bool
}

// NewStateMachine builds the session transition table.
//
// Gathering may loop on itself (one reasoning round-trip per
// iteration), end in judging, or abort if the reasoning service is
// unreachable. Judging never aborts back to gathering, and a fallback
// always produces a usable result, so fell_back has no outgoing edge
// to aborted.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[State]map[State]bool),
	}

	sm.addTransition(StateIdle, StateGathering)
	sm.addTransition(StateGathering, StateGathering)
	sm.addTransition(StateGathering, StateJudging)
	sm.addTransition(StateGathering, StateAborted)
	sm.addTransition(StateJudging, StateCompleted)
	sm.addTransition(StateJudging, StateFellBack)
	sm.addTransition(StateJudging, StateAborted)

	return sm
}

func (sm *StateMachine) addTransition(from, to State) {
	if sm.transitions[from] == nil {
		sm.transitions[from] = make(map[State]bool)
	}
	sm.transitions[from][to] = true
}

// CanTransition reports whether from -> to is a legal transition.
func (sm *StateMachine) CanTransition(from, to State) bool {
	return sm.transitions[from][to]
}

// Transition validates a state change, returning ErrInvalidTransition
// for edges outside the table.
func (sm *StateMachine) Transition(from, to State) error {
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// TransitionReason maps transitions to human-readable descriptions
// for event payloads and logs.
var TransitionReason = map[State]map[State]string{
	StateIdle: {
		StateGathering: "session started",
	},
	StateGathering: {
		StateGathering: "tool result returned to model",
		StateJudging:   "context gathering finished",
		StateAborted:   "reasoning service unreachable",
	},
	StateJudging: {
		StateCompleted: "evaluation parsed",
		StateFellBack:  "degraded to context-free evaluation",
		StateAborted:   "reasoning service unreachable",
	},
}

// reasonFor returns the canonical description for a transition, or an
// empty string for edges outside the table.
func reasonFor(from, to State) string {
	return TransitionReason[from][to]
}

// DefaultStateMachine is the shared session transition table.
var DefaultStateMachine = NewStateMachine()
