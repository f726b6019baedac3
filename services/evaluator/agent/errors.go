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

import "errors"

var (
	// ErrInvalidBudget indicates a session budget with a zero or
	// negative limit.
	ErrInvalidBudget = errors.New("invalid session budget")

	// ErrInvalidTransition indicates a disallowed state change.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNilClient indicates the session was built without a
	// reasoning client.
	ErrNilClient = errors.New("nil llm client")

	// ErrNilRegistry indicates the session was built without a tool
	// registry.
	ErrNilRegistry = errors.New("nil tool registry")

	// ErrReasoningUnavailable indicates the reasoning service could
	// not be reached within the retry budget. This is the only error
	// that aborts a session.
	ErrReasoningUnavailable = errors.New("reasoning service unavailable")

	// ErrMalformedEvaluation indicates the judging response could not
	// be parsed into a valid evaluation.
	ErrMalformedEvaluation = errors.New("malformed evaluation")
)
