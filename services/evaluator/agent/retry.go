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
	"math/rand"
	"time"
)

// RetryConfig bounds retries against the reasoning service.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the
	// first.
	MaxAttempts int

	// InitialBackoff is the delay before the second attempt.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the delay after each attempt.
	BackoffFactor float64

	// JitterFactor randomizes each delay by +/- this fraction.
	JitterFactor float64
}

// DefaultRetryConfig returns the standard retry policy for reasoning
// calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// retryableFunc is one attempt. attempt starts at 1.
type retryableFunc func(ctx context.Context, attempt int) error

// retry runs fn until it succeeds, returns a non-transient error, the
// attempt budget is spent, or the context is cancelled. Transience is
// judged by llm.IsTransient via the retryable predicate so tests can
// substitute their own.
func retry(ctx context.Context, config RetryConfig, retryable func(error) bool, fn retryableFunc) error {
	var lastErr error
	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == config.MaxAttempts {
			break
		}

		delay := jitteredBackoff(backoff, config.JitterFactor)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		backoff = time.Duration(float64(backoff) * config.BackoffFactor)
		if backoff > config.MaxBackoff {
			backoff = config.MaxBackoff
		}
	}

	return lastErr
}

// jitteredBackoff perturbs the delay by +/- jitterFactor.
func jitteredBackoff(backoff time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return backoff
	}
	jitter := (rand.Float64()*2 - 1) * jitterFactor
	delay := time.Duration(float64(backoff) * (1 + jitter))
	if delay < 0 {
		delay = 0
	}
	return delay
}
