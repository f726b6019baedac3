// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package evaluator wires repositories, sessions, and storage into the
// commit evaluation service. Each commit gets its own session, tool
// registry, and gate; range evaluations run sessions concurrently up
// to a configured limit.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/commitlens/services/evaluator/agent"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/events"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/llm"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/tools"
	"github.com/AleutianAI/commitlens/services/evaluator/gittools"
	"github.com/AleutianAI/commitlens/services/evaluator/schema"
	"github.com/AleutianAI/commitlens/services/evaluator/store"
)

// ErrAlreadyEvaluated indicates the commit has a stored evaluation and
// force was not set.
var ErrAlreadyEvaluated = errors.New("commit already evaluated")

// Options configures an Evaluator.
type Options struct {
	// Budget bounds each session. Zero value means agent defaults.
	Budget agent.Budget

	// Temperature is the sampling temperature for reasoning calls.
	Temperature float32

	// Concurrency caps parallel sessions in EvaluateRange. Minimum 1.
	Concurrency int

	// Force re-evaluates commits that already have stored results.
	Force bool

	// Logger is the service logger. Defaults to slog.Default.
	Logger *slog.Logger

	// EventHandler, when non-nil, receives every session event.
	EventHandler events.Handler
}

// Evaluator runs commit evaluations against one repository.
//
// Thread Safety: safe for concurrent use; each evaluation builds its
// own session state.
type Evaluator struct {
	repo   *gittools.Repository
	client llm.Client
	store  *store.Store
	opts   Options
	logger *slog.Logger
}

// New builds an evaluator.
//
// Inputs:
//
//	repo   - The repository under evaluation. Required.
//	client - The reasoning service client. Required.
//	st     - Evaluation storage. May be nil; results are then only
//	         returned, not persisted.
func New(repo *gittools.Repository, client llm.Client, st *store.Store, opts Options) (*Evaluator, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	if client == nil {
		return nil, agent.ErrNilClient
	}

	if opts.Budget == (agent.Budget{}) {
		opts.Budget = agent.DefaultBudget()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.3
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Evaluator{
		repo:   repo,
		client: client,
		store:  st,
		opts:   opts,
		logger: opts.Logger,
	}, nil
}

// EvaluateCommit evaluates a single revision.
//
// Description:
//
//	Resolves the revision, builds a session with a fresh tool registry
//	scoped to the commit, runs it, and persists the result when a
//	store is configured. With Force unset, a commit that already has a
//	stored evaluation returns ErrAlreadyEvaluated.
func (e *Evaluator) EvaluateCommit(ctx context.Context, rev string) (*agent.RunResult, error) {
	commit, err := e.repo.ResolveCommit(rev)
	if err != nil {
		return nil, err
	}
	hash := commit.Hash.String()

	if e.store != nil && !e.opts.Force {
		has, err := e.store.Has(ctx, hash)
		if err != nil {
			return nil, fmt.Errorf("check existing evaluation: %w", err)
		}
		if has {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyEvaluated, hash[:12])
		}
	}

	meta, err := e.repo.Describe(hash)
	if err != nil {
		return nil, err
	}
	diff, err := e.repo.PatchText(commit)
	if err != nil {
		return nil, fmt.Errorf("diff for %s: %w", hash[:12], err)
	}

	registry := tools.NewRegistry()
	gittools.RegisterAll(registry, e.repo, hash)

	var emitter *events.Emitter
	if e.opts.EventHandler != nil {
		emitter = events.NewEmitter()
		emitter.Subscribe(e.opts.EventHandler)
	}

	session, err := agent.NewSession(e.client, registry, emitter,
		agent.WithBudget(e.opts.Budget),
		agent.WithTemperature(e.opts.Temperature),
		agent.WithSessionLogger(e.logger))
	if err != nil {
		return nil, err
	}

	result, err := session.Run(ctx, &meta, diff)
	if err != nil {
		return result, err
	}

	if e.store != nil && result.Evaluation != nil {
		if err := e.store.Put(ctx, result.Evaluation); err != nil {
			return result, fmt.Errorf("persist evaluation %s: %w", hash[:12], err)
		}
		if err := e.store.PutUsage(ctx, hash, &result.Usage); err != nil {
			return result, fmt.Errorf("persist usage summary %s: %w", hash[:12], err)
		}
	}
	return result, nil
}

// RangeResult pairs one revision with its outcome.
type RangeResult struct {
	Revision string
	Result   *agent.RunResult
	Err      error
}

// EvaluateRange evaluates revisions concurrently.
//
// Description:
//
//	Runs up to Concurrency sessions in parallel. Sessions are
//	independent, so per-commit failures (including already-evaluated
//	skips) are reported in the result slice rather than cancelling the
//	batch. Results are returned in input order.
func (e *Evaluator) EvaluateRange(ctx context.Context, revs []string) ([]RangeResult, error) {
	results := make([]RangeResult, len(revs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	var mu sync.Mutex
	for i, rev := range revs {
		g.Go(func() error {
			result, err := e.EvaluateCommit(ctx, rev)
			mu.Lock()
			results[i] = RangeResult{Revision: rev, Result: result, Err: err}
			mu.Unlock()

			// Only caller cancellation stops the batch.
			if err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// EvaluateRecent evaluates the n most recent commits from HEAD.
func (e *Evaluator) EvaluateRecent(ctx context.Context, n int) ([]RangeResult, error) {
	hashes, err := e.repo.RecentHashes(n)
	if err != nil {
		return nil, err
	}
	return e.EvaluateRange(ctx, hashes)
}

// Profiles aggregates stored evaluations into contributor profiles.
func (e *Evaluator) Profiles(ctx context.Context) ([]schema.ContributorProfile, error) {
	if e.store == nil {
		return nil, errors.New("profiles require a store")
	}
	evals, err := e.store.List(ctx)
	if err != nil {
		return nil, err
	}
	return schema.BuildProfiles(evals, nowFunc()), nil
}

// nowFunc is replaceable in tests.
var nowFunc = time.Now
