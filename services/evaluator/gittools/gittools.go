// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gittools implements the read-only repository tools the
// evaluation agent uses to gather context: commit history search,
// diffs, blame, file reads, and cross-file searches, all backed by
// go-git so no git binary is required.
package gittools

import (
	"context"

	"github.com/AleutianAI/commitlens/services/evaluator/agent/tools"
)

// Response size limits applied before results reach the model.
const (
	maxDiffBytes     = 3000
	maxFileBytes     = 5000
	maxLogEntries    = 20
	maxSearchResults = 30
	maxBlameLines    = 200
	maxListEntries   = 200
	maxReadLines     = 500
)

// operation adapts a closure to the tools.Tool interface.
type operation struct {
	def tools.Definition
	run func(ctx context.Context, args map[string]any) (*tools.Result, error)
}

func (o *operation) Name() string                 { return o.def.Name }
func (o *operation) Definition() tools.Definition { return o.def }

func (o *operation) Execute(ctx context.Context, args map[string]any) (*tools.Result, error) {
	return o.run(ctx, args)
}

// RegisterAll adds the full toolset to the registry in canonical order.
//
// Description:
//
//	Registers the five git tools, the three file tools, and the two
//	code-analysis tools. Registration order is what the reasoning
//	service sees, so it stays fixed across sessions.
//
// Inputs:
//
//	registry - Destination registry.
//	repo - Open repository all tools read from.
//	sessionCommit - Hash of the commit under evaluation; used by
//	  get_related_commits to exclude the commit being judged.
func RegisterAll(registry *tools.Registry, repo *Repository, sessionCommit string) {
	registry.Register(newGitLogSearch(repo))
	registry.Register(newGitShowCommit(repo))
	registry.Register(newGitBlameFile(repo))
	registry.Register(newGitFileHistory(repo))
	registry.Register(newGitDiffCommits(repo))
	registry.Register(newReadFile(repo))
	registry.Register(newListDirectory(repo))
	registry.Register(newSearchInFiles(repo))
	registry.Register(newFindFunctionDefinition(repo))
	registry.Register(newGetRelatedCommits(repo, sessionCommit))
}

// stringArg extracts a string argument, falling back when absent.
func stringArg(args map[string]any, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// intArg extracts an integer argument. JSON decoding produces float64,
// so both forms are accepted.
func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func boolArg(args map[string]any, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

func stringSliceArg(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
