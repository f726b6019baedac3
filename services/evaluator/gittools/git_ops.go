// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package gittools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/AleutianAI/commitlens/services/evaluator/agent/tools"
)

// logEntry is one commit in a history listing.
type logEntry struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Email   string `json:"email,omitempty"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

func newLogEntry(c *object.Commit) logEntry {
	return logEntry{
		Hash:    c.Hash.String(),
		Author:  c.Author.Name,
		Email:   c.Author.Email,
		Date:    c.Author.When.Format(time.RFC3339),
		Message: firstLine(c.Message),
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return strings.TrimSpace(s)
}

// parseDate accepts the date forms the model tends to produce.
func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %s", s)
}

func marshalResult(v any, summary string) (*tools.Result, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return &tools.Result{Output: string(out), Summary: summary}, nil
}

func countSummary(n int, noun string) string {
	switch n {
	case 0:
		return "No " + noun + "s found"
	case 1:
		return "Found 1 " + noun
	default:
		return fmt.Sprintf("Found %d %ss", n, noun)
	}
}

// newGitLogSearch searches commit history with author, date, message,
// and path filters.
func newGitLogSearch(repo *Repository) tools.Tool {
	return &operation{
		def: tools.Definition{
			Name:        "git_log_search",
			Description: "Search commit history with filters. Use to find related commits by author, date range, or message content.",
			Category:    tools.CategoryGit,
			CallQuota:   3,
			Params: map[string]tools.ParamDef{
				"author":      {Type: tools.ParamTypeString, Description: "Filter by author name"},
				"since":       {Type: tools.ParamTypeString, Description: "Date filter (e.g., '2024-01-01')"},
				"until":       {Type: tools.ParamTypeString, Description: "Date filter (e.g., '2024-12-31')"},
				"grep":        {Type: tools.ParamTypeString, Description: "Search in commit messages"},
				"path":        {Type: tools.ParamTypeString, Description: "Filter by file path"},
				"max_results": {Type: tools.ParamTypeInt, Description: "Max results (default 10, max 20)", Default: 10},
			},
			Preview: func(args map[string]any) string {
				cmd := "git log"
				if author := stringArg(args, "author", ""); author != "" {
					cmd += fmt.Sprintf(" --author='%s'", author)
				}
				if since := stringArg(args, "since", ""); since != "" {
					cmd += fmt.Sprintf(" --since='%s'", since)
				}
				if until := stringArg(args, "until", ""); until != "" {
					cmd += fmt.Sprintf(" --until='%s'", until)
				}
				if grep := stringArg(args, "grep", ""); grep != "" {
					cmd += fmt.Sprintf(" --grep='%s'", grep)
				}
				cmd += fmt.Sprintf(" -n %d", intArg(args, "max_results", 10))
				if path := stringArg(args, "path", ""); path != "" {
					cmd += " -- " + path
				}
				return cmd
			},
		},
		run: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			author := stringArg(args, "author", "")
			grep := stringArg(args, "grep", "")
			path := stringArg(args, "path", "")
			limit := minInt(intArg(args, "max_results", 10), maxLogEntries)
			if limit < 1 {
				limit = 1
			}

			opts := &git.LogOptions{}
			if since := stringArg(args, "since", ""); since != "" {
				t, err := parseDate(since)
				if err != nil {
					return nil, err
				}
				opts.Since = &t
			}
			if until := stringArg(args, "until", ""); until != "" {
				t, err := parseDate(until)
				if err != nil {
					return nil, err
				}
				opts.Until = &t
			}
			if path != "" {
				opts.PathFilter = func(p string) bool {
					return p == path || strings.HasPrefix(p, path+"/")
				}
			}

			var entries []logEntry
			err := repo.forEachCommit(opts, func(c *object.Commit) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if author != "" && !strings.Contains(strings.ToLower(c.Author.Name), strings.ToLower(author)) {
					return nil
				}
				if grep != "" && !strings.Contains(strings.ToLower(c.Message), strings.ToLower(grep)) {
					return nil
				}
				entries = append(entries, newLogEntry(c))
				if len(entries) >= limit {
					return storer.ErrStop
				}
				return nil
			})
			if err != nil {
				return nil, err
			}

			return marshalResult(entries, countSummary(len(entries), "commit"))
		},
	}
}

// commitDetail is the git_show_commit payload.
type commitDetail struct {
	Hash         string   `json:"hash"`
	Author       string   `json:"author"`
	Email        string   `json:"email"`
	Date         string   `json:"date"`
	Message      string   `json:"message"`
	Body         string   `json:"body,omitempty"`
	FilesChanged []string `json:"files_changed"`
	Diff         string   `json:"diff,omitempty"`
}

func newGitShowCommit(repo *Repository) tools.Tool {
	return &operation{
		def: tools.Definition{
			Name:        "git_show_commit",
			Description: "Get detailed information for a specific commit including metadata and optionally the diff.",
			Category:    tools.CategoryGit,
			CallQuota:   5,
			Params: map[string]tools.ParamDef{
				"commit_hash": {Type: tools.ParamTypeString, Description: "The commit hash to show", Required: true},
				"show_diff":   {Type: tools.ParamTypeBool, Description: "Include diff in output", Default: false},
			},
			Preview: func(args map[string]any) string {
				cmd := "git show " + shortHash(stringArg(args, "commit_hash", ""))
				if boolArg(args, "show_diff", false) {
					cmd += " --patch"
				}
				return cmd
			},
		},
		run: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			commit, err := repo.ResolveCommit(stringArg(args, "commit_hash", ""))
			if err != nil {
				return nil, err
			}

			message := firstLine(commit.Message)
			body := ""
			if i := strings.IndexByte(commit.Message, '\n'); i >= 0 {
				body = strings.TrimSpace(commit.Message[i+1:])
			}

			files, err := repo.changedFiles(commit)
			if err != nil {
				return nil, err
			}

			detail := commitDetail{
				Hash:         commit.Hash.String(),
				Author:       commit.Author.Name,
				Email:        commit.Author.Email,
				Date:         commit.Author.When.Format(time.RFC3339),
				Message:      message,
				Body:         body,
				FilesChanged: files,
			}

			if boolArg(args, "show_diff", false) {
				patch, err := repo.PatchText(commit)
				if err != nil {
					return nil, err
				}
				detail.Diff = truncateMiddle(patch, maxDiffBytes)
			}

			return marshalResult(detail, fmt.Sprintf("Commit %s: %d files changed", shortHash(detail.Hash), len(files)))
		},
	}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// blameLine is the authorship of one file line.
type blameLine struct {
	Line       int    `json:"line"`
	CommitHash string `json:"commit_hash"`
	Author     string `json:"author"`
	Date       string `json:"date"`
	Content    string `json:"content"`
}

func newGitBlameFile(repo *Repository) tools.Tool {
	return &operation{
		def: tools.Definition{
			Name:        "git_blame_file",
			Description: "See line-by-line authorship for a file. Useful to understand who wrote specific code sections.",
			Category:    tools.CategoryGit,
			CallQuota:   3,
			Params: map[string]tools.ParamDef{
				"file_path":   {Type: tools.ParamTypeString, Description: "Path to file", Required: true},
				"commit_hash": {Type: tools.ParamTypeString, Description: "Commit to blame (optional, default HEAD)"},
				"start_line":  {Type: tools.ParamTypeInt, Description: "Start line number (optional)"},
				"end_line":    {Type: tools.ParamTypeInt, Description: "End line number (optional)"},
			},
			Preview: func(args map[string]any) string {
				cmd := "git blame " + stringArg(args, "file_path", "")
				start := intArg(args, "start_line", 0)
				end := intArg(args, "end_line", 0)
				if start > 0 && end > 0 {
					cmd += fmt.Sprintf(" -L %d,%d", start, end)
				}
				return cmd
			},
		},
		run: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			filePath := stringArg(args, "file_path", "")
			commit, err := repo.ResolveCommit(stringArg(args, "commit_hash", ""))
			if err != nil {
				return nil, err
			}

			blame, err := git.Blame(commit, filePath)
			if err != nil {
				return nil, fmt.Errorf("blame %s: %w", filePath, err)
			}

			start := intArg(args, "start_line", 1)
			end := intArg(args, "end_line", len(blame.Lines))
			if start < 1 {
				start = 1
			}
			if end > len(blame.Lines) {
				end = len(blame.Lines)
			}

			var lines []blameLine
			for i := start; i <= end && len(lines) < maxBlameLines; i++ {
				bl := blame.Lines[i-1]
				lines = append(lines, blameLine{
					Line:       i,
					CommitHash: bl.Hash.String(),
					Author:     bl.AuthorName,
					Date:       bl.Date.Format(time.RFC3339),
					Content:    bl.Text,
				})
			}

			return marshalResult(lines, countSummary(len(lines), "blamed line"))
		},
	}
}

func newGitFileHistory(repo *Repository) tools.Tool {
	return &operation{
		def: tools.Definition{
			Name:        "git_file_history",
			Description: "Get commit history for a specific file. Shows how the file evolved over time.",
			Category:    tools.CategoryGit,
			CallQuota:   3,
			Params: map[string]tools.ParamDef{
				"file_path":   {Type: tools.ParamTypeString, Description: "Path to file", Required: true},
				"max_results": {Type: tools.ParamTypeInt, Description: "Max commits (default 10, max 20)", Default: 10},
			},
			Preview: func(args map[string]any) string {
				return fmt.Sprintf("git log -n %d -- %s",
					intArg(args, "max_results", 10),
					stringArg(args, "file_path", ""))
			},
		},
		run: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			filePath := stringArg(args, "file_path", "")
			limit := minInt(intArg(args, "max_results", 10), maxLogEntries)
			if limit < 1 {
				limit = 1
			}

			opts := &git.LogOptions{
				PathFilter: func(p string) bool { return p == filePath },
			}

			var entries []logEntry
			err := repo.forEachCommit(opts, func(c *object.Commit) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				entries = append(entries, newLogEntry(c))
				if len(entries) >= limit {
					return storer.ErrStop
				}
				return nil
			})
			if err != nil {
				return nil, err
			}

			return marshalResult(entries, countSummary(len(entries), "commit"))
		},
	}
}

func newGitDiffCommits(repo *Repository) tools.Tool {
	return &operation{
		def: tools.Definition{
			Name:        "git_diff_commits",
			Description: "Compare two commits to see what changed between them.",
			Category:    tools.CategoryGit,
			CallQuota:   2,
			Params: map[string]tools.ParamDef{
				"commit_a":  {Type: tools.ParamTypeString, Description: "First commit hash", Required: true},
				"commit_b":  {Type: tools.ParamTypeString, Description: "Second commit hash", Required: true},
				"file_path": {Type: tools.ParamTypeString, Description: "Limit to specific file (optional)"},
			},
			Preview: func(args map[string]any) string {
				cmd := fmt.Sprintf("git diff %s %s",
					shortHash(stringArg(args, "commit_a", "")),
					shortHash(stringArg(args, "commit_b", "")))
				if path := stringArg(args, "file_path", ""); path != "" {
					cmd += " -- " + path
				}
				return cmd
			},
		},
		run: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			from, err := repo.ResolveCommit(stringArg(args, "commit_a", ""))
			if err != nil {
				return nil, err
			}
			to, err := repo.ResolveCommit(stringArg(args, "commit_b", ""))
			if err != nil {
				return nil, err
			}

			patch, err := diffCommits(from, to, stringArg(args, "file_path", ""))
			if err != nil {
				return nil, err
			}

			out := truncateMiddle(patch, maxDiffBytes)
			summary := "No changes"
			if patch != "" {
				stats, statErr := DiffStats(patch)
				if statErr == nil {
					summary = fmt.Sprintf("%d files changed, +%d -%d", stats.Files, stats.Insertions, stats.Deletions)
				} else {
					summary = "Diff computed"
				}
			}
			return &tools.Result{Output: out, Summary: summary}, nil
		},
	}
}

// diffCommits renders the diff between two commits, optionally limited
// to a single path.
func diffCommits(from, to *object.Commit, path string) (string, error) {
	fromTree, err := from.Tree()
	if err != nil {
		return "", fmt.Errorf("tree of %s: %w", shortHash(from.Hash.String()), err)
	}
	toTree, err := to.Tree()
	if err != nil {
		return "", fmt.Errorf("tree of %s: %w", shortHash(to.Hash.String()), err)
	}

	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return "", fmt.Errorf("diff trees: %w", err)
	}

	if path != "" {
		filtered := make(object.Changes, 0, len(changes))
		for _, change := range changes {
			if change.From.Name == path || change.To.Name == path {
				filtered = append(filtered, change)
			}
		}
		changes = filtered
	}

	patch, err := changes.Patch()
	if err != nil {
		return "", fmt.Errorf("render patch: %w", err)
	}
	return patch.String(), nil
}
