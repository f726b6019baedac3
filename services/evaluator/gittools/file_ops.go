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
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/AleutianAI/commitlens/services/evaluator/agent/tools"
)

func newReadFile(repo *Repository) tools.Tool {
	return &operation{
		def: tools.Definition{
			Name:        "read_file",
			Description: "Read contents of a file from the repository. Useful to understand context of changes.",
			Category:    tools.CategoryFile,
			CallQuota:   8,
			Params: map[string]tools.ParamDef{
				"file_path":   {Type: tools.ParamTypeString, Description: "Path to file", Required: true},
				"commit_hash": {Type: tools.ParamTypeString, Description: "Read at specific commit (optional, default current)"},
				"max_lines":   {Type: tools.ParamTypeInt, Description: "Max lines to read (default 200, max 500)", Default: 200},
			},
			Preview: func(args map[string]any) string {
				filePath := stringArg(args, "file_path", "")
				if hash := stringArg(args, "commit_hash", ""); hash != "" {
					return fmt.Sprintf("git show %s:%s", shortHash(hash), filePath)
				}
				return "cat " + filePath
			},
		},
		run: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			filePath := stringArg(args, "file_path", "")
			maxLines := minInt(intArg(args, "max_lines", 200), maxReadLines)
			if maxLines < 1 {
				maxLines = 1
			}

			commit, err := repo.ResolveCommit(stringArg(args, "commit_hash", ""))
			if err != nil {
				return nil, err
			}

			content, err := repo.FileAt(commit, filePath)
			if err != nil {
				return nil, err
			}

			lines := strings.Split(content, "\n")
			totalLines := len(lines)
			if totalLines > maxLines {
				content = strings.Join(lines[:maxLines], "\n")
				content += fmt.Sprintf("\n\n... [TRUNCATED: %d more lines]", totalLines-maxLines)
			}
			if len(content) > maxFileBytes {
				content = content[:maxFileBytes] + "\n\n... [TRUNCATED: content too large]"
			}

			return &tools.Result{
				Output:  content,
				Summary: fmt.Sprintf("%s (%d lines)", filePath, totalLines),
			}, nil
		},
	}
}

func newListDirectory(repo *Repository) tools.Tool {
	return &operation{
		def: tools.Definition{
			Name:        "list_directory",
			Description: "List files in a directory. Useful to explore repository structure.",
			Category:    tools.CategoryFile,
			CallQuota:   5,
			Params: map[string]tools.ParamDef{
				"directory_path": {Type: tools.ParamTypeString, Description: "Directory path (default '.')"},
				"recursive":      {Type: tools.ParamTypeBool, Description: "List recursively", Default: false},
				"max_depth":      {Type: tools.ParamTypeInt, Description: "Max recursion depth (default 1, max 3)", Default: 1},
			},
			Preview: func(args map[string]any) string {
				dir := stringArg(args, "directory_path", ".")
				if boolArg(args, "recursive", false) {
					return "ls -R " + dir
				}
				return "ls " + dir
			},
		},
		run: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			dir := strings.Trim(stringArg(args, "directory_path", "."), "/")
			recursive := boolArg(args, "recursive", false)
			maxDepth := minInt(intArg(args, "max_depth", 1), 3)
			if maxDepth < 1 {
				maxDepth = 1
			}
			if !recursive {
				maxDepth = 1
			}

			head, err := repo.Head()
			if err != nil {
				return nil, err
			}
			tree, err := head.Tree()
			if err != nil {
				return nil, fmt.Errorf("tree of HEAD: %w", err)
			}

			prefix := ""
			if dir != "" && dir != "." {
				subtree, treeErr := tree.Tree(dir)
				if treeErr != nil {
					return nil, fmt.Errorf("directory not found: %s", dir)
				}
				tree = subtree
				prefix = dir + "/"
			}

			// Entries past the depth limit collapse into their first
			// path segment, shown with a trailing slash.
			seen := make(map[string]bool)
			var entries []string
			err = tree.Files().ForEach(func(f *object.File) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}

				segments := strings.Split(f.Name, "/")
				var entry string
				if len(segments) > maxDepth {
					entry = prefix + strings.Join(segments[:maxDepth], "/") + "/"
				} else {
					entry = prefix + f.Name
				}

				if !seen[entry] {
					seen[entry] = true
					entries = append(entries, entry)
				}
				if len(entries) >= maxListEntries {
					return storer.ErrStop
				}
				return nil
			})
			if err != nil {
				return nil, err
			}

			sort.Strings(entries)
			return &tools.Result{
				Output:  strings.Join(entries, "\n"),
				Summary: fmt.Sprintf("%d entries", len(entries)),
			}, nil
		},
	}
}

// searchMatch is one hit from search_in_files.
type searchMatch struct {
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
	Match      string `json:"match"`
}

func newSearchInFiles(repo *Repository) tools.Tool {
	return &operation{
		def: tools.Definition{
			Name:        "search_in_files",
			Description: "Search for a pattern across repository files. Useful to find similar code or patterns.",
			Category:    tools.CategoryFile,
			CallQuota:   3,
			Params: map[string]tools.ParamDef{
				"pattern":      {Type: tools.ParamTypeString, Description: "Search pattern (regex)", Required: true},
				"file_pattern": {Type: tools.ParamTypeString, Description: "File glob (e.g., '*.go')"},
				"max_results":  {Type: tools.ParamTypeInt, Description: "Max results (default 10, max 30)", Default: 10},
			},
			Preview: func(args map[string]any) string {
				pattern := stringArg(args, "pattern", "")
				if glob := stringArg(args, "file_pattern", ""); glob != "" {
					return fmt.Sprintf("git grep -i '%s' -- '%s'", pattern, glob)
				}
				return fmt.Sprintf("git grep -i '%s'", pattern)
			},
		},
		run: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			re, err := regexp.Compile("(?i)" + stringArg(args, "pattern", ""))
			if err != nil {
				return nil, fmt.Errorf("invalid pattern: %w", err)
			}
			glob := stringArg(args, "file_pattern", "")
			limit := minInt(intArg(args, "max_results", 10), maxSearchResults)
			if limit < 1 {
				limit = 1
			}

			var matches []searchMatch
			err = forEachHeadFile(repo, func(f *object.File) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if glob != "" && !matchesGlob(glob, f.Name) {
					return nil
				}
				if bin, binErr := f.IsBinary(); binErr != nil || bin {
					return nil
				}

				content, readErr := f.Contents()
				if readErr != nil {
					return nil
				}
				for i, line := range strings.Split(content, "\n") {
					if re.MatchString(line) {
						matches = append(matches, searchMatch{
							FilePath:   f.Name,
							LineNumber: i + 1,
							Match:      clip(strings.TrimSpace(line), 200),
						})
						if len(matches) >= limit {
							return storer.ErrStop
						}
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}

			return marshalResult(matches, countSummary(len(matches), "match"))
		},
	}
}

// definitionPatterns produces regexes that match the definition of a
// named function or class across the common languages.
func definitionPatterns(name string) []string {
	quoted := regexp.QuoteMeta(name)
	return []string{
		`func\s+(\(\w+\s+\*?\w+\)\s+)?` + quoted + `\s*[\(\[]`,
		`def\s+` + quoted + `\s*\(`,
		`class\s+` + quoted + `\s*[:\({]`,
		`type\s+` + quoted + `\s+(struct|interface)`,
		`function\s+` + quoted + `\s*\(`,
		`const\s+` + quoted + `\s*=.*=>`,
		quoted + `\s*:\s*function`,
	}
}

// definitionHit is the find_function_definition payload.
type definitionHit struct {
	FilePath   string `json:"file_path"`
	LineNumber int    `json:"line_number"`
	Definition string `json:"definition_snippet"`
}

func newFindFunctionDefinition(repo *Repository) tools.Tool {
	return &operation{
		def: tools.Definition{
			Name:        "find_function_definition",
			Description: "Locate where a function or class is defined. Useful for understanding dependencies.",
			Category:    tools.CategoryCodeAnalysis,
			CallQuota:   5,
			Params: map[string]tools.ParamDef{
				"name":      {Type: tools.ParamTypeString, Description: "Function or class name", Required: true},
				"file_path": {Type: tools.ParamTypeString, Description: "Limit search to specific file (optional)"},
			},
			Preview: func(args map[string]any) string {
				name := stringArg(args, "name", "")
				if filePath := stringArg(args, "file_path", ""); filePath != "" {
					return fmt.Sprintf("grep -n 'def %s' %s", name, filePath)
				}
				return fmt.Sprintf("grep -rn 'def %s'", name)
			},
		},
		run: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			name := stringArg(args, "name", "")
			onlyFile := stringArg(args, "file_path", "")

			patterns := make([]*regexp.Regexp, 0, 7)
			for _, p := range definitionPatterns(name) {
				re, err := regexp.Compile(p)
				if err != nil {
					continue
				}
				patterns = append(patterns, re)
			}

			var hit *definitionHit
			err := forEachHeadFile(repo, func(f *object.File) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if onlyFile != "" && f.Name != onlyFile {
					return nil
				}
				if bin, binErr := f.IsBinary(); binErr != nil || bin {
					return nil
				}

				content, readErr := f.Contents()
				if readErr != nil {
					return nil
				}
				for i, line := range strings.Split(content, "\n") {
					for _, re := range patterns {
						if re.MatchString(line) {
							hit = &definitionHit{
								FilePath:   f.Name,
								LineNumber: i + 1,
								Definition: strings.TrimSpace(line),
							}
							return storer.ErrStop
						}
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}

			if hit == nil {
				return nil, fmt.Errorf("function or class %q not found", name)
			}
			return marshalResult(hit, fmt.Sprintf("%s:%d", hit.FilePath, hit.LineNumber))
		},
	}
}

func newGetRelatedCommits(repo *Repository, sessionCommit string) tools.Tool {
	return &operation{
		def: tools.Definition{
			Name:        "get_related_commits",
			Description: "Find other commits that modified the same files. Shows related work.",
			Category:    tools.CategoryCodeAnalysis,
			CallQuota:   2,
			Params: map[string]tools.ParamDef{
				"file_paths":      {Type: tools.ParamTypeStringArray, Description: "List of file paths", Required: true},
				"exclude_current": {Type: tools.ParamTypeBool, Description: "Exclude current commit", Default: true},
				"max_results":     {Type: tools.ParamTypeInt, Description: "Max results (default 5, max 10)", Default: 5},
			},
			Preview: func(args map[string]any) string {
				files := stringSliceArg(args, "file_paths")
				fileStr := strings.Join(files, ", ")
				if len(files) > 2 {
					fileStr = fmt.Sprintf("%s, %s, ...", files[0], files[1])
				}
				return fmt.Sprintf("git log -n %d -- %s", intArg(args, "max_results", 5), fileStr)
			},
		},
		run: func(ctx context.Context, args map[string]any) (*tools.Result, error) {
			files := stringSliceArg(args, "file_paths")
			if len(files) == 0 {
				return marshalResult([]logEntry{}, "No commits found")
			}
			if len(files) > 10 {
				files = files[:10]
			}

			exclude := boolArg(args, "exclude_current", true)
			limit := minInt(intArg(args, "max_results", 5), 10)
			if limit < 1 {
				limit = 1
			}

			wanted := make(map[string]bool, len(files))
			for _, f := range files {
				wanted[f] = true
			}

			opts := &git.LogOptions{
				PathFilter: func(p string) bool { return wanted[p] },
			}

			var entries []logEntry
			err := repo.forEachCommit(opts, func(c *object.Commit) error {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				if exclude && c.Hash.String() == sessionCommit {
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

			return marshalResult(entries, countSummary(len(entries), "related commit"))
		},
	}
}

// forEachHeadFile walks every file in the HEAD tree.
func forEachHeadFile(repo *Repository, walk func(*object.File) error) error {
	head, err := repo.Head()
	if err != nil {
		return err
	}
	tree, err := head.Tree()
	if err != nil {
		return fmt.Errorf("tree of HEAD: %w", err)
	}
	return tree.Files().ForEach(walk)
}

// matchesGlob matches a glob against the full path, then the base
// name, so '*.go' works without a directory prefix.
func matchesGlob(glob, name string) bool {
	if ok, _ := path.Match(glob, name); ok {
		return true
	}
	ok, _ := path.Match(glob, path.Base(name))
	return ok
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
