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
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
)

// fixture is an in-memory repository with a small known history.
type fixture struct {
	repo    *Repository
	hashes  []string // commit hashes in creation order
	authors []string
}

// fixtureCommit describes one commit to create.
type fixtureCommit struct {
	author  string
	email   string
	message string
	when    time.Time
	files   map[string]string
}

func buildFixture(t *testing.T, commits []fixtureCommit) *fixture {
	t.Helper()

	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}

	fx := &fixture{repo: New(repo)}
	for _, c := range commits {
		for name, content := range c.files {
			if err := util.WriteFile(fs, name, []byte(content), 0644); err != nil {
				t.Fatalf("write %s: %v", name, err)
			}
			if _, err := wt.Add(name); err != nil {
				t.Fatalf("add %s: %v", name, err)
			}
		}

		hash, err := wt.Commit(c.message, &git.CommitOptions{
			Author: &object.Signature{
				Name:  c.author,
				Email: c.email,
				When:  c.when,
			},
		})
		if err != nil {
			t.Fatalf("commit %q: %v", c.message, err)
		}
		fx.hashes = append(fx.hashes, hash.String())
		fx.authors = append(fx.authors, c.author)
	}

	return fx
}

// defaultFixture builds three commits by two authors across a small
// tree with a subdirectory.
func defaultFixture(t *testing.T) *fixture {
	t.Helper()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return buildFixture(t, []fixtureCommit{
		{
			author:  "Alice Chen",
			email:   "alice@example.com",
			message: "Add parser skeleton",
			when:    base,
			files: map[string]string{
				"parser.go": "package parser\n\nfunc Parse(input string) error {\n\treturn nil\n}\n",
				"README.md": "# parser\n\nA toy parser.\n",
			},
		},
		{
			author:  "Bob Rivera",
			email:   "bob@example.com",
			message: "Add lexer under internal",
			when:    base.Add(24 * time.Hour),
			files: map[string]string{
				"internal/lexer.go": "package lexer\n\nfunc Tokenize(src string) []string {\n\treturn nil\n}\n",
			},
		},
		{
			author:  "Alice Chen",
			email:   "alice@example.com",
			message: "Fix parser error handling\n\nReturn a real error for empty input.",
			when:    base.Add(48 * time.Hour),
			files: map[string]string{
				"parser.go": "package parser\n\nimport \"errors\"\n\nfunc Parse(input string) error {\n\tif input == \"\" {\n\t\treturn errors.New(\"empty input\")\n\t}\n\treturn nil\n}\n",
			},
		},
	})
}
