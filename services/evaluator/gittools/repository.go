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
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/AleutianAI/commitlens/services/evaluator/schema"
)

var (
	// ErrCommitNotFound indicates a revision could not be resolved.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrFileNotFound indicates a path does not exist at the commit.
	ErrFileNotFound = errors.New("file not found")
)

// Repository wraps a go-git repository with the lookups the toolset
// needs. All access is read-only.
//
// Thread Safety: Repository is safe for concurrent readers; go-git's
// object storage is read-safe and the wrapper holds no mutable state.
type Repository struct {
	repo *git.Repository
}

// Open opens an existing repository on disk.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}
	return &Repository{repo: repo}, nil
}

// New wraps an already-open go-git repository. Used by tests with
// in-memory storage.
func New(repo *git.Repository) *Repository {
	return &Repository{repo: repo}
}

// Underlying exposes the wrapped go-git repository.
func (r *Repository) Underlying() *git.Repository {
	return r.repo
}

// ResolveCommit resolves a revision string to a commit object. An
// empty revision resolves to HEAD.
func (r *Repository) ResolveCommit(rev string) (*object.Commit, error) {
	if rev == "" {
		rev = "HEAD"
	}

	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, rev)
	}

	commit, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCommitNotFound, rev)
	}
	return commit, nil
}

// Head returns the commit HEAD points at.
func (r *Repository) Head() (*object.Commit, error) {
	return r.ResolveCommit("HEAD")
}

// FileAt returns the contents of a file at the given commit.
func (r *Repository) FileAt(commit *object.Commit, path string) (string, error) {
	file, err := commit.File(path)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", fmt.Errorf("%w: %s at %s", ErrFileNotFound, path, commit.Hash.String()[:8])
		}
		return "", fmt.Errorf("read %s: %w", path, err)
	}

	contents, err := file.Contents()
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return contents, nil
}

// PatchText renders the textual diff between a commit and its first
// parent. Root commits diff against the empty tree.
func (r *Repository) PatchText(commit *object.Commit) (string, error) {
	var parent *object.Commit
	if commit.NumParents() > 0 {
		p, err := commit.Parent(0)
		if err != nil {
			return "", fmt.Errorf("parent of %s: %w", commit.Hash.String()[:8], err)
		}
		parent = p
	}

	patch, err := patchBetween(parent, commit)
	if err != nil {
		return "", err
	}
	return patch, nil
}

// patchBetween renders the diff from one commit to another. A nil
// from commit diffs against the empty tree.
func patchBetween(from, to *object.Commit) (string, error) {
	toTree, err := to.Tree()
	if err != nil {
		return "", fmt.Errorf("tree of %s: %w", to.Hash.String()[:8], err)
	}

	var fromTree *object.Tree
	if from != nil {
		fromTree, err = from.Tree()
		if err != nil {
			return "", fmt.Errorf("tree of %s: %w", from.Hash.String()[:8], err)
		}
	}

	changes, err := object.DiffTree(fromTree, toTree)
	if err != nil {
		return "", fmt.Errorf("diff trees: %w", err)
	}

	patch, err := changes.Patch()
	if err != nil {
		return "", fmt.Errorf("render patch: %w", err)
	}
	return patch.String(), nil
}

// Describe builds evaluation metadata for a commit, including line
// stats derived from its diff.
//
// Outputs:
//
//	schema.CommitMetadata - Hash, author, message, and change stats.
//	error - ErrCommitNotFound or a diff failure.
func (r *Repository) Describe(rev string) (schema.CommitMetadata, error) {
	commit, err := r.ResolveCommit(rev)
	if err != nil {
		return schema.CommitMetadata{}, err
	}

	patch, err := r.PatchText(commit)
	if err != nil {
		return schema.CommitMetadata{}, err
	}

	stats, err := DiffStats(patch)
	if err != nil {
		return schema.CommitMetadata{}, err
	}

	files, err := r.changedFiles(commit)
	if err != nil {
		return schema.CommitMetadata{}, err
	}

	return schema.CommitMetadata{
		Hash:         commit.Hash.String(),
		Author:       commit.Author.Name,
		Email:        commit.Author.Email,
		Timestamp:    commit.Author.When,
		Message:      strings.TrimSpace(commit.Message),
		FilesChanged: files,
		Insertions:   stats.Insertions,
		Deletions:    stats.Deletions,
	}, nil
}

// changedFiles lists the paths a commit touched relative to its first
// parent.
func (r *Repository) changedFiles(commit *object.Commit) ([]string, error) {
	stats, err := commit.Stats()
	if err != nil {
		return nil, fmt.Errorf("stats of %s: %w", commit.Hash.String()[:8], err)
	}

	files := make([]string, 0, len(stats))
	for _, stat := range stats {
		files = append(files, stat.Name)
	}
	return files, nil
}

// RecentHashes returns the hashes of the n most recent commits from
// HEAD, newest first.
func (r *Repository) RecentHashes(n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	var hashes []string
	err := r.forEachCommit(nil, func(c *object.Commit) error {
		hashes = append(hashes, c.Hash.String())
		if len(hashes) >= n {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return hashes, nil
}

// forEachCommit walks history from HEAD in committer-time order.
// Returning storer.ErrStop from walk ends the walk cleanly.
func (r *Repository) forEachCommit(opts *git.LogOptions, walk func(*object.Commit) error) error {
	if opts == nil {
		opts = &git.LogOptions{}
	}
	if opts.Order == git.LogOrderDefault {
		opts.Order = git.LogOrderCommitterTime
	}

	iter, err := r.repo.Log(opts)
	if err != nil {
		return fmt.Errorf("walk history: %w", err)
	}
	defer iter.Close()

	return iter.ForEach(walk)
}
