// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists commit evaluations in an embedded BadgerDB.
//
// Evaluations are keyed by full commit hash, so re-evaluating a commit
// overwrites the previous judgment. The store is the source for
// contributor profile aggregation and for skipping commits that were
// already evaluated.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/commitlens/services/evaluator/agent/tools"
	"github.com/AleutianAI/commitlens/services/evaluator/schema"
)

// ErrNotFound indicates no evaluation exists for the commit.
var ErrNotFound = errors.New("evaluation not found")

// Key prefixes for the two record kinds.
const (
	evalPrefix  = "eval:"
	usagePrefix = "usage:"
)

// Config holds storage configuration.
type Config struct {
	// Path is the directory for BadgerDB files. Required unless
	// InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output. If nil,
	// BadgerDB logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns the production storage configuration.
func DefaultConfig(path string) Config {
	return Config{
		Path:       path,
		SyncWrites: true,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a BadgerDB-backed evaluation store.
//
// Thread Safety: safe for concurrent use.
type Store struct {
	db *badger.DB
}

// Open creates the store, creating the database directory if needed.
//
// Outputs:
//
//	*Store - The opened store. Caller must Close it.
//	error  - Non-nil for a missing path or an unopenable database.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open evaluation store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func evalKey(commitHash string) []byte {
	return []byte(evalPrefix + commitHash)
}

// Put stores one evaluation, replacing any previous one for the same
// commit.
func (s *Store) Put(ctx context.Context, eval *schema.CommitEvaluation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if eval == nil || eval.CommitHash == "" {
		return errors.New("evaluation must carry a commit hash")
	}
	if err := eval.Validate(); err != nil {
		return fmt.Errorf("refusing to store invalid evaluation: %w", err)
	}

	value, err := json.Marshal(eval)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(evalKey(eval.CommitHash), value)
	})
}

// Get returns the evaluation for a commit, or ErrNotFound.
func (s *Store) Get(ctx context.Context, commitHash string) (*schema.CommitEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var eval schema.CommitEvaluation
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(evalKey(commitHash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrNotFound, commitHash)
			}
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &eval)
		})
	})
	if err != nil {
		return nil, err
	}
	return &eval, nil
}

// Has reports whether the commit already has a stored evaluation.
func (s *Store) Has(ctx context.Context, commitHash string) (bool, error) {
	_, err := s.Get(ctx, commitHash)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Delete removes a stored evaluation and its usage summary. Deleting a
// missing commit is not an error.
func (s *Store) Delete(ctx context.Context, commitHash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(evalKey(commitHash)); err != nil {
			return err
		}
		return txn.Delete(usageKey(commitHash))
	})
}

func usageKey(commitHash string) []byte {
	return []byte(usagePrefix + commitHash)
}

// PutUsage stores the tool usage summary from a commit's session,
// keeping an audit record alongside the evaluation itself.
func (s *Store) PutUsage(ctx context.Context, commitHash string, usage *tools.UsageSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if commitHash == "" {
		return errors.New("usage summary must carry a commit hash")
	}

	value, err := json.Marshal(usage)
	if err != nil {
		return fmt.Errorf("marshal usage summary: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(usageKey(commitHash), value)
	})
}

// GetUsage returns the usage summary for a commit, or ErrNotFound.
func (s *Store) GetUsage(ctx context.Context, commitHash string) (*tools.UsageSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var usage tools.UsageSummary
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usageKey(commitHash))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: usage for %s", ErrNotFound, commitHash)
			}
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &usage)
		})
	})
	if err != nil {
		return nil, err
	}
	return &usage, nil
}

// List returns all stored evaluations in key order.
func (s *Store) List(ctx context.Context) ([]*schema.CommitEvaluation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var evals []*schema.CommitEvaluation
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(evalPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var eval schema.CommitEvaluation
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &eval)
			})
			if err != nil {
				return fmt.Errorf("decode evaluation %s: %w", it.Item().Key(), err)
			}
			evals = append(evals, &eval)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return evals, nil
}

// ListByAuthor returns stored evaluations for one author.
func (s *Store) ListByAuthor(ctx context.Context, author string) ([]*schema.CommitEvaluation, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var evals []*schema.CommitEvaluation
	for _, eval := range all {
		if eval.Author == author {
			evals = append(evals, eval)
		}
	}
	return evals, nil
}

// Count returns the number of stored evaluations.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(evalPrefix)
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
