// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/commitlens/services/evaluator/gittools"
	"github.com/AleutianAI/commitlens/services/evaluator/schema"
	"github.com/AleutianAI/commitlens/services/evaluator/store"
)

func runProfiles(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	evals, err := st.List(context.Background())
	if err != nil {
		return err
	}
	profiles := schema.BuildProfiles(evals, time.Now())

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), profiles)
	}
	renderProfiles(cmd.OutOrStdout(), profiles)
	return nil
}

func runShow(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	hash, err := resolveHash(args[0])
	if err != nil {
		return err
	}

	eval, err := st.Get(context.Background(), hash)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("no stored evaluation for %s (run 'commitlens evaluate %s' first)", args[0], args[0])
	}
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), eval)
	}
	renderEvaluation(cmd.OutOrStdout(), eval)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	evals, err := st.List(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(cmd.OutOrStdout(), evals)
	}
	renderEvaluationList(cmd.OutOrStdout(), evals)
	return nil
}

// resolveHash turns a revision into a full commit hash. A 40-character
// argument is accepted as-is so stored evaluations can be inspected
// without the repository present.
func resolveHash(rev string) (string, error) {
	if len(rev) == 40 {
		return rev, nil
	}
	repo, err := gittools.Open(repoPath)
	if err != nil {
		return "", fmt.Errorf("open repository %s: %w", repoPath, err)
	}
	commit, err := repo.ResolveCommit(rev)
	if err != nil {
		return "", err
	}
	return commit.Hash.String(), nil
}
