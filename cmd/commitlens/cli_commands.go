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
	"github.com/spf13/cobra"
)

var (
	rootCmd = &cobra.Command{
		Use:   "commitlens",
		Short: "Evaluate the engineering impact of git commits",
		Long: `CommitLens scores git commits on six engineering dimensions using
an LLM agent that gathers context through bounded read-only repository tools.
Results are persisted locally and can be aggregated into contributor profiles.`,
		SilenceUsage: true,
	}

	configPath string
	repoPath   string
	storePath  string
	logDir     string
	verbose    bool
	jsonOutput bool

	evaluateCmd = &cobra.Command{
		Use:   "evaluate [revision...]",
		Short: "Evaluate one or more commits",
		Long: `Evaluates each named revision (hash, branch, tag, or HEAD) with the
agentic loop and stores the result. With --recent N, evaluates the N most
recent commits on HEAD instead of named revisions.`,
		RunE: runEvaluate,
	}
	forceEval   bool
	recentCount int
	concurrency int
	metricsAddr string

	profilesCmd = &cobra.Command{
		Use:   "profiles",
		Short: "Aggregate stored evaluations into contributor profiles",
		Args:  cobra.NoArgs,
		RunE:  runProfiles,
	}

	showCmd = &cobra.Command{
		Use:   "show [revision]",
		Short: "Print the stored evaluation for a commit",
		Args:  cobra.ExactArgs(1),
		RunE:  runShow,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List all stored evaluations",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&repoPath, "repo", "r", ".", "Path to the git repository")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "Override the evaluation store path")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "Directory for JSON log files")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit results as JSON")

	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.Flags().BoolVar(&forceEval, "force", false, "Re-evaluate commits that already have stored results")
	evaluateCmd.Flags().IntVar(&recentCount, "recent", 0, "Evaluate the N most recent commits on HEAD")
	evaluateCmd.Flags().IntVar(&concurrency, "concurrency", 0, "Parallel sessions for multi-commit runs (default from config)")
	evaluateCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while evaluating")

	rootCmd.AddCommand(profilesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(listCmd)
}
