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
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/commitlens/services/evaluator"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/events"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/llm"
	"github.com/AleutianAI/commitlens/services/evaluator/gittools"
	"github.com/AleutianAI/commitlens/services/evaluator/store"
)

func runEvaluate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, err := gittools.Open(repoPath)
	if err != nil {
		return fmt.Errorf("open repository %s: %w", repoPath, err)
	}

	client, err := llm.NewOpenAIClient(
		llm.WithModel(cfg.LLM.Model),
		llm.WithRateLimit(cfg.LLM.RequestsPerSecond),
	)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	handler, stopMetrics, err := buildEventHandler()
	if err != nil {
		return err
	}
	if stopMetrics != nil {
		defer stopMetrics()
	}

	workers := cfg.Concurrency
	if concurrency > 0 {
		workers = concurrency
	}

	ev, err := evaluator.New(repo, client, st, evaluator.Options{
		Budget:       cfg.Budget(),
		Temperature:  cfg.LLM.Temperature,
		Concurrency:  workers,
		Force:        forceEval,
		Logger:       logger.Slog(),
		EventHandler: handler,
	})
	if err != nil {
		return err
	}

	switch {
	case recentCount > 0:
		results, err := ev.EvaluateRecent(ctx, recentCount)
		if err != nil {
			return err
		}
		return renderRangeResults(cmd.OutOrStdout(), results)

	case len(args) > 1:
		results, err := ev.EvaluateRange(ctx, args)
		if err != nil {
			return err
		}
		return renderRangeResults(cmd.OutOrStdout(), results)

	default:
		rev := "HEAD"
		if len(args) == 1 {
			rev = args[0]
		}
		result, err := ev.EvaluateCommit(ctx, rev)
		if errors.Is(err, evaluator.ErrAlreadyEvaluated) {
			fmt.Fprintf(cmd.OutOrStdout(), "%v (use --force to re-evaluate)\n", err)
			return nil
		}
		if err != nil {
			return err
		}
		return renderRunResult(cmd.OutOrStdout(), result)
	}
}

// openStore opens the configured evaluation store, creating the
// directory on first use.
func openStore() (*store.Store, error) {
	storeCfg := store.DefaultConfig(cfg.Store.Path)
	storeCfg.SyncWrites = cfg.Store.SyncWrites
	if verbose {
		storeCfg.Logger = logger.Slog()
	}

	st, err := store.Open(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}
	return st, nil
}

// buildEventHandler composes the progress printer with the optional
// Prometheus collector. The returned stop function shuts down the
// metrics endpoint if one was started.
func buildEventHandler() (events.Handler, func(), error) {
	var handlers []events.Handler

	if progress := newProgressPrinter(os.Stderr); progress != nil {
		handlers = append(handlers, progress.Handle)
	}

	var stop func()
	if metricsAddr != "" {
		registry := prometheus.NewRegistry()
		collector, err := events.NewPrometheusCollector(registry)
		if err != nil {
			return nil, nil, fmt.Errorf("register metrics: %w", err)
		}
		handlers = append(handlers, collector.Handler())

		server := &http.Server{
			Addr:    metricsAddr,
			Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", metricsAddr, "error", err)
			}
		}()
		stop = func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}
	}

	if len(handlers) == 0 {
		return nil, stop, nil
	}
	return func(event *events.Event) {
		for _, h := range handlers {
			h(event)
		}
	}, stop, nil
}
