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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/AleutianAI/commitlens/services/evaluator"
	"github.com/AleutianAI/commitlens/services/evaluator/agent"
	"github.com/AleutianAI/commitlens/services/evaluator/agent/events"
	"github.com/AleutianAI/commitlens/services/evaluator/schema"
)

func outputJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func renderRunResult(w io.Writer, result *agent.RunResult) error {
	if jsonOutput {
		return outputJSON(w, result.Evaluation)
	}
	if result.Evaluation == nil {
		fmt.Fprintf(w, "Session ended in state %s with no evaluation\n", result.FinalState)
		return nil
	}
	renderEvaluation(w, result.Evaluation)
	fmt.Fprintf(w, "\nSession: %s, %d iterations, %d tool calls, %s\n",
		result.FinalState, result.Iterations, result.Usage.TotalCalls,
		result.Duration.Round(time.Millisecond))
	return nil
}

func renderRangeResults(w io.Writer, results []evaluator.RangeResult) error {
	if jsonOutput {
		return outputJSON(w, results)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMIT\tAUTHOR\tAVG\tIMPACT\tSTATE")
	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(tw, "%s\t-\t-\t-\terror: %v\n", shortRev(r.Revision), r.Err)
			continue
		}
		eval := r.Result.Evaluation
		if eval == nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t%s\n", shortRev(r.Revision), r.Result.FinalState)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%s\t%s\n",
			eval.CommitHash[:12], eval.Author, eval.AverageScore(),
			eval.ImpactLevel(), r.Result.FinalState)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%d evaluated, %d failed\n", len(results)-failed, failed)
	return nil
}

func renderEvaluation(w io.Writer, eval *schema.CommitEvaluation) {
	fmt.Fprintf(w, "Commit:   %s\n", eval.CommitHash[:12])
	fmt.Fprintf(w, "Author:   %s <%s>\n", eval.Author, eval.Email)
	fmt.Fprintf(w, "Date:     %s\n", eval.Timestamp.Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "Message:  %s\n", firstLine(eval.Message))
	fmt.Fprintf(w, "Changes:  %d files, +%d -%d\n\n", eval.FilesChanged, eval.LinesAdded, eval.LinesRemoved)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, dim := range schema.Dimensions() {
		score := eval.Score(dim)
		fmt.Fprintf(tw, "  %s\t%d\t%s\n", dim, score, scoreBar(score))
	}
	tw.Flush()

	fmt.Fprintf(w, "\nAverage:    %.1f (%s impact)\n", eval.AverageScore(), eval.ImpactLevel())
	fmt.Fprintf(w, "Categories: %s\n", strings.Join(eval.Categories, ", "))
	fmt.Fprintf(w, "Summary:    %s\n", eval.ImpactSummary)
	if len(eval.KeyFiles) > 0 {
		fmt.Fprintf(w, "Key files:  %s\n", strings.Join(eval.KeyFiles, ", "))
	}
	if eval.Degraded {
		fmt.Fprintf(w, "\nNote: degraded evaluation (%s)\n", eval.DegradedReason)
	}
}

func renderEvaluationList(w io.Writer, evals []*schema.CommitEvaluation) {
	if len(evals) == 0 {
		fmt.Fprintln(w, "No stored evaluations.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COMMIT\tDATE\tAUTHOR\tAVG\tIMPACT\tMESSAGE")
	for _, eval := range evals {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%s\t%s\n",
			eval.CommitHash[:12],
			eval.Timestamp.Format("2006-01-02"),
			eval.Author,
			eval.AverageScore(),
			eval.ImpactLevel(),
			truncateString(firstLine(eval.Message), 60))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d evaluations\n", len(evals))
}

func renderProfiles(w io.Writer, profiles []schema.ContributorProfile) {
	if len(profiles) == 0 {
		fmt.Fprintln(w, "No stored evaluations to aggregate.")
		return
	}
	for i := range profiles {
		p := &profiles[i]
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s <%s>\n", p.AuthorName, p.Email)
		fmt.Fprintf(w, "  %d commits, %d days active (%s to %s)\n",
			p.TotalCommits, p.DaysActive,
			p.FirstCommitDate.Format("2006-01-02"),
			p.LastCommitDate.Format("2006-01-02"))

		d := p.AllTime.ImpactDistribution
		fmt.Fprintf(w, "  Impact: %d high / %d medium / %d low / %d trivial\n",
			d.HighImpactCount, d.MediumImpactCount, d.LowImpactCount, d.TrivialCount)
		fmt.Fprintf(w, "  Lines:  +%d -%d across %d files\n",
			p.AllTime.TotalLinesAdded, p.AllTime.TotalLinesRemoved, p.AllTime.TotalFilesChanged)

		if len(p.AllTime.TopCommits) > 0 {
			fmt.Fprintln(w, "  Top commits:")
			for _, top := range p.AllTime.TopCommits {
				fmt.Fprintf(w, "    %s  %.1f  %s\n",
					top.CommitHash[:12], top.OverallScore, truncateString(firstLine(top.Message), 60))
			}
		}
	}
}

// progressPrinter streams session activity to stderr while an
// evaluation runs. It stays silent when stderr is not a terminal so
// piped output remains clean.
type progressPrinter struct {
	w io.Writer
}

func newProgressPrinter(f *os.File) *progressPrinter {
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return nil
	}
	return &progressPrinter{w: f}
}

func (p *progressPrinter) Handle(event *events.Event) {
	switch data := event.Data.(type) {
	case *events.ToolStartData:
		fmt.Fprintf(p.w, "  [%d] %s\n", data.TotalCalls+1, data.Preview)
	case *events.ToolResultData:
		if data.RejectReason != "" {
			fmt.Fprintf(p.w, "      rejected: %s\n", data.RejectReason)
		} else if data.Error != "" {
			fmt.Fprintf(p.w, "      failed: %s\n", data.Error)
		}
	case *events.StateTransitionData:
		fmt.Fprintf(p.w, "-- %s\n", data.ToState)
	case *events.SessionCompleteData:
		fmt.Fprintf(p.w, "-- done: %s (%d tool calls, %s)\n",
			data.FinalState, data.TotalCalls, data.Duration.Round(time.Millisecond))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func shortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}

func scoreBar(score int) string {
	if score < schema.MinScore {
		score = schema.MinScore
	}
	if score > schema.MaxScore {
		score = schema.MaxScore
	}
	return strings.Repeat("#", score) + strings.Repeat(".", schema.MaxScore-score)
}
