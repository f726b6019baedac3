// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package schema

import (
	"strings"
	"testing"
	"time"
)

func scoredEvaluation(scores [6]int) *CommitEvaluation {
	return &CommitEvaluation{
		CommitHash:          "abc123def4567890abc123def4567890abc123de",
		Author:              "Alice",
		Email:               "alice@example.com",
		Timestamp:           time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Message:             "Test commit",
		TechnicalComplexity: scores[0],
		ScopeOfImpact:       scores[1],
		CodeQualityDelta:    scores[2],
		RiskCriticality:     scores[3],
		KnowledgeSharing:    scores[4],
		Innovation:          scores[5],
	}
}

func TestValidate(t *testing.T) {
	t.Run("accepts scores in range", func(t *testing.T) {
		eval := scoredEvaluation([6]int{1, 2, 3, 4, 5, 3})
		if err := eval.Validate(); err != nil {
			t.Errorf("Validate failed: %v", err)
		}
	})

	t.Run("rejects score above range", func(t *testing.T) {
		eval := scoredEvaluation([6]int{3, 3, 3, 6, 3, 3})
		err := eval.Validate()
		if err == nil {
			t.Fatal("expected error for score 6")
		}
		if !strings.Contains(err.Error(), DimRiskCriticality) {
			t.Errorf("error should name the dimension: %v", err)
		}
	})

	t.Run("rejects zero score", func(t *testing.T) {
		eval := scoredEvaluation([6]int{3, 0, 3, 3, 3, 3})
		if eval.Validate() == nil {
			t.Error("expected error for score 0")
		}
	})
}

func TestClampScores(t *testing.T) {
	eval := scoredEvaluation([6]int{0, 9, 3, -1, 5, 6})
	eval.ClampScores()

	want := [6]int{1, 5, 3, 1, 5, 5}
	got := [6]int{
		eval.TechnicalComplexity, eval.ScopeOfImpact, eval.CodeQualityDelta,
		eval.RiskCriticality, eval.KnowledgeSharing, eval.Innovation,
	}
	if got != want {
		t.Errorf("clamped scores = %v, want %v", got, want)
	}
	if err := eval.Validate(); err != nil {
		t.Errorf("clamped evaluation should validate: %v", err)
	}
}

func TestAverageScoreAndImpactLevel(t *testing.T) {
	cases := []struct {
		name    string
		scores  [6]int
		wantAvg float64
		want    string
	}{
		{"all fives", [6]int{5, 5, 5, 5, 5, 5}, 5.0, "high"},
		{"exactly four", [6]int{4, 4, 4, 4, 4, 4}, 4.0, "high"},
		{"neutral", [6]int{3, 3, 3, 3, 3, 3}, 3.0, "medium"},
		{"just below medium", [6]int{3, 3, 3, 3, 3, 2}, 17.0 / 6.0, "low"},
		{"all ones", [6]int{1, 1, 1, 1, 1, 1}, 1.0, "trivial"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			eval := scoredEvaluation(tc.scores)
			if avg := eval.AverageScore(); avg != tc.wantAvg {
				t.Errorf("AverageScore = %v, want %v", avg, tc.wantAvg)
			}
			if level := eval.ImpactLevel(); level != tc.want {
				t.Errorf("ImpactLevel = %q, want %q", level, tc.want)
			}
		})
	}
}

func TestScore_UnknownDimension(t *testing.T) {
	eval := scoredEvaluation([6]int{3, 3, 3, 3, 3, 3})
	if got := eval.Score("no_such_dimension"); got != 0 {
		t.Errorf("Score for unknown dimension = %d, want 0", got)
	}
}

func TestNeutralEvaluation(t *testing.T) {
	commit := &CommitMetadata{
		Hash:         "abc123def4567890abc123def4567890abc123de",
		Author:       "Alice",
		Email:        "alice@example.com",
		Timestamp:    time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
		Message:      "Some commit",
		FilesChanged: []string{"a.go", "b.go", "c.go", "d.go", "e.go", "f.go", "g.go"},
		Insertions:   100,
		Deletions:    20,
	}

	eval := NeutralEvaluation(commit, "reasoning service error")

	if err := eval.Validate(); err != nil {
		t.Fatalf("neutral evaluation must validate: %v", err)
	}
	for _, dim := range Dimensions() {
		if eval.Score(dim) != 3 {
			t.Errorf("%s = %d, want 3", dim, eval.Score(dim))
		}
	}
	if !eval.Degraded || eval.DegradedReason != "reasoning service error" {
		t.Errorf("degraded flags = %v / %q", eval.Degraded, eval.DegradedReason)
	}
	if len(eval.Categories) != 1 || eval.Categories[0] != "evaluation_incomplete" {
		t.Errorf("categories = %v", eval.Categories)
	}
	if len(eval.KeyFiles) != 5 {
		t.Errorf("key files = %d, want 5 (capped)", len(eval.KeyFiles))
	}
	if eval.LinesAdded != 100 || eval.LinesRemoved != 20 || eval.FilesChanged != 7 {
		t.Errorf("stats = +%d -%d %d files", eval.LinesAdded, eval.LinesRemoved, eval.FilesChanged)
	}
}

func TestCommitMetadata_Helpers(t *testing.T) {
	meta := &CommitMetadata{
		Hash:       "abc123def4567890abc123def4567890abc123de",
		Insertions: 10,
		Deletions:  4,
	}
	if got := meta.ShortHash(); got != "abc123def456" {
		t.Errorf("ShortHash = %q", got)
	}
	if got := meta.LinesChanged(); got != 14 {
		t.Errorf("LinesChanged = %d, want 14", got)
	}

	short := &CommitMetadata{Hash: "abc123"}
	if got := short.ShortHash(); got != "abc123" {
		t.Errorf("ShortHash of short hash = %q", got)
	}
}
