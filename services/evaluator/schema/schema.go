// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema defines the data model for commit evaluation.
//
// A CommitEvaluation scores a single commit across six dimensions on a
// 1-5 scale. Scores outside that range are rejected by Validate; the
// evaluation loop retries or degrades rather than storing bad data.
package schema

import (
	"fmt"
	"time"
)

// Score bounds for every evaluation dimension.
const (
	MinScore = 1
	MaxScore = 5
)

// Dimension names, in the order they appear in prompts and reports.
const (
	DimTechnicalComplexity = "technical_complexity"
	DimScopeOfImpact       = "scope_of_impact"
	DimCodeQualityDelta    = "code_quality_delta"
	DimRiskCriticality     = "risk_criticality"
	DimKnowledgeSharing    = "knowledge_sharing"
	DimInnovation          = "innovation"
)

// Dimensions returns all dimension names in canonical order.
func Dimensions() []string {
	return []string{
		DimTechnicalComplexity,
		DimScopeOfImpact,
		DimCodeQualityDelta,
		DimRiskCriticality,
		DimKnowledgeSharing,
		DimInnovation,
	}
}

// CommitMetadata is the raw metadata extracted from a git commit.
//
// Thread Safety: CommitMetadata is immutable after creation.
type CommitMetadata struct {
	// Hash is the full commit hash.
	Hash string `json:"hash"`

	// Author is the commit author name.
	Author string `json:"author"`

	// Email is the author email.
	Email string `json:"email"`

	// Timestamp is the author timestamp.
	Timestamp time.Time `json:"timestamp"`

	// Message is the full commit message.
	Message string `json:"message"`

	// FilesChanged lists the paths touched by the commit.
	FilesChanged []string `json:"files_changed"`

	// Insertions is the number of lines added.
	Insertions int `json:"insertions"`

	// Deletions is the number of lines removed.
	Deletions int `json:"deletions"`
}

// LinesChanged returns the total lines touched.
func (m *CommitMetadata) LinesChanged() int {
	return m.Insertions + m.Deletions
}

// ShortHash returns the abbreviated commit hash used in prompts and previews.
func (m *CommitMetadata) ShortHash() string {
	if len(m.Hash) > 12 {
		return m.Hash[:12]
	}
	return m.Hash
}

// CommitEvaluation is the structured judgment for one commit.
//
// The six dimension scores must each lie in [MinScore, MaxScore].
// Degraded marks evaluations produced by the tool-free fallback path.
type CommitEvaluation struct {
	// Identity, copied from the commit under evaluation.
	CommitHash string    `json:"commit_hash"`
	Author     string    `json:"author"`
	Email      string    `json:"email"`
	Timestamp  time.Time `json:"timestamp"`
	Message    string    `json:"message"`

	// Core dimensions, each 1-5.
	TechnicalComplexity int `json:"technical_complexity"`
	ScopeOfImpact       int `json:"scope_of_impact"`
	CodeQualityDelta    int `json:"code_quality_delta"`
	RiskCriticality     int `json:"risk_criticality"`
	KnowledgeSharing    int `json:"knowledge_sharing"`
	Innovation          int `json:"innovation"`

	// Categories classifies the commit (bug_fix, feature, refactor, ...).
	Categories []string `json:"categories"`

	// ImpactSummary is a 1-2 sentence high level summary.
	ImpactSummary string `json:"impact_summary"`

	// KeyFiles lists the most important files changed (max 5).
	KeyFiles []string `json:"key_files"`

	// Reasoning is the detailed justification for the scores.
	Reasoning string `json:"reasoning"`

	// Basic stats carried over from the commit metadata.
	LinesAdded   int `json:"lines_added"`
	LinesRemoved int `json:"lines_removed"`
	FilesChanged int `json:"files_changed"`

	// Degraded is true when the evaluation came from the fallback path.
	Degraded bool `json:"degraded,omitempty"`

	// DegradedReason explains why the fallback path was used.
	DegradedReason string `json:"degraded_reason,omitempty"`
}

// scores returns the six dimension scores keyed by dimension name.
func (e *CommitEvaluation) scores() map[string]int {
	return map[string]int{
		DimTechnicalComplexity: e.TechnicalComplexity,
		DimScopeOfImpact:       e.ScopeOfImpact,
		DimCodeQualityDelta:    e.CodeQualityDelta,
		DimRiskCriticality:     e.RiskCriticality,
		DimKnowledgeSharing:    e.KnowledgeSharing,
		DimInnovation:          e.Innovation,
	}
}

// Score returns the score for a dimension name, or 0 if unknown.
func (e *CommitEvaluation) Score(dimension string) int {
	return e.scores()[dimension]
}

// AverageScore returns the mean of the six dimension scores.
func (e *CommitEvaluation) AverageScore() float64 {
	sum := e.TechnicalComplexity + e.ScopeOfImpact + e.CodeQualityDelta +
		e.RiskCriticality + e.KnowledgeSharing + e.Innovation
	return float64(sum) / 6.0
}

// ImpactLevel buckets the evaluation by average score.
//
// Outputs:
//
//	string - "high" (>= 4.0), "medium" (>= 3.0), "low" (>= 2.0), or "trivial"
func (e *CommitEvaluation) ImpactLevel() string {
	avg := e.AverageScore()
	switch {
	case avg >= 4.0:
		return "high"
	case avg >= 3.0:
		return "medium"
	case avg >= 2.0:
		return "low"
	default:
		return "trivial"
	}
}

// Validate checks that every dimension score lies in its declared range.
//
// Outputs:
//
//	error - Non-nil naming the first out-of-range dimension.
func (e *CommitEvaluation) Validate() error {
	for _, dim := range Dimensions() {
		score := e.Score(dim)
		if score < MinScore || score > MaxScore {
			return fmt.Errorf("score %s=%d out of range [%d,%d]", dim, score, MinScore, MaxScore)
		}
	}
	return nil
}

// ClampScores forces every dimension score into the valid range.
//
// Used on parse so that a model answering "0" or "6" on one dimension
// does not discard an otherwise usable evaluation.
func (e *CommitEvaluation) ClampScores() {
	e.TechnicalComplexity = clamp(e.TechnicalComplexity)
	e.ScopeOfImpact = clamp(e.ScopeOfImpact)
	e.CodeQualityDelta = clamp(e.CodeQualityDelta)
	e.RiskCriticality = clamp(e.RiskCriticality)
	e.KnowledgeSharing = clamp(e.KnowledgeSharing)
	e.Innovation = clamp(e.Innovation)
}

func clamp(score int) int {
	if score < MinScore {
		return MinScore
	}
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// NeutralEvaluation builds the fallback evaluation for a commit.
//
// Description:
//
//	Returns an evaluation with every dimension at the scale midpoint,
//	tagged as degraded. This is the designed graceful-degradation output
//	used when neither the agentic nor the context-free judgment produced
//	a valid result.
//
// Inputs:
//
//	commit - The commit under evaluation.
//	reason - Why the fallback was taken (surfaced in the summary).
//
// Outputs:
//
//	*CommitEvaluation - A valid, degraded evaluation. Never nil.
func NeutralEvaluation(commit *CommitMetadata, reason string) *CommitEvaluation {
	keyFiles := commit.FilesChanged
	if len(keyFiles) > 5 {
		keyFiles = keyFiles[:5]
	}

	return &CommitEvaluation{
		CommitHash:          commit.Hash,
		Author:              commit.Author,
		Email:               commit.Email,
		Timestamp:           commit.Timestamp,
		Message:             commit.Message,
		TechnicalComplexity: 3,
		ScopeOfImpact:       3,
		CodeQualityDelta:    3,
		RiskCriticality:     3,
		KnowledgeSharing:    3,
		Innovation:          3,
		Categories:          []string{"evaluation_incomplete"},
		ImpactSummary:       fmt.Sprintf("Agentic evaluation unavailable: %s", reason),
		KeyFiles:            keyFiles,
		Reasoning:           fmt.Sprintf("Used fallback evaluation due to: %s", reason),
		LinesAdded:          commit.Insertions,
		LinesRemoved:        commit.Deletions,
		FilesChanged:        len(commit.FilesChanged),
		Degraded:            true,
		DegradedReason:      reason,
	}
}
