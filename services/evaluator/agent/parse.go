// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/AleutianAI/commitlens/services/evaluator/schema"
)

// jsonObjectPattern locates the JSON object in a response that may
// carry prose around it.
var jsonObjectPattern = regexp.MustCompile(`\{[\s\S]*\}`)

// evaluationPayload mirrors the JSON contract given to the model.
// Score fields are pointers so a missing dimension is distinguishable
// from a literal zero.
type evaluationPayload struct {
	TechnicalComplexity *int     `json:"technical_complexity"`
	ScopeOfImpact       *int     `json:"scope_of_impact"`
	CodeQualityDelta    *int     `json:"code_quality_delta"`
	RiskCriticality     *int     `json:"risk_criticality"`
	KnowledgeSharing    *int     `json:"knowledge_sharing"`
	Innovation          *int     `json:"innovation"`
	Categories          []string `json:"categories"`
	ImpactSummary       string   `json:"impact_summary"`
	KeyFiles            []string `json:"key_files"`
	Reasoning           string   `json:"reasoning"`
}

// extractPayload pulls and decodes the JSON object from raw text.
func extractPayload(text string) (*evaluationPayload, error) {
	match := jsonObjectPattern.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", ErrMalformedEvaluation)
	}

	var payload evaluationPayload
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvaluation, err)
	}
	return &payload, nil
}

// toEvaluation builds the evaluation from a payload, filling identity
// and stats from the commit and applying the textual defaults.
func (p *evaluationPayload) toEvaluation(commit *schema.CommitMetadata) *schema.CommitEvaluation {
	eval := &schema.CommitEvaluation{
		CommitHash:          commit.Hash,
		Author:              commit.Author,
		Email:               commit.Email,
		Timestamp:           commit.Timestamp,
		Message:             commit.Message,
		TechnicalComplexity: scoreOrDefault(p.TechnicalComplexity),
		ScopeOfImpact:       scoreOrDefault(p.ScopeOfImpact),
		CodeQualityDelta:    scoreOrDefault(p.CodeQualityDelta),
		RiskCriticality:     scoreOrDefault(p.RiskCriticality),
		KnowledgeSharing:    scoreOrDefault(p.KnowledgeSharing),
		Innovation:          scoreOrDefault(p.Innovation),
		Categories:          p.Categories,
		ImpactSummary:       p.ImpactSummary,
		KeyFiles:            p.KeyFiles,
		Reasoning:           p.Reasoning,
		LinesAdded:          commit.Insertions,
		LinesRemoved:        commit.Deletions,
		FilesChanged:        len(commit.FilesChanged),
	}

	if len(eval.Categories) == 0 {
		eval.Categories = []string{"unknown"}
	}
	if eval.ImpactSummary == "" {
		eval.ImpactSummary = "No summary provided"
	}
	if eval.Reasoning == "" {
		eval.Reasoning = "No reasoning provided"
	}
	if len(eval.KeyFiles) > 5 {
		eval.KeyFiles = eval.KeyFiles[:5]
	}

	return eval
}

func scoreOrDefault(score *int) int {
	if score == nil {
		return 3
	}
	return *score
}

// parseEvaluation is the strict parse used in the judging phase. A
// response missing a dimension or scoring outside [1,5] is rejected
// so the loop can issue its corrective retry.
func parseEvaluation(text string, commit *schema.CommitMetadata) (*schema.CommitEvaluation, error) {
	payload, err := extractPayload(text)
	if err != nil {
		return nil, err
	}

	missing := firstMissingScore(payload)
	if missing != "" {
		return nil, fmt.Errorf("%w: missing score %s", ErrMalformedEvaluation, missing)
	}

	eval := payload.toEvaluation(commit)
	if err := eval.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvaluation, err)
	}
	return eval, nil
}

// parseEvaluationLenient is the forgiving parse used on the fallback
// path: missing scores default to the midpoint and out-of-range
// scores are clamped, so any response with a decodable JSON object
// yields a usable evaluation.
func parseEvaluationLenient(text string, commit *schema.CommitMetadata) (*schema.CommitEvaluation, error) {
	payload, err := extractPayload(text)
	if err != nil {
		return nil, err
	}

	eval := payload.toEvaluation(commit)
	eval.ClampScores()
	return eval, nil
}

func firstMissingScore(p *evaluationPayload) string {
	checks := []struct {
		name  string
		score *int
	}{
		{schema.DimTechnicalComplexity, p.TechnicalComplexity},
		{schema.DimScopeOfImpact, p.ScopeOfImpact},
		{schema.DimCodeQualityDelta, p.CodeQualityDelta},
		{schema.DimRiskCriticality, p.RiskCriticality},
		{schema.DimKnowledgeSharing, p.KnowledgeSharing},
		{schema.DimInnovation, p.Innovation},
	}
	for _, c := range checks {
		if c.score == nil {
			return c.name
		}
	}
	return ""
}
