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
	"fmt"
	"strings"

	"github.com/AleutianAI/commitlens/services/evaluator/agent/tools"
	"github.com/AleutianAI/commitlens/services/evaluator/schema"
)

// ContextGatheringComplete is the sentinel the model emits to end the
// gathering phase early.
const ContextGatheringComplete = "CONTEXT_GATHERING_COMPLETE"

const (
	gatheringDiffPreviewBytes = 2000
	judgingDiffBytes          = 3000
	contextClipBytes          = 1000
	maxPromptFiles            = 20
)

// commitBlock renders the shared COMMIT INFORMATION section.
func commitBlock(commit *schema.CommitMetadata) string {
	var b strings.Builder
	fmt.Fprintf(&b, "COMMIT INFORMATION:\n")
	fmt.Fprintf(&b, "- Hash: %s\n", commit.ShortHash())
	fmt.Fprintf(&b, "- Author: %s\n", commit.Author)
	fmt.Fprintf(&b, "- Date: %s\n", commit.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "- Message: %s\n", commit.Message)
	return b.String()
}

// filesBlock renders the changed file list, capped at maxPromptFiles.
func filesBlock(commit *schema.CommitMetadata) string {
	var b strings.Builder
	b.WriteString("FILES CHANGED:\n")
	files := commit.FilesChanged
	shown := files
	if len(shown) > maxPromptFiles {
		shown = shown[:maxPromptFiles]
	}
	for _, f := range shown {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	if extra := len(files) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "... and %d more files\n", extra)
	}
	return b.String()
}

// gatheringPrompt seeds the tool-use phase.
func gatheringPrompt(commit *schema.CommitMetadata, diff string) string {
	preview := diff
	if len(preview) > gatheringDiffPreviewBytes {
		preview = preview[:gatheringDiffPreviewBytes]
	}

	var b strings.Builder
	b.WriteString("You are analyzing a git commit to evaluate its contribution quality. ")
	b.WriteString("You have access to tools that let you explore the repository for context.\n\n")
	b.WriteString(commitBlock(commit))
	b.WriteString("\n")
	b.WriteString(filesBlock(commit))
	b.WriteString("\n")
	fmt.Fprintf(&b, "STATISTICS: +%d -%d lines\n\n", commit.Insertions, commit.Deletions)
	fmt.Fprintf(&b, "DIFF PREVIEW:\n%s\n\n", preview)
	b.WriteString("YOUR TASK:\n")
	b.WriteString("Decide what additional context, if any, you need to evaluate this commit ")
	b.WriteString("accurately, and use the tools to gather it.\n\n")
	b.WriteString("GUIDELINES:\n")
	b.WriteString("1. Not every commit needs extra context. Simple, self-explanatory changes can be judged from the diff alone.\n")
	b.WriteString("2. Use tools strategically. Each tool has a limited number of uses and the session has a global budget.\n")
	b.WriteString("3. Prefer context that meaningfully changes the accuracy of your evaluation.\n")
	b.WriteString("4. Stop as soon as you have sufficient context.\n\n")
	fmt.Fprintf(&b, "When you have enough context, respond with \"%s\".\n\n", ContextGatheringComplete)
	b.WriteString("What context do you need to evaluate this commit?")
	return b.String()
}

// gatheredContextBlock renders successful tool outputs for the
// judging prompt. Each output is clipped so one verbose tool cannot
// crowd out the rest.
func gatheredContextBlock(history []tools.ExecutionRecord) string {
	var b strings.Builder
	for _, rec := range history {
		if rec.Outcome != tools.OutcomeSuccess {
			continue
		}
		out := rec.Output
		if len(out) > contextClipBytes {
			out = out[:contextClipBytes]
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", rec.ToolName, out)
	}
	if b.Len() == 0 {
		return "No additional context was gathered.\n"
	}
	return b.String()
}

// judgingPrompt asks for the scored evaluation. history may be empty
// for a context-free fallback judgment.
func judgingPrompt(commit *schema.CommitMetadata, diff string, history []tools.ExecutionRecord) string {
	clipped := diff
	if len(clipped) > judgingDiffBytes {
		clipped = clipped[:judgingDiffBytes]
	}

	var b strings.Builder
	b.WriteString("You are evaluating a git commit across 6 dimensions.\n\n")
	b.WriteString(commitBlock(commit))
	b.WriteString("\n")
	fmt.Fprintf(&b, "DIFF:\n%s\n\n", clipped)
	b.WriteString("GATHERED CONTEXT:\n")
	b.WriteString(gatheredContextBlock(history))
	b.WriteString("\n")
	b.WriteString("Score each dimension from 1 to 5:\n\n")
	b.WriteString("1. TECHNICAL COMPLEXITY: 1=Config/typo fix, 5=Novel algorithm/complex architecture\n")
	b.WriteString("2. SCOPE OF IMPACT: 1=Single function, 5=Cross-system architectural change\n")
	b.WriteString("3. CODE QUALITY DELTA: 1=Quality degradation, 3=Neutral, 5=Major improvement\n")
	b.WriteString("4. RISK & CRITICALITY: 1=Low-risk feature, 5=Security fix/production critical\n")
	b.WriteString("5. KNOWLEDGE SHARING: 1=No docs/tests, 5=Excellent documentation and test coverage\n")
	b.WriteString("6. INNOVATION: 1=Routine implementation, 5=Novel approach/creative solution\n\n")
	b.WriteString("ADDITIONAL ANALYSIS:\n")
	b.WriteString("- categories: labels such as bug_fix, feature, refactor, security, testing, documentation, performance, infrastructure\n")
	b.WriteString("- impact_summary: 1-2 sentence summary of the commit's impact\n")
	b.WriteString("- key_files: up to 5 of the most important files touched\n")
	b.WriteString("- reasoning: detailed reasoning behind the scores\n\n")
	b.WriteString("Respond with ONLY a JSON object:\n")
	b.WriteString(`{
  "technical_complexity": <1-5>,
  "scope_of_impact": <1-5>,
  "code_quality_delta": <1-5>,
  "risk_criticality": <1-5>,
  "knowledge_sharing": <1-5>,
  "innovation": <1-5>,
  "categories": ["..."],
  "impact_summary": "...",
  "key_files": ["..."],
  "reasoning": "..."
}`)
	return b.String()
}

// correctiveInstruction is appended for the single judging retry when
// the first response could not be parsed.
const correctiveInstruction = "Your previous response could not be parsed. " +
	"Respond again with ONLY a single JSON object containing the keys " +
	"technical_complexity, scope_of_impact, code_quality_delta, risk_criticality, " +
	"knowledge_sharing, innovation (each an integer from 1 to 5), " +
	"categories, impact_summary, key_files, and reasoning. " +
	"No prose before or after the JSON."
