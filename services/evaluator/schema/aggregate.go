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
	"sort"
	"time"
)

// ImpactDistribution counts commits per impact bucket.
type ImpactDistribution struct {
	HighImpactCount   int `json:"high_impact_count"`
	MediumImpactCount int `json:"medium_impact_count"`
	LowImpactCount    int `json:"low_impact_count"`
	TrivialCount      int `json:"trivial_count"`
}

// TotalCommits returns the number of commits across all buckets.
func (d ImpactDistribution) TotalCommits() int {
	return d.HighImpactCount + d.MediumImpactCount + d.LowImpactCount + d.TrivialCount
}

// DimensionDistribution is a per-dimension histogram of 1-5 scores.
type DimensionDistribution struct {
	// DimensionName is one of the Dimensions() names.
	DimensionName string `json:"dimension_name"`

	// ScoreCounts[i] is the number of commits scoring i+1 on this dimension.
	ScoreCounts [5]int `json:"score_counts"`
}

// PeakContribution identifies one of a contributor's strongest commits.
type PeakContribution struct {
	CommitHash      string         `json:"commit_hash"`
	Message         string         `json:"message"`
	Timestamp       time.Time      `json:"timestamp"`
	OverallScore    float64        `json:"overall_score"`
	DimensionScores map[string]int `json:"dimension_scores"`
	ImpactSummary   string         `json:"impact_summary"`
}

// PeriodMetrics summarizes a contributor's work over one time window.
type PeriodMetrics struct {
	// PeriodName identifies the window (all_time, last_year, ...).
	PeriodName string `json:"period_name"`

	// StartDate is the window start; zero for all_time.
	StartDate time.Time `json:"start_date,omitempty"`

	ImpactDistribution     ImpactDistribution      `json:"impact_distribution"`
	DimensionDistributions []DimensionDistribution `json:"dimension_distributions"`

	TotalLinesAdded   int `json:"total_lines_added"`
	TotalLinesRemoved int `json:"total_lines_removed"`
	TotalFilesChanged int `json:"total_files_changed"`

	// TopCommits lists up to three commits by average score.
	TopCommits []PeakContribution `json:"top_commits"`
}

// ContributorProfile aggregates all evaluations for one author.
type ContributorProfile struct {
	AuthorName string `json:"author_name"`
	Email      string `json:"email"`

	AllTime   PeriodMetrics  `json:"all_time"`
	LastYear  *PeriodMetrics `json:"last_year,omitempty"`
	LastMonth *PeriodMetrics `json:"last_month,omitempty"`
	LastWeek  *PeriodMetrics `json:"last_week,omitempty"`

	TotalCommits    int       `json:"total_commits"`
	FirstCommitDate time.Time `json:"first_commit_date"`
	LastCommitDate  time.Time `json:"last_commit_date"`
	DaysActive      int       `json:"days_active"`

	// CategoryCounts tallies evaluation categories across all commits.
	CategoryCounts map[string]int `json:"category_counts"`
}

// BuildProfiles aggregates evaluations into per-contributor profiles.
//
// Description:
//
//	Groups evaluations by author, computes impact and dimension
//	distributions for all-time plus rolling year/month/week windows,
//	and sorts profiles by high-impact commit count descending.
//
// Inputs:
//
//	evaluations - Evaluations to aggregate. May be empty.
//	now - Reference time for the rolling windows.
//
// Outputs:
//
//	[]ContributorProfile - One profile per distinct author.
func BuildProfiles(evaluations []*CommitEvaluation, now time.Time) []ContributorProfile {
	byAuthor := make(map[string][]*CommitEvaluation)
	for _, eval := range evaluations {
		byAuthor[eval.Author] = append(byAuthor[eval.Author], eval)
	}

	profiles := make([]ContributorProfile, 0, len(byAuthor))
	for author, commits := range byAuthor {
		profiles = append(profiles, buildProfile(author, commits, now))
	}

	sort.Slice(profiles, func(i, j int) bool {
		hi := profiles[i].AllTime.ImpactDistribution.HighImpactCount
		hj := profiles[j].AllTime.ImpactDistribution.HighImpactCount
		if hi != hj {
			return hi > hj
		}
		return profiles[i].AuthorName < profiles[j].AuthorName
	})

	return profiles
}

func buildProfile(author string, commits []*CommitEvaluation, now time.Time) ContributorProfile {
	sorted := make([]*CommitEvaluation, len(commits))
	copy(sorted, commits)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	first := sorted[0].Timestamp
	last := sorted[len(sorted)-1].Timestamp
	daysActive := int(last.Sub(first).Hours()/24) + 1

	categoryCounts := make(map[string]int)
	for _, commit := range sorted {
		for _, category := range commit.Categories {
			categoryCounts[category]++
		}
	}

	profile := ContributorProfile{
		AuthorName:      author,
		Email:           sorted[0].Email,
		AllTime:         buildPeriod("all_time", sorted, time.Time{}),
		TotalCommits:    len(sorted),
		FirstCommitDate: first,
		LastCommitDate:  last,
		DaysActive:      daysActive,
		CategoryCounts:  categoryCounts,
	}

	for _, window := range []struct {
		name string
		days int
		dst  **PeriodMetrics
	}{
		{"last_year", 365, &profile.LastYear},
		{"last_month", 30, &profile.LastMonth},
		{"last_week", 7, &profile.LastWeek},
	} {
		cutoff := now.AddDate(0, 0, -window.days)
		metrics := buildPeriod(window.name, sorted, cutoff)
		if metrics.ImpactDistribution.TotalCommits() > 0 {
			m := metrics
			*window.dst = &m
		}
	}

	return profile
}

// buildPeriod computes metrics over commits at or after cutoff.
// A zero cutoff includes everything.
func buildPeriod(name string, commits []*CommitEvaluation, cutoff time.Time) PeriodMetrics {
	var included []*CommitEvaluation
	for _, commit := range commits {
		if cutoff.IsZero() || !commit.Timestamp.Before(cutoff) {
			included = append(included, commit)
		}
	}

	metrics := PeriodMetrics{
		PeriodName: name,
		StartDate:  cutoff,
	}

	for _, commit := range included {
		switch commit.ImpactLevel() {
		case "high":
			metrics.ImpactDistribution.HighImpactCount++
		case "medium":
			metrics.ImpactDistribution.MediumImpactCount++
		case "low":
			metrics.ImpactDistribution.LowImpactCount++
		default:
			metrics.ImpactDistribution.TrivialCount++
		}

		metrics.TotalLinesAdded += commit.LinesAdded
		metrics.TotalLinesRemoved += commit.LinesRemoved
		metrics.TotalFilesChanged += commit.FilesChanged
	}

	metrics.DimensionDistributions = buildDimensionDistributions(included)
	metrics.TopCommits = topCommits(included, 3)

	return metrics
}

func buildDimensionDistributions(commits []*CommitEvaluation) []DimensionDistribution {
	distributions := make([]DimensionDistribution, 0, len(Dimensions()))

	for _, dim := range Dimensions() {
		dist := DimensionDistribution{DimensionName: dim}
		for _, commit := range commits {
			score := commit.Score(dim)
			if score >= MinScore && score <= MaxScore {
				dist.ScoreCounts[score-1]++
			}
		}
		distributions = append(distributions, dist)
	}

	return distributions
}

func topCommits(commits []*CommitEvaluation, n int) []PeakContribution {
	ranked := make([]*CommitEvaluation, len(commits))
	copy(ranked, commits)
	sort.Slice(ranked, func(i, j int) bool {
		return ranked[i].AverageScore() > ranked[j].AverageScore()
	})

	if len(ranked) > n {
		ranked = ranked[:n]
	}

	peaks := make([]PeakContribution, 0, len(ranked))
	for _, commit := range ranked {
		peaks = append(peaks, PeakContribution{
			CommitHash:      commit.CommitHash,
			Message:         commit.Message,
			Timestamp:       commit.Timestamp,
			OverallScore:    commit.AverageScore(),
			DimensionScores: commit.scores(),
			ImpactSummary:   commit.ImpactSummary,
		})
	}

	return peaks
}
