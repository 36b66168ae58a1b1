// Package aggregator implements the Batch comparison aggregation (spec
// §4.7): per-axis rankings, leader/average computation, and one narrative
// call to the Semantic Scorer's batch mode with graceful degradation.
package aggregator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"webscope/internal/core/domain/analysis"
	"webscope/internal/core/domain/batch"
)

// clock is overridable in tests; production code always uses time.Now.
var clock = time.Now

const descriptionMaxChars = 200

// Aggregator produces a batch.Comparison from a Batch's completed
// children.
type Aggregator struct {
	scorer analysis.SemanticScorer
}

// New builds an Aggregator bound to the given Semantic Scorer capability.
func New(scorer analysis.SemanticScorer) *Aggregator {
	return &Aggregator{scorer: scorer}
}

// completedChild bundles a completed child Job, its Member metadata, and
// its Artifact for ranking and narrative purposes.
type completedChild struct {
	member   batch.Member
	job      *analysis.Job
	artifact *analysis.Artifact
}

// Aggregate builds the Comparison for b given its completed children's
// jobs and artifacts. Callers must have already verified the quorum rule
// (>=2 completed children) before calling this.
func (a *Aggregator) Aggregate(ctx context.Context, b *batch.Batch, jobs []*analysis.Job, artifacts []*analysis.Artifact) (*batch.Comparison, error) {
	started := clock()

	artifactByJobID := make(map[string]*analysis.Artifact, len(artifacts))
	for _, art := range artifacts {
		artifactByJobID[art.JobID.String()] = art
	}
	jobByID := make(map[string]*analysis.Job, len(jobs))
	for _, j := range jobs {
		jobByID[j.ID.String()] = j
	}

	children := make([]completedChild, 0, len(b.Members))
	for _, member := range b.Members {
		job, ok := jobByID[member.ChildJobID.String()]
		if !ok || job.Status != analysis.JobCompleted {
			continue
		}
		art, ok := artifactByJobID[member.ChildJobID.String()]
		if !ok {
			continue
		}
		children = append(children, completedChild{member: member, job: job, artifact: art})
	}

	ruleRanking, ruleLeader, ruleAverage := rank(children, batch.AxisRule)
	semanticRanking, semanticLeader, semanticAverage := rank(children, batch.AxisSemantic)

	comparison := &batch.Comparison{
		BatchID:         b.ID,
		RuleRanking:     ruleRanking,
		SemanticRanking: semanticRanking,
		RuleLeader:      ruleLeader,
		SemanticLeader:  semanticLeader,
		RuleAverage:     ruleAverage,
		SemanticAverage: semanticAverage,
	}

	narrative, err := a.narrative(ctx, children)
	if err != nil {
		// Graceful degradation (spec §4.7): the numeric comparison still
		// persists; narrative fields are left empty.
		comparison.DurationSeconds = clock().Sub(started).Seconds()
		return comparison, nil
	}

	comparison.Insights = narrative.Insights
	comparison.Opportunities = narrative.Opportunities
	comparison.Threats = narrative.Threats
	if narrative.OverallWinner != nil {
		comparison.OverallWinner = &batch.OverallWinner{
			URL:    narrative.OverallWinner.URL,
			Label:  narrative.OverallWinner.Label,
			Reason: narrative.OverallWinner.Reason,
		}
	}
	comparison.DurationSeconds = clock().Sub(started).Seconds()
	return comparison, nil
}

func rank(children []completedChild, axis batch.Axis) ([]batch.RankedEntry, *batch.Winner, float64) {
	if len(children) == 0 {
		return nil, nil, 0
	}

	entries := make([]batch.RankedEntry, len(children))
	sum := 0.0
	for i, c := range children {
		score := scoreFor(c.artifact, axis)
		sum += score
		entries[i] = batch.RankedEntry{
			URL:        c.job.URL,
			Label:      c.member.Label,
			Score:      score,
			OrderIndex: c.member.OrderIndex,
		}
	}
	average := round2(sum / float64(len(children)))

	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].OrderIndex < entries[j].OrderIndex
	})

	leaderScore := entries[0].Score
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].DeltaFromLeader = round2(entries[i].Score - leaderScore)
		entries[i].DeltaFromAverage = round2(entries[i].Score - average)
	}

	leader := &batch.Winner{URL: entries[0].URL, Label: entries[0].Label, Score: entries[0].Score}
	return entries, leader, average
}

func scoreFor(artifact *analysis.Artifact, axis batch.Axis) float64 {
	if axis == batch.AxisSemantic {
		return artifact.SemanticScore
	}
	return artifact.RuleScore
}

func (a *Aggregator) narrative(ctx context.Context, children []completedChild) (*analysis.NarrativeComparison, error) {
	summaries := make([]analysis.CompetitorSummary, len(children))
	for i, c := range children {
		summaries[i] = analysis.CompetitorSummary{
			URL:           c.job.URL,
			Label:         c.member.Label,
			Description:   describeStrength(c.artifact),
			TopIssues:     topIssues(c.artifact.RuleReport),
			TopStrengths:  topStrengths(c.artifact.RuleReport),
			RuleScore:     c.artifact.RuleScore,
			SemanticScore: c.artifact.SemanticScore,
			OrderIndex:    c.member.OrderIndex,
		}
	}
	return a.scorer.Compare(ctx, summaries)
}

// describeStrength builds a <=200-char condensed description for the
// narrative prompt from the semantic report's summary field.
func describeStrength(artifact *analysis.Artifact) string {
	desc := artifact.SemanticReport.WhatItDoes
	if len(desc) > descriptionMaxChars {
		desc = desc[:descriptionMaxChars]
	}
	return desc
}

// topIssues returns up to the first 3 rule-scorer issues.
func topIssues(report analysis.ScoreReport) []string {
	if len(report.Issues) <= 3 {
		return report.Issues
	}
	return report.Issues[:3]
}

// topStrengths derives up to 3 strengths deterministically from the rule
// report's category scores: category >=90 -> strength, plus explicit
// https/mobile/structured-data flags (spec §4.7).
func topStrengths(report analysis.ScoreReport) []string {
	var strengths []string

	type category struct {
		name  string
		score float64
	}
	categories := []category{
		{"meta", report.Categories.Meta},
		{"headings", report.Categories.Headings},
		{"performance", report.Categories.Performance},
		{"mobile", report.Categories.Mobile},
		{"security", report.Categories.Security},
		{"structured data", report.Categories.StructuredData},
	}
	for _, c := range categories {
		if c.score >= 90 {
			strengths = append(strengths, fmt.Sprintf("strong %s", c.name))
		}
	}

	if report.Categories.Security == 100 {
		strengths = append(strengths, "uses https")
	}
	if report.Categories.Mobile == 100 {
		strengths = append(strengths, "mobile friendly")
	}
	if report.Categories.StructuredData == 100 {
		strengths = append(strengths, "has structured data")
	}

	if len(strengths) > 3 {
		strengths = strengths[:3]
	}
	return strengths
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
