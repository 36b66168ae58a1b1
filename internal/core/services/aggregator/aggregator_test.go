package aggregator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscope/internal/core/domain/analysis"
	"webscope/internal/core/domain/batch"
	"webscope/pkg/ulid"
)

type fakeCompareScorer struct {
	result *analysis.NarrativeComparison
	err    error
}

func (s *fakeCompareScorer) Score(ctx context.Context, url, pageText, title, description string) (*analysis.SemanticReport, error) {
	panic("not used in these tests")
}

func (s *fakeCompareScorer) Compare(ctx context.Context, competitors []analysis.CompetitorSummary) (*analysis.NarrativeComparison, error) {
	return s.result, s.err
}

func buildBatchWithChildren(scores []float64) (*batch.Batch, []*analysis.Job, []*analysis.Artifact) {
	b := &batch.Batch{ID: ulid.New()}
	jobs := make([]*analysis.Job, len(scores))
	artifacts := make([]*analysis.Artifact, len(scores))

	for i, score := range scores {
		jobID := ulid.New()
		b.Members = append(b.Members, batch.Member{
			ChildJobID: jobID,
			Label:      fmt.Sprintf("site-%d", i),
			OrderIndex: i,
		})
		jobs[i] = &analysis.Job{ID: jobID, URL: fmt.Sprintf("https://site-%d.example", i), Status: analysis.JobCompleted}
		artifacts[i] = &analysis.Artifact{
			JobID:         jobID,
			RuleScore:     score,
			SemanticScore: score,
			RuleReport: analysis.ScoreReport{
				Categories: analysis.CategoryScores{Security: 100, Mobile: 100, StructuredData: 100, Meta: 95},
				Issues:     []string{"issue one", "issue two"},
			},
		}
	}
	return b, jobs, artifacts
}

func TestAggregateRanksDescendingByScore(t *testing.T) {
	b, jobs, artifacts := buildBatchWithChildren([]float64{50, 90, 70})
	scorer := &fakeCompareScorer{result: &analysis.NarrativeComparison{Insights: "x"}}
	a := New(scorer)

	comparison, err := a.Aggregate(context.Background(), b, jobs, artifacts)
	require.NoError(t, err)

	require.Len(t, comparison.RuleRanking, 3)
	assert.Equal(t, 90.0, comparison.RuleRanking[0].Score)
	assert.Equal(t, 1, comparison.RuleRanking[0].Rank)
	assert.Equal(t, 70.0, comparison.RuleRanking[1].Score)
	assert.Equal(t, 50.0, comparison.RuleRanking[2].Score)
	assert.Equal(t, 0.0, comparison.RuleRanking[0].DeltaFromLeader)
	assert.Equal(t, "site-1", comparison.RuleLeader.Label)
}

func TestAggregateComputesAverage(t *testing.T) {
	b, jobs, artifacts := buildBatchWithChildren([]float64{50, 100})
	a := New(&fakeCompareScorer{result: &analysis.NarrativeComparison{}})

	comparison, err := a.Aggregate(context.Background(), b, jobs, artifacts)
	require.NoError(t, err)
	assert.Equal(t, 75.0, comparison.RuleAverage)
}

func TestAggregateStableTieBreakOnOrderIndex(t *testing.T) {
	b, jobs, artifacts := buildBatchWithChildren([]float64{80, 80, 80})
	a := New(&fakeCompareScorer{result: &analysis.NarrativeComparison{}})

	comparison, err := a.Aggregate(context.Background(), b, jobs, artifacts)
	require.NoError(t, err)
	assert.Equal(t, "site-0", comparison.RuleRanking[0].Label)
	assert.Equal(t, "site-1", comparison.RuleRanking[1].Label)
	assert.Equal(t, "site-2", comparison.RuleRanking[2].Label)
}

func TestAggregateDegradesGracefullyOnNarrativeFailure(t *testing.T) {
	b, jobs, artifacts := buildBatchWithChildren([]float64{50, 90})
	a := New(&fakeCompareScorer{err: assertErr})

	comparison, err := a.Aggregate(context.Background(), b, jobs, artifacts)
	require.NoError(t, err)
	assert.Empty(t, comparison.Insights)
	assert.Nil(t, comparison.OverallWinner)
	assert.Len(t, comparison.RuleRanking, 2)
}

func TestAggregateSkipsChildrenWithoutArtifact(t *testing.T) {
	b, jobs, artifacts := buildBatchWithChildren([]float64{50, 90})
	artifacts = artifacts[:1]
	a := New(&fakeCompareScorer{result: &analysis.NarrativeComparison{}})

	comparison, err := a.Aggregate(context.Background(), b, jobs, artifacts)
	require.NoError(t, err)
	assert.Len(t, comparison.RuleRanking, 1)
}

var assertErr = assertError("narrative call failed")

type assertError string

func (e assertError) Error() string { return string(e) }
