package batchpipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscope/internal/core/domain/analysis"
	"webscope/internal/core/domain/batch"
	"webscope/pkg/ulid"
)

type fakeBatchRepo struct {
	mu   sync.Mutex
	b    *batch.Batch
	jobs map[string]*analysis.Job
	arts map[string]*analysis.Artifact
}

func newFakeBatchRepo(b *batch.Batch, jobs []*analysis.Job) *fakeBatchRepo {
	jobMap := make(map[string]*analysis.Job, len(jobs))
	for _, j := range jobs {
		jobMap[j.ID.String()] = j
	}
	return &fakeBatchRepo{b: b, jobs: jobMap, arts: make(map[string]*analysis.Artifact)}
}

func (r *fakeBatchRepo) Create(ctx context.Context, name string, members []batch.MemberInput) (*batch.Batch, []*analysis.Job, error) {
	panic("not used in these tests")
}

func (r *fakeBatchRepo) Get(ctx context.Context, id ulid.ULID) (*batch.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *r.b
	return &copied, nil
}

func (r *fakeBatchRepo) Advance(ctx context.Context, id ulid.ULID, mutation batch.Mutation) (*batch.Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if mutation.Status != nil {
		r.b.Status = *mutation.Status
	}
	if mutation.Progress != nil {
		r.b.Progress = *mutation.Progress
	}
	if mutation.CompletedCount != nil {
		r.b.CompletedCount = *mutation.CompletedCount
	}
	if mutation.FailedCount != nil {
		r.b.FailedCount = *mutation.FailedCount
	}
	if mutation.ErrorMessage != nil {
		r.b.ErrorMessage = mutation.ErrorMessage
	}
	copied := *r.b
	return &copied, nil
}

func (r *fakeBatchRepo) Snapshot(ctx context.Context, id ulid.ULID) (*batch.Batch, []*analysis.Job, []*analysis.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	jobs := make([]*analysis.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		copied := *j
		jobs = append(jobs, &copied)
	}
	arts := make([]*analysis.Artifact, 0, len(r.arts))
	for _, a := range r.arts {
		copied := *a
		arts = append(arts, &copied)
	}
	bCopy := *r.b
	return &bCopy, jobs, arts, nil
}

func (r *fakeBatchRepo) setJobStatus(id ulid.ULID, status analysis.JobStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id.String()].Status = status
}

func (r *fakeBatchRepo) putArtifact(a *analysis.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.arts[a.JobID.String()] = a
}

type fakeComparisonRepo struct {
	mu    sync.Mutex
	saved *batch.Comparison
}

func (r *fakeComparisonRepo) Save(ctx context.Context, c *batch.Comparison) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = c
	return nil
}

func (r *fakeComparisonRepo) Get(ctx context.Context, batchID ulid.ULID) (*batch.Comparison, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved, nil
}

// scriptedRunner marks each job COMPLETED or FAILED per a caller-provided
// outcome map, simulating child pipeline termination without running a
// real pipeline.
type scriptedRunner struct {
	repo     *fakeBatchRepo
	outcomes map[string]analysis.JobStatus
}

func (r *scriptedRunner) Run(ctx context.Context, id ulid.ULID) error {
	status := r.outcomes[id.String()]
	if status == "" {
		status = analysis.JobCompleted
	}
	r.repo.setJobStatus(id, status)
	if status == analysis.JobFailed {
		return errors.New("child failed")
	}
	r.repo.putArtifact(&analysis.Artifact{JobID: id, RuleScore: 80, SemanticScore: 80})
	return nil
}

type fakeAggregator struct {
	result *batch.Comparison
	err    error
}

func (a *fakeAggregator) Aggregate(ctx context.Context, b *batch.Batch, jobs []*analysis.Job, artifacts []*analysis.Artifact) (*batch.Comparison, error) {
	return a.result, a.err
}

func buildBatch(n int) (*batch.Batch, []*analysis.Job) {
	b := &batch.Batch{ID: ulid.New(), Total: n}
	jobs := make([]*analysis.Job, n)
	for i := 0; i < n; i++ {
		jobID := ulid.New()
		b.Members = append(b.Members, batch.Member{ChildJobID: jobID, Label: "site", OrderIndex: i})
		jobs[i] = &analysis.Job{ID: jobID, Status: analysis.JobPending}
	}
	return b, jobs
}

func TestRunAllCompletedProducesComparison(t *testing.T) {
	b, jobs := buildBatch(3)
	repo := newFakeBatchRepo(b, jobs)
	comparisons := &fakeComparisonRepo{}
	runner := &scriptedRunner{repo: repo, outcomes: map[string]analysis.JobStatus{}}

	p := New(Config{
		Batches:     repo,
		Comparisons: comparisons,
		Child:       runner,
		Aggregator:  &fakeAggregator{result: &batch.Comparison{BatchID: b.ID}},
	})

	err := p.Run(context.Background(), b.ID)
	require.NoError(t, err)

	assert.Equal(t, batch.Completed, repo.b.Status)
	assert.Equal(t, 100, repo.b.Progress)
	require.NotNil(t, comparisons.saved)
}

func TestRunInsufficientCompletedFailsBatch(t *testing.T) {
	b, jobs := buildBatch(3)
	repo := newFakeBatchRepo(b, jobs)
	comparisons := &fakeComparisonRepo{}
	outcomes := map[string]analysis.JobStatus{
		jobs[0].ID.String(): analysis.JobCompleted,
		jobs[1].ID.String(): analysis.JobFailed,
		jobs[2].ID.String(): analysis.JobFailed,
	}
	runner := &scriptedRunner{repo: repo, outcomes: outcomes}

	p := New(Config{Batches: repo, Comparisons: comparisons, Child: runner, Aggregator: &fakeAggregator{}})

	err := p.Run(context.Background(), b.ID)
	assert.Error(t, err)
	assert.Equal(t, batch.Failed, repo.b.Status)
	assert.Nil(t, comparisons.saved)
}

func TestRunAllFailedFailsBatch(t *testing.T) {
	b, jobs := buildBatch(2)
	repo := newFakeBatchRepo(b, jobs)
	outcomes := map[string]analysis.JobStatus{
		jobs[0].ID.String(): analysis.JobFailed,
		jobs[1].ID.String(): analysis.JobFailed,
	}
	runner := &scriptedRunner{repo: repo, outcomes: outcomes}

	p := New(Config{Batches: repo, Comparisons: &fakeComparisonRepo{}, Child: runner, Aggregator: &fakeAggregator{}})

	err := p.Run(context.Background(), b.ID)
	assert.Error(t, err)
	assert.Equal(t, batch.Failed, repo.b.Status)
	assert.Equal(t, "all analyses failed", *repo.b.ErrorMessage)
}

func TestRunAggregatorFailureFailsBatch(t *testing.T) {
	b, jobs := buildBatch(2)
	repo := newFakeBatchRepo(b, jobs)
	runner := &scriptedRunner{repo: repo, outcomes: map[string]analysis.JobStatus{}}

	p := New(Config{
		Batches:     repo,
		Comparisons: &fakeComparisonRepo{},
		Child:       runner,
		Aggregator:  &fakeAggregator{err: errors.New("narrative exhausted")},
	})

	err := p.Run(context.Background(), b.ID)
	assert.Error(t, err)
	assert.Equal(t, batch.Failed, repo.b.Status)
}

func TestRunRespectsConcurrencyLimit(t *testing.T) {
	b, jobs := buildBatch(5)
	repo := newFakeBatchRepo(b, jobs)

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	runner := &concurrencyTrackingRunner{repo: repo, onStart: func() {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
	}, onEnd: func() {
		mu.Lock()
		inFlight--
		mu.Unlock()
	}}

	p := New(Config{
		Batches:     repo,
		Comparisons: &fakeComparisonRepo{},
		Child:       runner,
		Aggregator:  &fakeAggregator{result: &batch.Comparison{}},
		Concurrency: 2,
	})

	err := p.Run(context.Background(), b.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, maxInFlight, 2)
}

type concurrencyTrackingRunner struct {
	repo    *fakeBatchRepo
	onStart func()
	onEnd   func()
}

func (r *concurrencyTrackingRunner) Run(ctx context.Context, id ulid.ULID) error {
	r.onStart()
	defer r.onEnd()
	r.repo.setJobStatus(id, analysis.JobCompleted)
	r.repo.putArtifact(&analysis.Artifact{JobID: id, RuleScore: 80, SemanticScore: 80})
	return nil
}
