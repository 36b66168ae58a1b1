package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webscope/internal/core/domain/analysis"
	"webscope/internal/core/domain/common"
	"webscope/pkg/ulid"
)

type fakeJobRepo struct {
	mu   sync.Mutex
	jobs map[string]*analysis.Job
}

func newFakeJobRepo(job *analysis.Job) *fakeJobRepo {
	return &fakeJobRepo{jobs: map[string]*analysis.Job{job.ID.String(): job}}
}

func (r *fakeJobRepo) Create(ctx context.Context, url string, batchID *ulid.ULID) (*analysis.Job, error) {
	panic("not used in these tests")
}

func (r *fakeJobRepo) Get(ctx context.Context, id ulid.ULID) (*analysis.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id.String()]
	if !ok {
		return nil, errors.New("job not found")
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) Advance(ctx context.Context, id ulid.ULID, mutation analysis.JobMutation) (*analysis.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id.String()]
	if !ok {
		return nil, errors.New("job not found")
	}
	if mutation.Status != nil {
		job.Status = *mutation.Status
	}
	if mutation.Progress != nil {
		job.Progress = *mutation.Progress
	}
	if mutation.CurrentStep != nil {
		job.CurrentStep = *mutation.CurrentStep
	}
	if mutation.StartedAt != nil {
		job.StartedAt = mutation.StartedAt
	}
	if mutation.CompletedAt != nil {
		job.CompletedAt = mutation.CompletedAt
	}
	if mutation.ErrorMessage != nil {
		job.ErrorMessage = mutation.ErrorMessage
	}
	if mutation.ErrorDetails != nil {
		job.ErrorDetails = mutation.ErrorDetails
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) ListByBatch(ctx context.Context, batchID ulid.ULID) ([]*analysis.Job, error) {
	panic("not used in these tests")
}

type fakeArtifactRepo struct {
	mu    sync.Mutex
	saved *analysis.Artifact
}

func (r *fakeArtifactRepo) Save(ctx context.Context, artifact *analysis.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = artifact
	return nil
}

func (r *fakeArtifactRepo) Get(ctx context.Context, jobID ulid.ULID) (*analysis.Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		return nil, errors.New("not found")
	}
	return r.saved, nil
}

func (r *fakeArtifactRepo) ListByJobIDs(ctx context.Context, jobIDs []ulid.ULID) ([]*analysis.Artifact, error) {
	panic("not used in these tests")
}

type fakeFetcher struct {
	snapshot *analysis.PageSnapshot
	err      error
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*analysis.PageSnapshot, error) {
	return f.snapshot, f.err
}

type fakeScorer struct {
	report *analysis.SemanticReport
	err    error
}

func (s *fakeScorer) Score(ctx context.Context, url, pageText, title, description string) (*analysis.SemanticReport, error) {
	return s.report, s.err
}

func (s *fakeScorer) Compare(ctx context.Context, competitors []analysis.CompetitorSummary) (*analysis.NarrativeComparison, error) {
	panic("not used in these tests")
}

func sampleSnapshot() *analysis.PageSnapshot {
	return &analysis.PageSnapshot{
		URL:  "https://example.com",
		HTML: "<html></html>",
		Text: "Welcome to Example",
		Meta: analysis.PageMeta{Title: "Example", Description: "An example site", ViewportPresent: true},
		Headings: map[int][]string{
			1: {"Example"},
		},
		LoadTimeSeconds: 1.0,
	}
}

func sampleSemanticReport() *analysis.SemanticReport {
	return &analysis.SemanticReport{
		WhatItDoes:        "demonstrates examples",
		ClarityScore:      8,
		OverallImpression: "clear",
		Score:             75,
	}
}

func TestRunHappyPathCompletesJobAndPersistsArtifact(t *testing.T) {
	job := &analysis.Job{ID: ulid.New(), URL: "https://example.com", Status: analysis.JobPending}
	jobs := newFakeJobRepo(job)
	artifacts := &fakeArtifactRepo{}
	bus := &recordingBus{}

	p := New(Config{
		Jobs:      jobs,
		Artifacts: artifacts,
		Fetcher:   &fakeFetcher{snapshot: sampleSnapshot()},
		Scorer:    &fakeScorer{report: sampleSemanticReport()},
		Progress:  bus,
	})

	err := p.Run(context.Background(), job.ID)
	require.NoError(t, err)

	finalJob, _ := jobs.Get(context.Background(), job.ID)
	assert.Equal(t, analysis.JobCompleted, finalJob.Status)
	assert.Equal(t, 100, finalJob.Progress)

	require.NotNil(t, artifacts.saved)
	assert.Equal(t, job.ID, artifacts.saved.JobID)

	want := []int{0, 10, 30, 35, 60, 65, 90, 95, 100}
	assert.Equal(t, want, bus.progressValues())
}

func TestRunCrawlFailureFailsJob(t *testing.T) {
	job := &analysis.Job{ID: ulid.New(), URL: "https://example.com", Status: analysis.JobPending}
	jobs := newFakeJobRepo(job)
	artifacts := &fakeArtifactRepo{}

	p := New(Config{
		Jobs:      jobs,
		Artifacts: artifacts,
		Fetcher:   &fakeFetcher{err: errors.New("connection refused")},
		Scorer:    &fakeScorer{report: sampleSemanticReport()},
		Progress:  &recordingBus{},
	})

	err := p.Run(context.Background(), job.ID)
	assert.Error(t, err)

	finalJob, _ := jobs.Get(context.Background(), job.ID)
	assert.Equal(t, analysis.JobFailed, finalJob.Status)
	assert.Equal(t, 100, finalJob.Progress)
	require.NotNil(t, finalJob.ErrorDetails)
	assert.Equal(t, "CRAWL_FAILED", finalJob.ErrorDetails.Kind)
	assert.Nil(t, artifacts.saved)
}

func TestRunSemanticFailureFailsJobWithNoArtifact(t *testing.T) {
	job := &analysis.Job{ID: ulid.New(), URL: "https://example.com", Status: analysis.JobPending}
	jobs := newFakeJobRepo(job)
	artifacts := &fakeArtifactRepo{}

	p := New(Config{
		Jobs:      jobs,
		Artifacts: artifacts,
		Fetcher:   &fakeFetcher{snapshot: sampleSnapshot()},
		Scorer:    &fakeScorer{err: errors.New("llm unavailable")},
		Progress:  &recordingBus{},
	})

	err := p.Run(context.Background(), job.ID)
	assert.Error(t, err)

	finalJob, _ := jobs.Get(context.Background(), job.ID)
	assert.Equal(t, analysis.JobFailed, finalJob.Status)
	assert.Equal(t, "SEMANTIC_FAILED", finalJob.ErrorDetails.Kind)
	assert.Nil(t, artifacts.saved)
}

type fakeBlobStore struct {
	mu       sync.Mutex
	uploaded map[string][]byte
	ref      string
	err      error
}

func (s *fakeBlobStore) Upload(ctx context.Context, key string, content []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	if s.uploaded == nil {
		s.uploaded = make(map[string][]byte)
	}
	s.uploaded[key] = content
	return s.ref, nil
}

func TestRunUploadsScreenshotWhenFetcherCapturesOne(t *testing.T) {
	job := &analysis.Job{ID: ulid.New(), URL: "https://example.com", Status: analysis.JobPending}
	jobs := newFakeJobRepo(job)
	artifacts := &fakeArtifactRepo{}
	store := &fakeBlobStore{ref: "s3://bucket/screenshots/" + job.ID.String() + ".png"}

	snapshot := sampleSnapshot()
	snapshot.ScreenshotBytes = []byte("fake-png-bytes")

	p := New(Config{
		Jobs:      jobs,
		Artifacts: artifacts,
		Fetcher:   &fakeFetcher{snapshot: snapshot},
		Scorer:    &fakeScorer{report: sampleSemanticReport()},
		Progress:  &recordingBus{},
		BlobStore: store,
	})

	err := p.Run(context.Background(), job.ID)
	require.NoError(t, err)

	require.NotNil(t, artifacts.saved)
	assert.Equal(t, store.ref, artifacts.saved.ScreenshotRef)
}

func TestRunLeavesScreenshotRefEmptyWhenUploadFails(t *testing.T) {
	job := &analysis.Job{ID: ulid.New(), URL: "https://example.com", Status: analysis.JobPending}
	jobs := newFakeJobRepo(job)
	artifacts := &fakeArtifactRepo{}
	store := &fakeBlobStore{err: errors.New("bucket unreachable")}

	snapshot := sampleSnapshot()
	snapshot.ScreenshotBytes = []byte("fake-png-bytes")

	p := New(Config{
		Jobs:      jobs,
		Artifacts: artifacts,
		Fetcher:   &fakeFetcher{snapshot: snapshot},
		Scorer:    &fakeScorer{report: sampleSemanticReport()},
		Progress:  &recordingBus{},
		BlobStore: store,
	})

	err := p.Run(context.Background(), job.ID)
	require.NoError(t, err)

	require.NotNil(t, artifacts.saved)
	assert.Empty(t, artifacts.saved.ScreenshotRef)
}

type recordingBus struct {
	mu     sync.Mutex
	events []common.ProgressEvent
}

func (b *recordingBus) Publish(ctx context.Context, event common.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) Subscribe(entityID string) (<-chan common.ProgressEvent, func()) {
	panic("not used in these tests")
}

func (b *recordingBus) progressValues() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	values := make([]int, len(b.events))
	for i, e := range b.events {
		values[i] = e.Progress
	}
	return values
}
