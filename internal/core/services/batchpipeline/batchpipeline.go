// Package batchpipeline implements the batch-of-URLs fan-out pipeline
// (spec §4.6): semaphore-bounded concurrent child pipelines, coalesced
// progress aggregation, the quorum rule, and handoff to the Aggregator.
package batchpipeline

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"webscope/internal/core/domain/analysis"
	"webscope/internal/core/domain/batch"
	"webscope/internal/core/domain/common"
	apperrors "webscope/pkg/errors"
	"webscope/pkg/ulid"
)

// clock is overridable in tests; production code always uses time.Now.
var clock = time.Now

// ChildRunner drives a single child Job to terminal state. Satisfied by
// *pipeline.Pipeline; kept as an interface here to avoid a package
// dependency cycle and to make the fan-out independently testable.
type ChildRunner interface {
	Run(ctx context.Context, id ulid.ULID) error
}

// Aggregator produces a Comparison from a Batch's completed children.
// Satisfied by *aggregator.Aggregator.
type Aggregator interface {
	Aggregate(ctx context.Context, b *batch.Batch, jobs []*analysis.Job, artifacts []*analysis.Artifact) (*batch.Comparison, error)
}

// defaultConcurrency is the semaphore capacity C (spec §4.6, §5).
const defaultConcurrency = 3

// progressCoalesceInterval bounds how often the aggregate batch progress
// is written to the Batch row (spec: "at most once per second").
const progressCoalesceInterval = time.Second

// Pipeline owns one Batch and its member Jobs' fan-out.
type Pipeline struct {
	batches     batch.BatchRepository
	comparisons batch.ComparisonRepository
	child       ChildRunner
	aggregator  Aggregator
	progress    common.ProgressBus

	concurrency int
}

// Config bundles the batch pipeline's dependencies and tunables.
type Config struct {
	Batches     batch.BatchRepository
	Comparisons batch.ComparisonRepository
	Child       ChildRunner
	Aggregator  Aggregator
	Progress    common.ProgressBus
	Concurrency int // default 3
}

// New builds a Pipeline from cfg, applying the default concurrency when
// unset.
func New(cfg Config) *Pipeline {
	c := cfg.Concurrency
	if c <= 0 {
		c = defaultConcurrency
	}
	return &Pipeline{
		batches:     cfg.Batches,
		comparisons: cfg.Comparisons,
		child:       cfg.Child,
		aggregator:  cfg.Aggregator,
		progress:    cfg.Progress,
		concurrency: c,
	}
}

// Run drives id's batch and all its member jobs to a terminal state.
func (p *Pipeline) Run(ctx context.Context, id ulid.ULID) error {
	b, jobs, _, err := p.batches.Snapshot(ctx, id)
	if err != nil {
		return err
	}

	startedAt := clock()
	processing := batch.Processing
	five := 5
	if _, err := p.batches.Advance(ctx, id, batch.Mutation{Status: &processing, Progress: &five, StartedAt: &startedAt}); err != nil {
		return err
	}
	p.publish(ctx, id, batch.Processing, 5)

	total := len(b.Members)
	tracker := newProgressTracker(total)

	var wg sync.WaitGroup
	sem := semaphore.NewWeighted(int64(p.concurrency))
	coalesceStop := p.startProgressCoalescer(ctx, id, tracker)
	defer coalesceStop()

	for _, member := range b.Members {
		member := member
		wg.Add(1)

		unsubscribe := func() {}
		if p.progress != nil {
			var ch <-chan common.ProgressEvent
			ch, unsubscribe = p.progress.Subscribe(member.ChildJobID.String())
			go tracker.drain(ch, member.ChildJobID.String())
		}

		go func() {
			defer wg.Done()
			defer unsubscribe()

			if err := sem.Acquire(ctx, 1); err != nil {
				tracker.markTerminal(member.ChildJobID.String(), 100)
				return
			}
			defer sem.Release(1)

			_ = p.child.Run(ctx, member.ChildJobID)
			tracker.markTerminal(member.ChildJobID.String(), 100)
		}()
	}

	wg.Wait()
	coalesceStop()

	finalBatch, finalJobs, artifacts, err := p.batches.Snapshot(ctx, id)
	if err != nil {
		return err
	}

	completed, failed := 0, 0
	for _, j := range finalJobs {
		switch j.Status {
		case analysis.JobCompleted:
			completed++
		case analysis.JobFailed:
			failed++
		}
	}

	return p.finish(ctx, finalBatch, finalJobs, artifacts, completed, failed)
}

func (p *Pipeline) finish(ctx context.Context, b *batch.Batch, jobs []*analysis.Job, artifacts []*analysis.Artifact, completed, failed int) error {
	hundred := 100
	completedAt := clock()
	failedStatus := batch.Failed

	switch {
	case completed == 0:
		msg := "all analyses failed"
		if _, err := p.batches.Advance(ctx, b.ID, batch.Mutation{
			Status: &failedStatus, Progress: &hundred, CompletedAt: &completedAt,
			CompletedCount: &completed, FailedCount: &failed, ErrorMessage: &msg,
		}); err != nil {
			return err
		}
		p.publish(ctx, b.ID, batch.Failed, 100)
		return apperrors.NewInvariantViolationError(msg)

	case completed == 1:
		msg := "insufficient successful analyses (minimum 2 required)"
		if _, err := p.batches.Advance(ctx, b.ID, batch.Mutation{
			Status: &failedStatus, Progress: &hundred, CompletedAt: &completedAt,
			CompletedCount: &completed, FailedCount: &failed, ErrorMessage: &msg,
		}); err != nil {
			return err
		}
		p.publish(ctx, b.ID, batch.Failed, 100)
		return apperrors.NewInvariantViolationError(msg)
	}

	comparison, err := p.aggregator.Aggregate(ctx, b, jobs, artifacts)
	if err != nil {
		msg := err.Error()
		if _, advErr := p.batches.Advance(ctx, b.ID, batch.Mutation{
			Status: &failedStatus, Progress: &hundred, CompletedAt: &completedAt,
			CompletedCount: &completed, FailedCount: &failed, ErrorMessage: &msg,
		}); advErr != nil {
			return advErr
		}
		p.publish(ctx, b.ID, batch.Failed, 100)
		return err
	}

	// The batch must already be terminal (and carry its final completed
	// count) before Save: ComparisonRepository.Save rejects a non-terminal
	// batch with INVARIANT_VIOLATION, so the Completed transition has to
	// land first.
	completedStatus := batch.Completed
	if _, err := p.batches.Advance(ctx, b.ID, batch.Mutation{
		Status: &completedStatus, Progress: &hundred, CompletedAt: &completedAt,
		CompletedCount: &completed, FailedCount: &failed,
	}); err != nil {
		return err
	}

	if err := p.comparisons.Save(ctx, comparison); err != nil {
		msg := err.Error()
		if _, advErr := p.batches.Advance(ctx, b.ID, batch.Mutation{
			Status: &failedStatus, Progress: &hundred, CompletedAt: &completedAt,
			CompletedCount: &completed, FailedCount: &failed, ErrorMessage: &msg,
		}); advErr != nil {
			return advErr
		}
		p.publish(ctx, b.ID, batch.Failed, 100)
		return err
	}

	p.publish(ctx, b.ID, batch.Completed, 100)
	return nil
}

func (p *Pipeline) publish(ctx context.Context, id ulid.ULID, status batch.Status, progress int) {
	if p.progress == nil {
		return
	}
	p.progress.Publish(ctx, common.ProgressEvent{
		EntityID: id.String(),
		Status:   string(status),
		Progress: progress,
	})
}

// startProgressCoalescer writes the tracker's aggregate progress to the
// Batch row and publishes it under the batch key at most once per second
// until stopped. The write never regresses below the batch's "started"
// progress of 5: the Entity Store rejects non-monotonic progress, and the
// tracker's own aggregate reads 0 until the first child reports in. The
// returned stop func blocks until the goroutine's final write is done, so
// no Processing write can land after the batch's terminal transition.
func (p *Pipeline) startProgressCoalescer(ctx context.Context, id ulid.ULID, tracker *progressTracker) func() {
	stop := make(chan struct{})
	done := make(chan struct{})
	var once sync.Once
	last := 5

	go func() {
		defer close(done)
		ticker := time.NewTicker(progressCoalesceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				last = p.writeProgress(ctx, id, tracker, last)
			case <-stop:
				last = p.writeProgress(ctx, id, tracker, last)
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return func() {
		once.Do(func() { close(stop) })
		<-done
	}
}

func (p *Pipeline) writeProgress(ctx context.Context, id ulid.ULID, tracker *progressTracker, last int) int {
	progress := tracker.aggregate()
	if progress < last {
		progress = last
	}
	processing := batch.Processing
	if _, err := p.batches.Advance(ctx, id, batch.Mutation{Status: &processing, Progress: &progress}); err != nil {
		return last
	}
	p.publish(ctx, id, batch.Processing, progress)
	return progress
}

// progressTracker computes `floor(Σ child_progress / total)` clamped at
// 99 until the batch itself terminates (spec §4.6 REDESIGN: this is the
// corrected straight-average formula, not the original implementation's
// flawed one — see DESIGN.md).
type progressTracker struct {
	mu       sync.Mutex
	total    int
	progress map[string]int
}

func newProgressTracker(total int) *progressTracker {
	return &progressTracker{total: total, progress: make(map[string]int)}
}

func (t *progressTracker) drain(ch <-chan common.ProgressEvent, key string) {
	for ev := range ch {
		t.set(key, ev.Progress)
	}
}

func (t *progressTracker) set(key string, progress int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress[key] = progress
}

func (t *progressTracker) markTerminal(key string, progress int) {
	t.set(key, progress)
}

func (t *progressTracker) aggregate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.total == 0 {
		return 0
	}
	sum := 0
	for _, v := range t.progress {
		sum += v
	}
	agg := int(math.Floor(float64(sum) / float64(t.total)))
	if agg > 99 {
		agg = 99
	}
	return agg
}
