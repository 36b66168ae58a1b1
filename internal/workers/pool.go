// Package workers runs orchestration pipelines off a single-process FIFO
// queue. It generalizes the teacher's evaluator worker lifecycle
// (internal/workers/evaluation/evaluator_worker.go: atomic start/stop,
// sync.WaitGroup-bounded goroutines, structured slog lifecycle logging) to
// a plain in-memory channel queue instead of a Redis-Streams consumer
// group — this repo runs single-process, so there is no cross-process
// consumption to coordinate (spec §1 excludes distributed orchestration as
// a non-goal).
package workers

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"webscope/pkg/ulid"
)

// Runner processes one unit of work to a terminal state. *pipeline.Pipeline
// and *batchpipeline.Pipeline both satisfy this structurally.
type Runner interface {
	Run(ctx context.Context, id ulid.ULID) error
}

// Config configures a Pool.
type Config struct {
	Name       string // "job" or "batch", used in log attributes
	Runner     Runner
	Workers    int // number of concurrent processing goroutines, default 3
	QueueDepth int // buffered channel capacity, default 64
	Logger     *slog.Logger
}

// Pool is a FIFO queue of entity ids drained by a fixed number of worker
// goroutines, each calling Runner.Run to completion. Submitting an id
// already in flight is a no-op: the sync.Map dedupe set ensures a given
// job/batch is never processed by two goroutines at once.
type Pool struct {
	name    string
	runner  Runner
	workers int
	logger  *slog.Logger

	queue   chan ulid.ULID
	inFlight sync.Map // ulid.ULID -> struct{}

	quit    chan struct{}
	wg      sync.WaitGroup
	running int64

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a Pool. Call Start to begin processing.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 3
	}
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 64
	}
	return &Pool{
		name:    cfg.Name,
		runner:  cfg.Runner,
		workers: workers,
		logger:  cfg.Logger,
		queue:   make(chan ulid.ULID, depth),
		quit:    make(chan struct{}),
	}
}

// Start spawns the pool's worker goroutines.
func (p *Pool) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt64(&p.running, 0, 1) {
		return errors.New("pool already running")
	}

	p.logger.Info("starting worker pool", "pool", p.name, "workers", p.workers)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	return nil
}

// Stop drains in-flight work and returns once every worker goroutine has
// exited. Queued-but-unstarted items are dropped.
func (p *Pool) Stop() {
	if !atomic.CompareAndSwapInt64(&p.running, 1, 0) {
		return
	}
	p.logger.Info("stopping worker pool", "pool", p.name)
	close(p.quit)
	p.wg.Wait()
	p.logger.Info("worker pool stopped",
		"pool", p.name,
		"processed", p.processed.Load(),
		"failed", p.failed.Load(),
	)
}

// Submit enqueues id for processing. It is a no-op if id is already queued
// or in flight, and non-blocking: if the queue is full, Submit reports the
// overflow via the returned error rather than blocking the caller (the
// caller is typically an HTTP handler).
func (p *Pool) Submit(id ulid.ULID) error {
	if _, loaded := p.inFlight.LoadOrStore(id, struct{}{}); loaded {
		return nil
	}
	select {
	case p.queue <- id:
		return nil
	default:
		p.inFlight.Delete(id)
		return errors.New("worker pool queue is full")
	}
}

func (p *Pool) worker(ctx context.Context, index int) {
	defer p.wg.Done()

	for {
		select {
		case <-p.quit:
			return
		case <-ctx.Done():
			return
		case id, ok := <-p.queue:
			if !ok {
				return
			}
			p.process(ctx, index, id)
		}
	}
}

func (p *Pool) process(ctx context.Context, workerIndex int, id ulid.ULID) {
	defer p.inFlight.Delete(id)

	start := time.Now()
	p.logger.Debug("processing unit of work", "pool", p.name, "worker", workerIndex, "id", id.String())

	err := p.runner.Run(ctx, id)

	duration := time.Since(start)
	if err != nil {
		p.failed.Add(1)
		p.logger.Error("unit of work failed", "pool", p.name, "id", id.String(), "duration", duration, "error", err)
		return
	}

	p.processed.Add(1)
	p.logger.Info("unit of work completed", "pool", p.name, "id", id.String(), "duration", duration)
}

// Stats returns current pool counters.
func (p *Pool) Stats() (processed, failed int64) {
	return p.processed.Load(), p.failed.Load()
}
