// Package pipeline implements the single-URL analysis state machine
// (spec §4.5): PENDING -> PROCESSING -> (CRAWL, RULE, SEMANTIC, PERSIST)
// -> COMPLETED, with any stage failure taking the Job straight to FAILED.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"webscope/internal/core/domain/analysis"
	"webscope/internal/core/domain/common"
	"webscope/internal/core/services/rulescorer"
	apperrors "webscope/pkg/errors"
	"webscope/pkg/ulid"
)

// clock is overridable in tests; production code always uses time.Now.
var clock = time.Now

// Pipeline owns a single Job from PENDING to terminal state. It is the
// sole writer of the Job row and its Artifact while it runs.
type Pipeline struct {
	jobs      analysis.JobRepository
	artifacts analysis.ArtifactRepository
	fetcher   analysis.Fetcher
	scorer    analysis.SemanticScorer
	progress  common.ProgressBus
	blobStore analysis.BlobStore

	fetchTimeout time.Duration
}

// Config bundles the pipeline's capability dependencies and tunables.
type Config struct {
	Jobs         analysis.JobRepository
	Artifacts    analysis.ArtifactRepository
	Fetcher      analysis.Fetcher
	Scorer       analysis.SemanticScorer
	Progress     common.ProgressBus
	BlobStore    analysis.BlobStore // optional; nil disables screenshot upload
	FetchTimeout time.Duration      // default 30s
}

// New builds a Pipeline from cfg, applying the default fetch timeout
// when unset.
func New(cfg Config) *Pipeline {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Pipeline{
		jobs:         cfg.Jobs,
		artifacts:    cfg.Artifacts,
		fetcher:      cfg.Fetcher,
		scorer:       cfg.Scorer,
		progress:     cfg.Progress,
		blobStore:    cfg.BlobStore,
		fetchTimeout: timeout,
	}
}

// Run drives id from its current state to a terminal one. Called by a
// worker pool slot; the worker owns id exclusively for the duration of
// this call.
func (p *Pipeline) Run(ctx context.Context, id ulid.ULID) error {
	job, err := p.jobs.Get(ctx, id)
	if err != nil {
		return err
	}

	startedAt := clock()
	processing := analysis.JobProcessing
	startStep := "starting"
	zero := 0
	if _, err := p.jobs.Advance(ctx, id, analysis.JobMutation{
		Status: &processing, Progress: &zero, CurrentStep: &startStep, StartedAt: &startedAt,
	}); err != nil {
		return err
	}
	p.publish(ctx, id, analysis.JobProcessing, 0, startStep)

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, id, "CANCELLED", "crawl", 0, apperrors.NewCancelledError("cancelled before crawl"))
	}

	snapshot, err := p.crawl(ctx, id, job.URL)
	if err != nil {
		return p.fail(ctx, id, "CRAWL_FAILED", "crawl", 10, err)
	}

	ruleReport := p.rule(ctx, id, snapshot)

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, id, "CANCELLED", "semantic", 60, apperrors.NewCancelledError("cancelled before semantic"))
	}

	semanticReport, err := p.semantic(ctx, id, snapshot)
	if err != nil {
		return p.fail(ctx, id, "SEMANTIC_FAILED", "semantic", 65, err)
	}

	if err := ctx.Err(); err != nil {
		return p.fail(ctx, id, "CANCELLED", "persist", 90, apperrors.NewCancelledError("cancelled before persist"))
	}

	if err := p.persist(ctx, id, snapshot, ruleReport, semanticReport, startedAt); err != nil {
		return p.fail(ctx, id, "PERSIST_FAILED", "persist", 95, err)
	}

	return nil
}

func (p *Pipeline) crawl(ctx context.Context, id ulid.ULID, url string) (*analysis.PageSnapshot, error) {
	p.setProgress(ctx, id, 10, "crawling")

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	snapshot, err := p.fetcher.Fetch(fetchCtx, url)
	if err != nil {
		return nil, apperrors.NewFetchFailedError("fetch failed", err)
	}

	p.uploadScreenshot(ctx, id, snapshot)

	p.setProgress(ctx, id, 30, "crawled")
	return snapshot, nil
}

// uploadScreenshot archives a captured screenshot through the BlobStore and
// fills in ScreenshotRef. A capture source is out of scope for the default
// fetcher, so this is currently only exercised by fetchers that populate
// ScreenshotBytes. Upload failure never fails the Job; it just leaves
// ScreenshotRef empty.
func (p *Pipeline) uploadScreenshot(ctx context.Context, id ulid.ULID, snapshot *analysis.PageSnapshot) {
	if p.blobStore == nil || len(snapshot.ScreenshotBytes) == 0 {
		return
	}
	key := fmt.Sprintf("screenshots/%s.png", id.String())
	ref, err := p.blobStore.Upload(ctx, key, snapshot.ScreenshotBytes, "image/png")
	if err != nil {
		return
	}
	snapshot.ScreenshotRef = ref
}

func (p *Pipeline) rule(ctx context.Context, id ulid.ULID, snapshot *analysis.PageSnapshot) *analysis.ScoreReport {
	p.setProgress(ctx, id, 35, "scoring_rules")
	report := rulescorer.Score(snapshot)
	p.setProgress(ctx, id, 60, "rule_scored")
	return report
}

func (p *Pipeline) semantic(ctx context.Context, id ulid.ULID, snapshot *analysis.PageSnapshot) (*analysis.SemanticReport, error) {
	p.setProgress(ctx, id, 65, "scoring_semantic")

	text := snapshot.Text
	if len(text) > analysis.MaxSemanticInputChars {
		text = text[:analysis.MaxSemanticInputChars]
	}

	report, err := p.scorer.Score(ctx, snapshot.URL, text, snapshot.Meta.Title, snapshot.Meta.Description)
	if err != nil {
		return nil, err
	}

	p.setProgress(ctx, id, 90, "semantic_scored")
	return report, nil
}

func (p *Pipeline) persist(
	ctx context.Context,
	id ulid.ULID,
	snapshot *analysis.PageSnapshot,
	ruleReport *analysis.ScoreReport,
	semanticReport *analysis.SemanticReport,
	startedAt time.Time,
) error {
	p.setProgress(ctx, id, 95, "persisting")

	artifact := &analysis.Artifact{
		JobID:           id,
		PageHTML:        truncate(snapshot.HTML, analysis.MaxStoredContentBytes),
		PageText:        truncate(snapshot.Text, analysis.MaxStoredContentBytes),
		ScreenshotRef:   snapshot.ScreenshotRef,
		RuleScore:       ruleReport.Score,
		RuleReport:      *ruleReport,
		SemanticScore:   semanticReport.Score,
		SemanticReport:  *semanticReport,
		Suggestions:     mergeSuggestions(ruleReport.Suggestions, semanticReport.Suggestions),
		DurationSeconds: clock().Sub(startedAt).Seconds(),
	}

	if err := p.artifacts.Save(ctx, artifact); err != nil {
		return err
	}

	completed := analysis.JobCompleted
	hundred := 100
	completedAt := clock()
	doneStep := "completed"
	if _, err := p.jobs.Advance(ctx, id, analysis.JobMutation{
		Status: &completed, Progress: &hundred, CurrentStep: &doneStep, CompletedAt: &completedAt,
	}); err != nil {
		return err
	}

	p.publish(ctx, id, analysis.JobCompleted, 100, doneStep)
	return nil
}

func (p *Pipeline) fail(ctx context.Context, id ulid.ULID, kind, step string, progressAtFailure int, cause error) error {
	failed := analysis.JobFailed
	hundred := 100
	completedAt := clock()
	msg := cause.Error()
	details := &analysis.ErrorDetails{Kind: kind, Step: step, ProgressAtFailure: progressAtFailure}

	if _, err := p.jobs.Advance(ctx, id, analysis.JobMutation{
		Status: &failed, Progress: &hundred, CompletedAt: &completedAt,
		ErrorMessage: &msg, ErrorDetails: details,
	}); err != nil {
		return err
	}

	p.publish(ctx, id, analysis.JobFailed, 100, step)
	return cause
}

func (p *Pipeline) setProgress(ctx context.Context, id ulid.ULID, progress int, step string) {
	p.publish(ctx, id, analysis.JobProcessing, progress, step)
}

func (p *Pipeline) publish(ctx context.Context, id ulid.ULID, status analysis.JobStatus, progress int, step string) {
	if p.progress == nil {
		return
	}
	p.progress.Publish(ctx, common.ProgressEvent{
		EntityID:    id.String(),
		Status:      string(status),
		Progress:    progress,
		CurrentStep: step,
	})
}

// mergeSuggestions combines rule and semantic suggestions and sorts the
// result by priority (critical<high<medium<low), stable within tie.
func mergeSuggestions(rule, semantic []analysis.Suggestion) []analysis.Suggestion {
	merged := make([]analysis.Suggestion, 0, len(rule)+len(semantic))
	merged = append(merged, rule...)
	merged = append(merged, semantic...)

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Priority.Less(merged[j].Priority)
	})
	return merged
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}
