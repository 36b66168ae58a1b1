// Package app wires the orchestrator's concrete dependencies together:
// config, structured logging, database connections, repositories,
// external capabilities (fetcher, semantic scorer, blob store), the two
// pipelines, the two worker pools, the HTTP handlers, and the HTTP
// server. It generalizes the teacher's dependency-injection container
// (internal/app/providers.go) from its ~25-service enterprise control
// plane down to the single analysis/batch domain this module owns.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"webscope/internal/config"
	"webscope/internal/core/domain/analysis"
	"webscope/internal/core/domain/batch"
	"webscope/internal/core/services/aggregator"
	"webscope/internal/core/services/batchpipeline"
	"webscope/internal/core/services/pipeline"
	"webscope/internal/core/services/semanticscorer"
	"webscope/internal/infrastructure/database"
	"webscope/internal/infrastructure/fetcher"
	"webscope/internal/infrastructure/llm"
	"webscope/internal/infrastructure/progressbus"
	analysisRepo "webscope/internal/infrastructure/repository/analysis"
	batchRepo "webscope/internal/infrastructure/repository/batch"
	"webscope/internal/infrastructure/storage"
	httpTransport "webscope/internal/transport/http"
	"webscope/internal/transport/http/handlers"
	batchHandler "webscope/internal/transport/http/handlers/batch"
	"webscope/internal/transport/http/handlers/events"
	"webscope/internal/transport/http/handlers/health"
	jobHandler "webscope/internal/transport/http/handlers/job"
	"webscope/internal/transport/http/handlers/metrics"
	"webscope/internal/transport/http/middleware"
	"webscope/internal/workers"
)

// Core bundles the dependencies shared by both deployment modes: database
// connections, repositories, external capabilities, and the two
// pipelines. Both the HTTP server and the worker pools are built on top
// of it.
type Core struct {
	Config *config.Config
	Logger *slog.Logger

	Postgres *database.PostgresDB
	Redis    *database.RedisDB

	Jobs        analysis.JobRepository
	Artifacts   analysis.ArtifactRepository
	Batches     batch.BatchRepository
	Comparisons batch.ComparisonRepository

	Progress  *progressbus.Bus
	BlobStore analysis.BlobStore // nil when blob storage is not configured

	JobPipeline   *pipeline.Pipeline
	BatchPipeline *batchpipeline.Pipeline
}

// ProvideCore builds every dependency shared by the server and worker
// deployment modes.
func ProvideCore(cfg *config.Config, logger *slog.Logger) (*Core, error) {
	pg, err := database.NewPostgresDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisDB, err := database.NewRedisDB(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	jobs := analysisRepo.NewJobRepositoryWithCache(pg.DB, redisDB)
	artifacts := analysisRepo.NewArtifactRepository(pg.DB)
	batches := batchRepo.NewBatchRepositoryWithCache(pg.DB, redisDB)
	comparisons := batchRepo.NewComparisonRepository(pg.DB)

	fetchTimeout := cfg.Fetcher.Timeout
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	webFetcher := fetcher.New(&http.Client{Timeout: fetchTimeout}, cfg.Fetcher.UserAgent)

	llmProvider := llm.NewOpenAIProvider(cfg.Scorer.APIKey, cfg.Scorer.Model, logger)
	semantic := semanticscorer.New(llmProvider)

	progress := progressbus.New()

	var blobStore analysis.BlobStore
	if cfg.BlobStorage.BucketName != "" {
		s3Client, err := storage.NewS3Client(&cfg.BlobStorage, logger)
		if err != nil {
			return nil, fmt.Errorf("init blob store: %w", err)
		}
		blobStore = s3Client
	}

	jobPipeline := pipeline.New(pipeline.Config{
		Jobs:         jobs,
		Artifacts:    artifacts,
		Fetcher:      webFetcher,
		Scorer:       semantic,
		Progress:     progress,
		BlobStore:    blobStore,
		FetchTimeout: fetchTimeout,
	})

	agg := aggregator.New(semantic)

	batchPipeline := batchpipeline.New(batchpipeline.Config{
		Batches:     batches,
		Comparisons: comparisons,
		Child:       jobPipeline,
		Aggregator:  agg,
		Progress:    progress,
		Concurrency: cfg.Workers.FanOutSemaphore,
	})

	return &Core{
		Config:        cfg,
		Logger:        logger,
		Postgres:      pg,
		Redis:         redisDB,
		Jobs:          jobs,
		Artifacts:     artifacts,
		Batches:       batches,
		Comparisons:   comparisons,
		Progress:      progress,
		BlobStore:     blobStore,
		JobPipeline:   jobPipeline,
		BatchPipeline: batchPipeline,
	}, nil
}

// Shutdown releases the core's database connections.
func (c *Core) Shutdown() error {
	var firstErr error
	if c.Postgres != nil && c.Postgres.SqlDB != nil {
		if err := c.Postgres.SqlDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if c.Redis != nil && c.Redis.Client != nil {
		if err := c.Redis.Client.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HealthCheck reports liveness of the core's external dependencies.
func (c *Core) HealthCheck() map[string]string {
	status := map[string]string{"postgres": "ok", "redis": "ok"}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if c.Postgres == nil || c.Postgres.SqlDB == nil || c.Postgres.SqlDB.PingContext(ctx) != nil {
		status["postgres"] = "unavailable"
	}
	if c.Redis == nil || c.Redis.Client == nil || c.Redis.Client.Ping(ctx).Err() != nil {
		status["redis"] = "unavailable"
	}
	return status
}

// Workers bundles the two background worker pools.
type Workers struct {
	Job   *workers.Pool
	Batch *workers.Pool
}

// ProvideWorkers builds the job and batch worker pools on top of Core's
// pipelines.
func ProvideWorkers(core *Core) *Workers {
	jobPool := workers.New(workers.Config{
		Name:       "job",
		Runner:     core.JobPipeline,
		Workers:    core.Config.Workers.JobPoolSize,
		QueueDepth: core.Config.Workers.QueueDepth,
		Logger:     core.Logger,
	})

	batchPool := workers.New(workers.Config{
		Name:       "batch",
		Runner:     core.BatchPipeline,
		Workers:    core.Config.Workers.BatchPoolSize,
		QueueDepth: core.Config.Workers.QueueDepth,
		Logger:     core.Logger,
	})

	return &Workers{Job: jobPool, Batch: batchPool}
}

// Server bundles the HTTP handler tree and the server itself.
type Server struct {
	Handlers   *handlers.Handlers
	HTTPServer *httpTransport.Server
}

// ProvideServer builds the HTTP handler tree and the HTTP server, wired
// to submit new jobs/batches onto the given worker pools.
func ProvideServer(core *Core, w *Workers) *Server {
	h := &handlers.Handlers{
		Job:     jobHandler.New(core.Logger, core.Jobs, core.Artifacts, w.Job),
		Batch:   batchHandler.New(core.Logger, core.Batches, core.Comparisons, w.Batch),
		Events:  events.New(core.Logger, core.Progress),
		Health:  health.New(core.Config, core.Postgres.DB, core.Redis.Client),
		Metrics: metrics.New(),
	}

	rateLimit := middleware.NewRateLimitMiddleware(
		core.Redis.Client,
		core.Config.Server.RateLimitPerIP,
		core.Config.Server.RateLimitWindow,
		core.Logger,
	)

	server := httpTransport.NewServer(core.Config, core.Logger, h, rateLimit)

	return &Server{Handlers: h, HTTPServer: server}
}
