// Package app assembles the orchestrator's two deployment modes on top
// of the dependency container built by providers.go: a server mode that
// runs the HTTP API together with the job and batch worker pools, and a
// worker mode that runs only the two worker pools. It generalizes the teacher's App lifecycle
// (internal/app/app.go: NewServer/NewWorker, errgroup-driven Start,
// sync.Once-guarded graceful Shutdown) down to this module's two pools
// instead of its gRPC server, telemetry consumer, and four background
// workers.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"webscope/internal/config"
	"webscope/pkg/logging"
)

// Mode selects which half of the container App.Start runs.
type Mode string

const (
	ModeServer Mode = "server"
	ModeWorker Mode = "worker"
)

// App owns one deployment mode's lifecycle: construction, Start, and a
// single graceful Shutdown.
type App struct {
	config *config.Config
	logger *slog.Logger
	mode   Mode

	core    *Core
	workers *Workers
	server  *Server

	shutdownOnce sync.Once
}

// NewServer builds an App running the HTTP API; the job and batch
// worker pools also run in-process (Submit is called from the HTTP
// handlers), since this module has no separate queue to hand work off
// to.
func NewServer(cfg *config.Config) (*App, error) {
	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	core, err := ProvideCore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize core: %w", err)
	}

	w := ProvideWorkers(core)
	server := ProvideServer(core, w)

	return &App{
		mode:    ModeServer,
		config:  cfg,
		logger:  logger,
		core:    core,
		workers: w,
		server:  server,
	}, nil
}

// NewWorker builds an App running only the job and batch worker pools,
// with no HTTP surface. It exists for deployments that want to scale
// pipeline throughput independently of the API; nothing currently feeds
// these pools work other than the server's own HTTP handlers; a worker
// deployment is only useful once something else (a queue consumer, a
// cron) starts submitting ids to it.
func NewWorker(cfg *config.Config) (*App, error) {
	logger := logging.NewLoggerWithFormat(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

	core, err := ProvideCore(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize core: %w", err)
	}

	w := ProvideWorkers(core)

	return &App{
		mode:    ModeWorker,
		config:  cfg,
		logger:  logger,
		core:    core,
		workers: w,
	}, nil
}

// Start launches the App's mode. In server mode it starts the two worker
// pools and then blocks serving HTTP until Shutdown is called. In worker
// mode it starts the two pools and returns immediately; the caller is
// responsible for waiting on a signal before calling Shutdown.
func (a *App) Start() error {
	a.logger.Info("starting application", "mode", a.mode)

	ctx := context.Background()
	// The pools get ctx, not the errgroup's derived context: that one is
	// cancelled as soon as Wait returns, which would stop every worker.
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.workers.Job.Start(ctx); err != nil {
			return fmt.Errorf("start job worker pool: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.workers.Batch.Start(ctx); err != nil {
			return fmt.Errorf("start batch worker pool: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if a.mode == ModeServer {
		return a.server.HTTPServer.Start()
	}
	return nil
}

// Shutdown gracefully stops whatever Start launched, at most once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.shutdownOnce.Do(func() {
		shutdownErr = a.doShutdown(ctx)
	})
	return shutdownErr
}

func (a *App) doShutdown(ctx context.Context) error {
	a.logger.Info("shutting down application", "mode", a.mode)

	var wg sync.WaitGroup

	if a.mode == ModeServer && a.server != nil && a.server.HTTPServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.server.HTTPServer.Shutdown(ctx); err != nil {
				a.logger.Error("failed to shutdown http server", "error", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.workers.Job.Stop()
		a.workers.Batch.Stop()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("shutdown timeout exceeded, forcing shutdown")
	}

	if err := a.core.Shutdown(); err != nil {
		a.logger.Error("failed to shutdown core", "error", err)
	}

	a.logger.Info("application shutdown complete")
	return ctx.Err()
}

// Health reports liveness of the app's external dependencies.
func (a *App) Health() map[string]string {
	if a.core == nil {
		return map[string]string{"status": "not initialized"}
	}
	return a.core.HealthCheck()
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger {
	return a.logger
}

// Config returns the application configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// Core returns the shared dependency container.
func (a *App) Core() *Core {
	return a.core
}

// Workers returns the two background worker pools.
func (a *App) Workers() *Workers {
	return a.workers
}
