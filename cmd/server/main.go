// Command server runs the orchestrator's HTTP API: job and batch
// submission, progress streaming, and result retrieval. It generalizes
// the teacher's server entrypoint (cmd/server/main.go: load config, run
// migrations if configured, start the app, wait for a shutdown signal)
// to this module's single HTTP surface — the gRPC server, swagger docs,
// and Brokle-specific auth scheme annotations are dropped, since this
// module has no gRPC surface and no authentication in scope.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"webscope/internal/app"
	"webscope/internal/config"
	"webscope/internal/migration"
	"webscope/internal/version"
	"webscope/pkg/logging"
)

func main() {
	log.Printf("webscope server %s starting", version.Get())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	if cfg.Database.AutoMigrate {
		log.Println("running database migrations...")

		logger := logging.NewTextLogger(logging.ParseLevel(cfg.Logging.Level))
		manager, err := migration.NewManager(cfg, logger)
		if err != nil {
			log.Fatalf("failed to initialize migration manager: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		if err := manager.AutoMigrate(ctx); err != nil {
			cancel()
			log.Fatalf("auto-migration failed: %v", err)
		}
		cancel()

		if err := manager.Shutdown(); err != nil {
			log.Printf("warning: failed to shutdown migration manager: %v", err)
		}
		log.Println("migrations completed successfully")
	}

	application, err := app.NewServer(cfg)
	if err != nil {
		log.Fatalf("failed to initialize server: %v", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server failed: %v", err)
		}
	case <-quit:
		fmt.Println("shutting down server...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := application.Shutdown(ctx); err != nil {
		log.Printf("server forced to shutdown: %v", err)
	}
	fmt.Println("server stopped")
}
