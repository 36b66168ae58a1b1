// Command worker runs the orchestrator's job and batch worker pools with
// no HTTP surface. It generalizes the teacher's worker entrypoint
// (cmd/worker/main.go: load config, start the app, wait for a shutdown
// signal) to this module's two pools — the teacher's telemetry stream
// consumer and usage-aggregation workers are dropped, since this module
// has no telemetry ingestion or billing domain.
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
	"webscope/internal/version"
)

func main() {
	log.Printf("webscope worker %s starting", version.Get())

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Workers do not run migrations; the server owns schema setup.

	worker, err := app.NewWorker(cfg)
	if err != nil {
		log.Fatalf("failed to initialize worker: %v", err)
	}

	if err := worker.Start(); err != nil {
		log.Fatalf("failed to start workers: %v", err)
	}
	log.Println("workers started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("shutting down workers...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := worker.Shutdown(ctx); err != nil {
		log.Printf("workers forced to shutdown: %v", err)
	}
	fmt.Println("workers stopped")
}
