// Package handlers aggregates the HTTP handler structs the server wires
// into routes.
package handlers

import (
	batchHandler "webscope/internal/transport/http/handlers/batch"
	"webscope/internal/transport/http/handlers/events"
	"webscope/internal/transport/http/handlers/health"
	jobHandler "webscope/internal/transport/http/handlers/job"
	"webscope/internal/transport/http/handlers/metrics"
)

// Handlers bundles every handler the server routes to.
type Handlers struct {
	Job     *jobHandler.Handler
	Batch   *batchHandler.Handler
	Events  *events.Handler
	Health  *health.Handler
	Metrics *metrics.Handler
}
