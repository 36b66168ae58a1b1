// Package metrics exposes the Prometheus scrape endpoint.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler serves /metrics.
type Handler struct{}

// New creates a metrics Handler.
func New() *Handler {
	return &Handler{}
}

// @Summary Prometheus metrics
// @Tags Monitoring
// @Produce text/plain
// @Success 200 {string} string "Prometheus metrics in text format"
// @Router /metrics [get]
func (h *Handler) Handle(c *gin.Context) {
	promhttp.Handler().ServeHTTP(c.Writer, c.Request)
}
