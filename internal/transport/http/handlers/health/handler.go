// Package health implements liveness and readiness probes.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"webscope/internal/config"
)

// Handler handles health check endpoints.
type Handler struct {
	config    *config.Config
	db        *gorm.DB
	redis     *redis.Client
	startTime time.Time
}

// New creates a health Handler.
func New(cfg *config.Config, db *gorm.DB, redisClient *redis.Client) *Handler {
	return &Handler{config: cfg, db: db, redis: redisClient, startTime: time.Now()}
}

// Response is the health check response body.
type Response struct {
	Status string                 `json:"status"`
	Uptime string                 `json:"uptime"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is one component's health check outcome.
type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// @Summary Basic health check
// @Tags Health
// @Produce json
// @Success 200 {object} Response
// @Router /health [get]
func (h *Handler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Status: "healthy", Uptime: time.Since(h.startTime).String()})
}

// @Summary Readiness check
// @Description Verifies database and Redis connectivity.
// @Tags Health
// @Produce json
// @Success 200 {object} Response
// @Failure 503 {object} Response
// @Router /health/ready [get]
func (h *Handler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]CheckResult)
	status := http.StatusOK
	overall := "healthy"

	if sqlDB, err := h.db.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		checks["database"] = CheckResult{Status: "unhealthy", Message: "database ping failed"}
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	} else {
		checks["database"] = CheckResult{Status: "healthy"}
	}

	if err := h.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = CheckResult{Status: "unhealthy", Message: "redis ping failed"}
		overall = "unhealthy"
		status = http.StatusServiceUnavailable
	} else {
		checks["redis"] = CheckResult{Status: "healthy"}
	}

	c.JSON(status, Response{Status: overall, Uptime: time.Since(h.startTime).String(), Checks: checks})
}

// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} Response
// @Router /health/live [get]
func (h *Handler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Status: "alive", Uptime: time.Since(h.startTime).String()})
}
