package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"webscope/pkg/response"
)

// RateLimitMiddleware implements IP-based rate limiting over a Redis sliding
// window. There is no authenticated principal in this module (auth is an
// external collaborator per the job/batch submission API), so the only
// dimension worth limiting is the submitting IP.
type RateLimitMiddleware struct {
	redis  *redis.Client
	limit  int
	window time.Duration
	logger *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limiting middleware. limit <= 0
// disables rate limiting entirely.
func NewRateLimitMiddleware(redis *redis.Client, limit int, window time.Duration, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{redis: redis, limit: limit, window: window, logger: logger}
}

// RateLimitByIP implements IP-based rate limiting using a Redis sliding window.
func (m *RateLimitMiddleware) RateLimitByIP() gin.HandlerFunc {
	if m.limit <= 0 {
		return func(c *gin.Context) {
			c.Next()
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		key := fmt.Sprintf("rate_limit:ip:%s", clientIP)

		allowed, err := m.checkRateLimit(c.Request.Context(), key, m.limit, m.window)
		if err != nil {
			m.logger.Error("rate limit check failed", "ip", clientIP, "error", err)
			// Fail open: a Redis hiccup should not block job submission.
			c.Next()
			return
		}

		if !allowed {
			m.logger.Warn("rate limit exceeded", "ip", clientIP)
			response.TooManyRequests(c, "Rate limit exceeded. Please try again later.")
			c.Abort()
			return
		}

		c.Next()
	}
}

// checkRateLimit implements sliding window rate limiting using Redis.
func (m *RateLimitMiddleware) checkRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window)

	pipe := m.redis.TxPipeline()

	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.Unix(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.Unix()),
		Member: fmt.Sprintf("%d-%d", now.Unix(), now.Nanosecond()),
	})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis pipeline failed: %w", err)
	}

	return countCmd.Val() < int64(limit), nil
}
