package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"webscope/internal/config"
	"webscope/internal/core/domain/common"
)

// RedisDB wraps a go-redis client used as a cache-aside layer in front of
// the Entity Store. It is never the source of truth: a cache miss always
// falls through to Postgres.
type RedisDB struct {
	Client *redis.Client
	logger *slog.Logger
}

var _ common.RedisClient = (*RedisDB)(nil)

// NewRedisDB creates a new Redis connection and verifies it with a ping.
func NewRedisDB(cfg *config.Config, logger *slog.Logger) (*RedisDB, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	opt.MaxRetries = 3
	opt.DialTimeout = 5 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.PoolSize = cfg.Redis.PoolSize
	opt.PoolTimeout = 30 * time.Second

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("connected to redis")

	return &RedisDB{Client: client, logger: logger}, nil
}

// Close closes the Redis connection.
func (r *RedisDB) Close() error {
	r.logger.Info("closing redis connection")
	return r.Client.Close()
}

// Health checks Redis reachability.
func (r *RedisDB) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return r.Client.Ping(ctx).Err()
}

// Get implements common.RedisClient.
func (r *RedisDB) Get(ctx context.Context, key string) (string, error) {
	return r.Client.Get(ctx, key).Result()
}

// Set implements common.RedisClient.
func (r *RedisDB) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.Client.Set(ctx, key, value, expiration).Err()
}

// Delete implements common.RedisClient.
func (r *RedisDB) Delete(ctx context.Context, keys ...string) error {
	return r.Client.Del(ctx, keys...).Err()
}

// Expire implements common.RedisClient.
func (r *RedisDB) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return r.Client.Expire(ctx, key, expiration).Err()
}
