package database

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/EnriquePaullada/gp-data-v4/internal/config"
	apperrors "github.com/EnriquePaullada/gp-data-v4/internal/pkg/errors"
	"github.com/EnriquePaullada/gp-data-v4/internal/pkg/logger"
)

// minRedisPoolSize covers asynq's own connections (heartbeat, scheduler,
// forwarder, recoverer) on top of one per worker goroutine
const minRedisPoolSize = 10

// RedisDB wraps the Redis client backing the background task queue.
// Nothing else is stored in Redis.
type RedisDB struct {
	Client *redis.Client
}

// NewRedis connects to Redis sized for the given worker concurrency.
// Pass 0 for short-lived clients such as leadctl.
func NewRedis(ctx context.Context, cfg config.RedisConfig, concurrency int) (*RedisDB, error) {
	opts := redisOptions(cfg, concurrency)
	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, apperrors.ConnectionFailure("failed to ping redis").
			WithDetail("addr", opts.Addr).
			WithError(err)
	}

	logger.Info("connected to Redis",
		zap.String("addr", opts.Addr),
		zap.Int("db", cfg.DB),
		zap.Int("pool_size", opts.PoolSize),
	)
	return &RedisDB{Client: client}, nil
}

func redisOptions(cfg config.RedisConfig, concurrency int) *redis.Options {
	return &redis.Options{
		Addr:            cfg.Addr(),
		Password:        cfg.Password,
		DB:              cfg.DB,
		MaxRetries:      3,
		MinRetryBackoff: 8 * time.Millisecond,
		MaxRetryBackoff: 512 * time.Millisecond,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolSize:        concurrency + minRedisPoolSize,
		MinIdleConns:    2,
		PoolTimeout:     4 * time.Second,
	}
}

// Ping checks that Redis is reachable
func (db *RedisDB) Ping(ctx context.Context) error {
	return db.Client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (db *RedisDB) Close() error {
	if db == nil || db.Client == nil {
		return nil
	}
	return db.Client.Close()
}
