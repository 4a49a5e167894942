package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-redis/redis/v8"

	"github.com/gridbill/backend/internal/config"
)

// InitRedis connects to Redis. Sessions, OTPs and carts live there, so the
// server does not start without it.
func InitRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	slog.Info("[REDIS] redis connection established", "addr", cfg.Addr())
	return rdb, nil
}
