package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/pkg/retry"
	"github.com/redis/go-redis/v9"
)

// NewClient connects to Redis, retrying the initial ping with backoff so the
// service can start alongside its cache.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   2,
	})

	policy := retry.DefaultConfig()
	policy.MaxAttempts = 5
	policy.InitialDelay = time.Second
	policy.MaxDelay = 10 * time.Second
	if cfg.ConnectRetries > 0 {
		policy.MaxAttempts = uint(cfg.ConnectRetries)
	}
	if cfg.ConnectRetryDelay > 0 {
		policy.InitialDelay = cfg.ConnectRetryDelay
	}

	err := retry.Do(ctx, policy, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s after %d attempts: %w",
			cfg.RedisAddr(), policy.MaxAttempts, err)
	}
	return client, nil
}
