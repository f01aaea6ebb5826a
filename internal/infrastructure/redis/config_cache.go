package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/redis/go-redis/v9"
)

// ConfigCache caches merchant turnkey configs as JSON documents.
type ConfigCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewConfigCache(client redis.Cmdable, ttl time.Duration) *ConfigCache {
	return &ConfigCache{client: client, ttl: ttl}
}

// ConfigKey returns the cache key for a merchant in the given mode.
func ConfigKey(merchantID string, testMode bool) string {
	mode := "live"
	if testMode {
		mode = "test"
	}
	return fmt.Sprintf("turnkey:config:%s:%s", merchantID, mode)
}

// Get returns the cached config, or nil on a miss.
func (c *ConfigCache) Get(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error) {
	raw, err := c.client.Get(ctx, ConfigKey(merchantID, testMode)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached config: %w", err)
	}

	var cfg giftcard.MerchantConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode cached config: %w", err)
	}
	return &cfg, nil
}

func (c *ConfigCache) Set(ctx context.Context, merchantID string, testMode bool, cfg *giftcard.MerchantConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := c.client.Set(ctx, ConfigKey(merchantID, testMode), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache config: %w", err)
	}
	return nil
}

func (c *ConfigCache) Invalidate(ctx context.Context, merchantID string, testMode bool) error {
	if err := c.client.Del(ctx, ConfigKey(merchantID, testMode)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cached config: %w", err)
	}
	return nil
}
