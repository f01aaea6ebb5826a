package service

import (
	"context"
	"fmt"

	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

// CodeConfigUnavailable is reported when the platform itself is misconfigured
// or the config store cannot be reached.
const CodeConfigUnavailable = "ConfigUnavailable"

// ConfigResolver loads a merchant's turnkey config through the cache and
// validates it on every call.
type ConfigResolver struct {
	store    MerchantConfigStore
	cache    MerchantConfigCache
	platform PlatformCredentials
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewConfigResolver(
	store MerchantConfigStore,
	cache MerchantConfigCache,
	platform PlatformCredentials,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ConfigResolver {
	return &ConfigResolver{
		store:    store,
		cache:    cache,
		platform: platform,
		metrics:  metrics,
		logger:   logger,
	}
}

// Resolve returns a validated config. A missing or incomplete config is an
// ErrConfigInvalid; a platform-side problem is an ErrConfigUnavailable.
func (r *ConfigResolver) Resolve(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error) {
	if r.platform.SecretKey(testMode) == "" {
		return nil, domainErrors.NewDomainError(CodeConfigUnavailable,
			"payment processor is not configured for this environment", domainErrors.ErrConfigUnavailable)
	}

	cfg, err := r.cache.Get(ctx, merchantID, testMode)
	if err != nil {
		r.logger.Warn().Err(err).Str("merchant_id", merchantID).Msg("merchant config cache read failed")
	}
	if cfg != nil {
		r.metrics.ConfigCacheLookups.WithLabelValues("hit").Inc()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	r.metrics.ConfigCacheLookups.WithLabelValues("miss").Inc()

	cfg, err = r.store.Get(ctx, merchantID, testMode)
	if err != nil {
		return nil, domainErrors.NewDomainError(CodeConfigUnavailable, "merchant configuration could not be loaded",
			fmt.Errorf("%w: %v", domainErrors.ErrConfigUnavailable, err))
	}
	if cfg == nil {
		return nil, (*giftcard.MerchantConfig)(nil).Validate()
	}

	if err := r.cache.Set(ctx, merchantID, testMode, cfg); err != nil {
		r.logger.Warn().Err(err).Str("merchant_id", merchantID).Msg("merchant config cache write failed")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns the stored config without validating it, or nil when the
// merchant has none.
func (r *ConfigResolver) Get(ctx context.Context, merchantID string, testMode bool) (*giftcard.MerchantConfig, error) {
	return r.store.Get(ctx, merchantID, testMode)
}

// Store saves a config and drops the cached copy. Incomplete configs are
// accepted so a merchant can fill them in over several edits.
func (r *ConfigResolver) Store(ctx context.Context, merchantID string, testMode bool, cfg *giftcard.MerchantConfig) (int, error) {
	revision, err := r.store.Upsert(ctx, merchantID, testMode, cfg)
	if err != nil {
		return 0, err
	}
	if err := r.cache.Invalidate(ctx, merchantID, testMode); err != nil {
		r.logger.Warn().Err(err).Str("merchant_id", merchantID).Msg("merchant config cache invalidation failed")
	}
	return revision, nil
}
