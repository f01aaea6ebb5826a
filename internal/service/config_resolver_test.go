package service_test

import (
	"context"
	"errors"
	"testing"

	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	"github.com/cassiomorais/turnkey/internal/service"
	"github.com/cassiomorais/turnkey/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupConfigResolver() (*service.ConfigResolver, *testutil.MockMerchantConfigStore, *testutil.MockMerchantConfigCache, *observability.Metrics) {
	store := testutil.NewMockMerchantConfigStore()
	cache := testutil.NewMockMerchantConfigCache()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	creds := testutil.StaticCredentials{Live: "sk_live_1", Test: "sk_test_1"}
	return service.NewConfigResolver(store, cache, creds, metrics, zerolog.Nop()), store, cache, metrics
}

func TestConfigResolver_LoadsAndCaches(t *testing.T) {
	r, store, _, metrics := setupConfigResolver()
	ctx := context.Background()
	_, err := store.Upsert(ctx, "m1", false, testutil.NewTestMerchantConfig())
	require.NoError(t, err)

	cfg, err := r.Resolve(ctx, "m1", false)
	require.NoError(t, err)
	assert.Equal(t, "Acme Coffee", cfg.CompanyName)

	_, err = r.Resolve(ctx, "m1", false)
	require.NoError(t, err)

	assert.Equal(t, 1, store.Gets)
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.ConfigCacheLookups.WithLabelValues("hit")))
	assert.Equal(t, float64(1), promtest.ToFloat64(metrics.ConfigCacheLookups.WithLabelValues("miss")))
}

func TestConfigResolver_MissingConfig(t *testing.T) {
	r, _, _, _ := setupConfigResolver()

	_, err := r.Resolve(context.Background(), "nobody", false)
	assert.ErrorIs(t, err, domainErrors.ErrConfigInvalid)
}

func TestConfigResolver_ValidatesCachedConfig(t *testing.T) {
	r, _, cache, _ := setupConfigResolver()
	ctx := context.Background()
	bad := testutil.NewTestMerchantConfig()
	bad.Logo = ""
	require.NoError(t, cache.Set(ctx, "m1", true, bad))

	_, err := r.Resolve(ctx, "m1", true)
	assert.ErrorIs(t, err, domainErrors.ErrConfigInvalid)
}

func TestConfigResolver_MissingPlatformKey(t *testing.T) {
	store := testutil.NewMockMerchantConfigStore()
	cache := testutil.NewMockMerchantConfigCache()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	r := service.NewConfigResolver(store, cache, testutil.StaticCredentials{Live: "sk_live_1"}, metrics, zerolog.Nop())

	_, err := r.Resolve(context.Background(), "m1", true)
	assert.ErrorIs(t, err, domainErrors.ErrConfigUnavailable)
	assert.Equal(t, 0, store.Gets)
}

func TestConfigResolver_StoreFailure(t *testing.T) {
	r, store, _, _ := setupConfigResolver()
	store.GetErr = errors.New("connection refused")

	_, err := r.Resolve(context.Background(), "m1", false)
	requireCode(t, err, service.CodeConfigUnavailable)
	assert.ErrorIs(t, err, domainErrors.ErrConfigUnavailable)
}

func TestConfigResolver_CacheReadFailureFallsBackToStore(t *testing.T) {
	r, store, cache, _ := setupConfigResolver()
	ctx := context.Background()
	_, err := store.Upsert(ctx, "m1", false, testutil.NewTestMerchantConfig())
	require.NoError(t, err)
	cache.GetErr = errors.New("redis down")

	cfg, err := r.Resolve(ctx, "m1", false)
	require.NoError(t, err)
	assert.NotNil(t, cfg)
}

func TestConfigResolver_StoreInvalidatesCache(t *testing.T) {
	r, _, cache, _ := setupConfigResolver()
	ctx := context.Background()

	rev, err := r.Store(ctx, "m1", false, testutil.NewTestMerchantConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, rev)

	rev, err = r.Store(ctx, "m1", false, testutil.NewTestMerchantConfig())
	require.NoError(t, err)
	assert.Equal(t, 2, rev)
	assert.Len(t, cache.Invalidated, 2)
}
