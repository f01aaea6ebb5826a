package bootstrap

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cassiomorais/turnkey/internal/controller"
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/turnkey/internal/infrastructure/redis"
	"github.com/cassiomorais/turnkey/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the process-wide infrastructure shared by cmd/api and cmd/worker.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Metrics *observability.Metrics

	tracer *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("service", serviceName).Str("instance", cfg.InstanceID).Logger()

	app := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(metricsNamespace, nil),
	}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Tracer unavailable, continuing without tracing")
		} else {
			app.tracer = tp
		}
	}

	app.Pool, err = postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	logger.Info().
		Bool("tracing", app.tracer != nil).
		Str("events", cfg.Events.Driver).
		Bool("fraud_scoring", cfg.Fraud.Enabled).
		Msg("Infrastructure ready")
	return app, nil
}

// ReadinessChecks are the dependencies a replica needs to take traffic.
func (a *App) ReadinessChecks() map[string]controller.Check {
	return map[string]controller.Check{
		"database": a.Pool.Ping,
		"redis":    func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() },
	}
}

// Close releases everything New opened. It is safe on a partially built App.
func (a *App) Close() {
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		observability.Shutdown(ctx, a.tracer)
		cancel()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
