package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/turnkey/internal/bootstrap"
	infraRedis "github.com/cassiomorais/turnkey/internal/infrastructure/redis"
	"github.com/cassiomorais/turnkey/internal/repository/postgres"
	"github.com/cassiomorais/turnkey/internal/worker"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, "turnkey-worker", "turnkey_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	workerCfg := app.Config.Worker
	stream := app.Config.Events.Stream
	if stream == "" {
		stream = infraRedis.EventStream
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Fraud review only applies when events land in the redis stream.
	if driver := app.Config.Events.Driver; driver == "" || driver == "redis" {
		consumer := infraRedis.NewStreamConsumer(
			app.Redis,
			stream,
			workerCfg.ConsumerGroup,
			app.Config.InstanceID,
			workerCfg.BatchSize,
			workerCfg.BlockDuration,
		)
		if err := consumer.CreateGroup(ctx); err != nil {
			app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
		}
		reviewer := worker.NewFraudReviewer(consumer, infraRedis.NewStreamProducer(app.Redis, stream), app.Metrics, app.Logger)

		app.Logger.Info().
			Str("stream", stream).
			Str("group", workerCfg.ConsumerGroup).
			Str("consumer", app.Config.InstanceID).
			Msg("Fraud reviewer started")
		g.Go(func() error { return reviewer.Run(gCtx) })
	} else {
		app.Logger.Info().Str("driver", driver).Msg("Events are not on a redis stream, fraud reviewer disabled")
	}

	janitor := worker.NewJanitor(
		postgres.NewIdempotencyRepository(app.Pool),
		func() worker.Locker {
			return infraRedis.NewDistributedLock(app.Redis, "janitor:idempotency", time.Minute)
		},
		workerCfg.CleanupInterval,
		app.Logger.With().Str("component", "janitor").Logger(),
	)
	g.Go(func() error { return janitor.Run(gCtx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
