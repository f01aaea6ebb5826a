package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/turnkey/internal/bootstrap"
	"github.com/cassiomorais/turnkey/internal/controller"
	infraRedis "github.com/cassiomorais/turnkey/internal/infrastructure/redis"
	customMW "github.com/cassiomorais/turnkey/internal/middleware"
	"github.com/cassiomorais/turnkey/internal/repository/postgres"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const serviceName = "turnkey-api"

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, serviceName, "turnkey")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	sagas, closeSagas, err := app.BuildSagas(ctx)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build sagas")
	}
	defer closeSagas()

	idempotencyRepo := postgres.NewIdempotencyRepository(app.Pool)
	lockTTL := app.Config.Server.WriteTimeout + 5*time.Second

	router := controller.NewRouter(controller.RouterDeps{
		ServiceName:      serviceName,
		JWTSecret:        app.Config.Auth.JWTSecret,
		Server:           app.Config.Server,
		PurchaseV2:       sagas.PurchaseV2,
		DeliverV2:        sagas.DeliverV2,
		PurchaseV1:       sagas.PurchaseV1,
		DeliverV1:        sagas.DeliverV1,
		ConfigReader:     sagas.ConfigRepo,
		ConfigWriter:     sagas.Configs,
		StripeConnect:    sagas.StripeConnect,
		IdempotencyStore: idempotencyRepo,
		NewLock: func(key string) customMW.Locker {
			return infraRedis.NewDistributedLock(app.Redis, "idempotency:"+key, lockTTL)
		},
		IdempotencyTTL: app.Config.Worker.IdempotencyTTL,
		ReadinessChecks: app.ReadinessChecks(),
		Metrics:         app.Metrics,
	})

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), app.Config.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		app.Logger.Error().Err(err).Msg("Server stopped with error")
	}
	app.Logger.Info().Msg("Server exited")
}
