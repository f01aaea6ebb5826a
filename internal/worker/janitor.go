package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type IdempotencyCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Janitor prunes expired idempotency entries. Only the worker holding the
// lock runs a sweep, so replicas do not delete in parallel.
type Janitor struct {
	cleaner  IdempotencyCleaner
	newLock  func() Locker
	interval time.Duration
	logger   zerolog.Logger
}

func NewJanitor(cleaner IdempotencyCleaner, newLock func() Locker, interval time.Duration, logger zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{cleaner: cleaner, newLock: newLock, interval: interval, logger: logger}
}

func (j *Janitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep runs one cleanup pass and returns the number of deleted entries.
func (j *Janitor) Sweep(ctx context.Context) int64 {
	lock := j.newLock()
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		j.logger.Warn().Err(err).Msg("janitor lock unavailable")
		return 0
	}
	if !acquired {
		return 0
	}
	defer lock.Release(context.WithoutCancel(ctx))

	deleted, err := j.cleaner.Cleanup(ctx)
	if err != nil {
		j.logger.Error().Err(err).Msg("idempotency cleanup failed")
		return 0
	}
	if deleted > 0 {
		j.logger.Info().Int64("deleted", deleted).Msg("expired idempotency keys removed")
	}
	return deleted
}
