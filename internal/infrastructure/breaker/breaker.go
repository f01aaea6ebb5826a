package breaker

import (
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

// New builds a circuit breaker for one collaborator. isSuccessful decides
// which errors count against the collaborator; nil counts every error.
func New[T any](name string, cfg config.BreakerConfig, metrics *observability.Metrics, isSuccessful func(error) bool) *gobreaker.CircuitBreaker[T] {
	minRequests := cfg.MinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	ratio := cfg.FailureRatio
	if ratio == 0 {
		ratio = 0.6
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		IsSuccessful: isSuccessful,
	}
	if metrics != nil {
		metrics.CircuitBreakerState.WithLabelValues(name).Set(0)
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(observability.BreakerStateValue(to.String()))
		}
	}
	return gobreaker.NewCircuitBreaker[T](settings)
}

// Result labels a breaker outcome for the request counter.
func Result(err error) string {
	switch err {
	case nil:
		return "success"
	case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
		return "rejected"
	default:
		return "failure"
	}
}
