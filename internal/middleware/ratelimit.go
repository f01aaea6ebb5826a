package middleware

import (
	"net/http"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	"github.com/go-chi/httprate"
)

// RateLimit limits requests per minute per merchant, falling back to the
// client IP for unauthenticated routes.
func RateLimit(requestsPerMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		requestsPerMinute,
		time.Minute,
		httprate.WithKeyFuncs(merchantOrIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeAuthError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limit")
		}),
	)
}

func merchantOrIP(r *http.Request) (string, error) {
	if badge, ok := auth.FromContext(r.Context()); ok {
		return "merchant:" + badge.MerchantID, nil
	}
	return httprate.KeyByIP(r)
}
