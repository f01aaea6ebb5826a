package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	"github.com/cassiomorais/turnkey/internal/repository/postgres"
	"github.com/rs/zerolog/log"
)

const (
	maxIdempotencyBodySize = 1 << 20
	idempotencyHeader      = "Idempotency-Key"
)

// IdempotencyStore keeps replayable responses.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error)
	Set(ctx context.Context, entry *postgres.IdempotencyEntry) error
}

// Locker guards one idempotency key while its first request runs.
type Locker interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the calling merchant, its mode and the route. A request that arrives while the
// first one with the same key is still running gets a 409.
func Idempotency(store IdempotencyStore, newLock func(key string) Locker, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			key = scopedKey(r, key)

			if replay(w, r, store, key) {
				return
			}

			lock := newLock(key)
			acquired, err := lock.Acquire(r.Context())
			if err != nil {
				log.Warn().Err(err).Msg("idempotency lock unavailable, continuing without it")
			} else if !acquired {
				writeAuthError(w, http.StatusConflict, "a request with this idempotency key is in progress", "duplicate_request")
				return
			} else {
				defer lock.Release(context.WithoutCancel(r.Context()))
			}

			// The first request may have finished between the lookup and the lock.
			if replay(w, r, store, key) {
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 500 && !rec.bodyTruncated {
				now := time.Now()
				err := store.Set(context.WithoutCancel(r.Context()), &postgres.IdempotencyEntry{
					Key:            key,
					ResponseBody:   rec.body.String(),
					ResponseStatus: rec.statusCode,
					CreatedAt:      now,
					ExpiresAt:      now.Add(ttl),
				})
				if err != nil {
					log.Error().Err(err).Msg("failed to store idempotent response")
				}
			}
		})
	}
}

// scopedKey is merchant:mode:METHOD path:client key.
func scopedKey(r *http.Request, key string) string {
	route := r.Method + " " + r.URL.Path
	if badge, ok := auth.FromContext(r.Context()); ok {
		return badge.MerchantID + ":" + badge.Mode() + ":" + route + ":" + key
	}
	return route + ":" + key
}

func replay(w http.ResponseWriter, r *http.Request, store IdempotencyStore, key string) bool {
	entry, err := store.Get(r.Context(), key)
	if err != nil {
		log.Warn().Err(err).Msg("idempotency lookup failed")
		return false
	}
	if entry == nil {
		return false
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotency-Replayed", "true")
	w.WriteHeader(entry.ResponseStatus)
	w.Write([]byte(entry.ResponseBody))
	return true
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
