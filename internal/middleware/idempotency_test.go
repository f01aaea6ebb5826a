package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/auth"
	"github.com/cassiomorais/turnkey/internal/repository/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]*postgres.IdempotencyEntry
	getErr  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{entries: map[string]*postgres.IdempotencyEntry{}}
}

func (s *memoryStore) Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.entries[key], nil
}

func (s *memoryStore) Set(ctx context.Context, e *postgres.IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[e.Key] = e
	return nil
}

type stubLock struct {
	acquired bool
	err      error
	released bool
}

func (l *stubLock) Acquire(ctx context.Context) (bool, error) { return l.acquired, l.err }
func (l *stubLock) Release(ctx context.Context) error        { l.released = true; return nil }

func idempotentRequest(key string) *http.Request {
	return idempotentRequestTo("/purchase", auth.Badge{MerchantID: "m-1"}, key)
}

func idempotentRequestTo(path string, badge auth.Badge, key string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	req.Header.Set(idempotencyHeader, key)
	return req.WithContext(auth.NewContext(req.Context(), badge))
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := newMemoryStore()
	lock := &stubLock{acquired: true}
	calls := 0
	handler := Idempotency(store, func(string) Locker { return lock }, time.Hour)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ledgerUnitId":"unit-1"}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, idempotentRequest("k-1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, idempotentRequest("k-1"))

	assert.Equal(t, 1, calls)
	assert.True(t, lock.released)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	require.Contains(t, store.entries, "m-1:live:POST /purchase:k-1")
}

func TestIdempotency_ConcurrentDuplicate(t *testing.T) {
	handler := Idempotency(newMemoryStore(), func(string) Locker { return &stubLock{acquired: false} }, time.Hour)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("handler must not run")
		}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, idempotentRequest("k-1"))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotency_ServerErrorsAreNotStored(t *testing.T) {
	store := newMemoryStore()
	handler := Idempotency(store, func(string) Locker { return &stubLock{acquired: true} }, time.Hour)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))

	handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest("k-1"))
	assert.Empty(t, store.entries)
}

func TestIdempotency_LockFailureStillServes(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	handler := Idempotency(store, func(string) Locker { return &stubLock{err: errors.New("redis down")} }, time.Hour)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusOK)
		}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, idempotentRequest("k-1"))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	calls := 0
	handler := Idempotency(newMemoryStore(), func(string) Locker { t.Fatal("no lock without a key"); return nil }, time.Hour)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { calls++ }))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, 1, calls)
}

func TestIdempotency_KeyScopedByRouteAndMode(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	handler := Idempotency(store, func(string) Locker { return &stubLock{acquired: true} }, time.Hour)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"path":"` + r.URL.Path + `"}`))
		}))

	requests := []*http.Request{
		idempotentRequestTo("/api/v2/turnkey/giftcard/purchase", auth.Badge{MerchantID: "m-1"}, "k-1"),
		idempotentRequestTo("/api/v2/turnkey/giftcard/deliver", auth.Badge{MerchantID: "m-1"}, "k-1"),
		idempotentRequestTo("/api/v1/turnkey/giftcard/purchase", auth.Badge{MerchantID: "m-1"}, "k-1"),
		idempotentRequestTo("/api/v2/turnkey/giftcard/purchase", auth.Badge{MerchantID: "m-1", TestMode: true}, "k-1"),
		idempotentRequestTo("/api/v2/turnkey/giftcard/purchase", auth.Badge{MerchantID: "m-2"}, "k-1"),
	}
	for _, req := range requests {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Empty(t, w.Header().Get("X-Idempotency-Replayed"), req.URL.Path)
		assert.JSONEq(t, `{"path":"`+req.URL.Path+`"}`, w.Body.String())
	}
	assert.Equal(t, len(requests), calls)
	assert.Len(t, store.entries, len(requests))
}
