package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/turnkey/internal/infrastructure/redis"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

type fakeStream struct {
	acked []string
}

func (f *fakeStream) Stream() string { return infraRedis.EventStream }
func (f *fakeStream) Read(ctx context.Context) ([]redis.XMessage, error) {
	return nil, nil
}
func (f *fakeStream) Ack(ctx context.Context, id string) error {
	f.acked = append(f.acked, id)
	return nil
}

type fakeDLQ struct {
	reasons map[string]string
}

func (f *fakeDLQ) PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error {
	if f.reasons == nil {
		f.reasons = map[string]string{}
	}
	f.reasons[msg.ID] = reason
	return nil
}

func fraudMessage(t *testing.T, id string, passed bool) redis.XMessage {
	t.Helper()
	payload, err := json.Marshal(giftcard.FraudCheckEvent{
		PurchaseParams:   giftcard.PurchaseEventParams{InitialValue: 5000},
		FraudAssessment:  &giftcard.FraudAssessment{RiskScore: 85, IPRiskScore: 12},
		PassedFraudCheck: passed,
	})
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: map[string]any{
		infraRedis.FieldEventType: giftcard.FraudCheckEventType,
		infraRedis.FieldKey:       "ch_1",
		infraRedis.FieldPayload:   string(payload),
	}}
}

// --- FraudReviewer ---

func TestFraudReviewer_Handle(t *testing.T) {
	tests := []struct {
		name   string
		msg    func(t *testing.T) redis.XMessage
		status string
		dlq    bool
	}{
		{"passed", func(t *testing.T) redis.XMessage { return fraudMessage(t, "1-0", true) }, "passed", false},
		{"failed", func(t *testing.T) redis.XMessage { return fraudMessage(t, "1-0", false) }, "review", false},
		{"other event", func(t *testing.T) redis.XMessage {
			return redis.XMessage{ID: "1-0", Values: map[string]any{
				infraRedis.FieldEventType: "event.other",
				infraRedis.FieldPayload:   "{}",
			}}
		}, "ignored", false},
		{"missing type", func(t *testing.T) redis.XMessage {
			return redis.XMessage{ID: "1-0", Values: map[string]any{infraRedis.FieldPayload: "{}"}}
		}, "dead_letter", true},
		{"bad payload", func(t *testing.T) redis.XMessage {
			return redis.XMessage{ID: "1-0", Values: map[string]any{
				infraRedis.FieldEventType: giftcard.FraudCheckEventType,
				infraRedis.FieldPayload:   "{not json",
			}}
		}, "dead_letter", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := &fakeStream{}
			dlq := &fakeDLQ{}
			metrics := observability.NewMetrics("test", prometheus.NewRegistry())
			w := NewFraudReviewer(stream, dlq, metrics, zerolog.Nop())

			w.Handle(context.Background(), tt.msg(t))

			assert.Equal(t, []string{"1-0"}, stream.acked)
			assert.Equal(t, tt.dlq, len(dlq.reasons) == 1)
			assert.Equal(t, 1.0, promtest.ToFloat64(metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.EventStream, tt.status)))
		})
	}
}

func TestFraudReviewer_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := NewFraudReviewer(&fakeStream{}, &fakeDLQ{}, observability.NewMetrics("test", prometheus.NewRegistry()), zerolog.Nop())
	assert.NoError(t, w.Run(ctx))
}

// --- Janitor ---

type fakeCleaner struct {
	calls   int
	deleted int64
	err     error
}

func (f *fakeCleaner) Cleanup(ctx context.Context) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

type fakeLock struct {
	acquired bool
	err      error
	released bool
}

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) { return l.acquired, l.err }
func (l *fakeLock) Release(ctx context.Context) error        { l.released = true; return nil }

func TestJanitor_Sweep(t *testing.T) {
	t.Run("holds lock", func(t *testing.T) {
		cleaner := &fakeCleaner{deleted: 3}
		lock := &fakeLock{acquired: true}
		j := NewJanitor(cleaner, func() Locker { return lock }, 0, zerolog.Nop())

		assert.Equal(t, int64(3), j.Sweep(context.Background()))
		assert.True(t, lock.released)
	})

	t.Run("another replica holds lock", func(t *testing.T) {
		cleaner := &fakeCleaner{deleted: 3}
		j := NewJanitor(cleaner, func() Locker { return &fakeLock{} }, 0, zerolog.Nop())

		assert.Zero(t, j.Sweep(context.Background()))
		assert.Zero(t, cleaner.calls)
	})

	t.Run("lock error", func(t *testing.T) {
		cleaner := &fakeCleaner{}
		j := NewJanitor(cleaner, func() Locker { return &fakeLock{err: errors.New("redis down")} }, 0, zerolog.Nop())

		assert.Zero(t, j.Sweep(context.Background()))
		assert.Zero(t, cleaner.calls)
	})

	t.Run("cleanup error", func(t *testing.T) {
		cleaner := &fakeCleaner{err: errors.New("db down")}
		lock := &fakeLock{acquired: true}
		j := NewJanitor(cleaner, func() Locker { return lock }, 0, zerolog.Nop())

		assert.Zero(t, j.Sweep(context.Background()))
		assert.True(t, lock.released)
	})
}
