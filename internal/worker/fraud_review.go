package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/cassiomorais/turnkey/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/turnkey/internal/infrastructure/redis"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type StreamReader interface {
	Stream() string
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
}

type DeadLetterer interface {
	PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error
}

// FraudReviewer tails the event stream and logs every purchase that failed
// the fraud gate for manual review.
type FraudReviewer struct {
	consumer StreamReader
	dlq      DeadLetterer
	metrics  *observability.Metrics
	logger   zerolog.Logger
	backoff  time.Duration
}

func NewFraudReviewer(consumer StreamReader, dlq DeadLetterer, metrics *observability.Metrics, logger zerolog.Logger) *FraudReviewer {
	return &FraudReviewer{
		consumer: consumer,
		dlq:      dlq,
		metrics:  metrics,
		logger:   logger.With().Str("stream", consumer.Stream()).Logger(),
		backoff:  time.Second,
	}
}

func (w *FraudReviewer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		messages, err := w.consumer.Read(ctx)
		if err != nil {
			w.logger.Error().Err(err).Msg("failed to read from stream")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.backoff):
			}
			continue
		}

		for _, msg := range messages {
			w.Handle(ctx, msg)
		}
	}
}

// Handle processes one message and always acks it. Messages that cannot be
// decoded go to the dead letter stream.
func (w *FraudReviewer) Handle(ctx context.Context, msg redis.XMessage) {
	start := time.Now()
	status := w.handle(ctx, msg)

	stream := w.consumer.Stream()
	w.metrics.WorkerMessagesProcessed.WithLabelValues(stream, status).Inc()
	w.metrics.WorkerProcessingDuration.WithLabelValues(stream).Observe(time.Since(start).Seconds())

	if err := w.consumer.Ack(ctx, msg.ID); err != nil {
		w.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to ack message")
	}
}

func (w *FraudReviewer) handle(ctx context.Context, msg redis.XMessage) string {
	ev, err := infraRedis.DecodeEvent(msg)
	if err != nil {
		return w.deadLetter(ctx, msg, err)
	}
	if ev.Type != giftcard.FraudCheckEventType {
		return "ignored"
	}

	var check giftcard.FraudCheckEvent
	if err := json.Unmarshal(ev.Payload, &check); err != nil {
		return w.deadLetter(ctx, msg, err)
	}

	if check.PassedFraudCheck {
		w.logger.Debug().Str("charge_id", ev.Key).Msg("fraud check passed")
		return "passed"
	}

	entry := w.logger.Warn().
		Str("charge_id", ev.Key).
		Int64("initial_value", check.PurchaseParams.InitialValue).
		Str("recipient_domain", check.FraudAssessmentParams.Email.Domain).
		Str("ip_address", check.FraudAssessmentParams.Device.IPAddress)
	if check.FraudAssessment != nil {
		entry = entry.
			Float64("risk_score", check.FraudAssessment.RiskScore).
			Float64("ip_risk_score", check.FraudAssessment.IPRiskScore)
	}
	entry.Msg("purchase refunded after failed fraud check, review required")
	return "review"
}

func (w *FraudReviewer) deadLetter(ctx context.Context, msg redis.XMessage, cause error) string {
	w.logger.Error().Err(cause).Str("message_id", msg.ID).Msg("undecodable event, moving to DLQ")
	if err := w.dlq.PublishToDLQ(ctx, msg, cause.Error()); err != nil {
		w.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to publish to DLQ")
	}
	return "dead_letter"
}
