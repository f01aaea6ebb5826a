package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EventStream = "turnkey:events"
	DLQStream   = "turnkey:events:dlq"
)

// Stream message fields.
const (
	FieldEventType = "event_type"
	FieldKey       = "key"
	FieldPayload   = "payload"
	FieldTimestamp = "timestamp"
)

type StreamProducer struct {
	client redis.Cmdable
	stream string
}

func NewStreamProducer(client redis.Cmdable, stream string) *StreamProducer {
	if stream == "" {
		stream = EventStream
	}
	return &StreamProducer{client: client, stream: stream}
}

// Publish appends an event to the stream. The payload is stored as JSON.
func (p *StreamProducer) Publish(ctx context.Context, eventType, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			FieldEventType: eventType,
			FieldKey:       key,
			FieldPayload:   string(data),
			FieldTimestamp: time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", eventType, err)
	}

	return nil
}

func (p *StreamProducer) PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error {
	values := make(map[string]any, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["original_id"] = msg.ID
	values["reason"] = reason

	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DLQStream,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	return nil
}

type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string {
	return c.stream
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return messages, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// Event is a decoded stream message.
type Event struct {
	ID      string
	Type    string
	Key     string
	Payload json.RawMessage
}

// DecodeEvent reads the fields written by Publish.
func DecodeEvent(msg redis.XMessage) (Event, error) {
	ev := Event{ID: msg.ID}
	var ok bool
	if ev.Type, ok = msg.Values[FieldEventType].(string); !ok {
		return ev, fmt.Errorf("message %s has no %s", msg.ID, FieldEventType)
	}
	ev.Key, _ = msg.Values[FieldKey].(string)
	payload, ok := msg.Values[FieldPayload].(string)
	if !ok {
		return ev, fmt.Errorf("message %s has no %s", msg.ID, FieldPayload)
	}
	ev.Payload = json.RawMessage(payload)
	return ev, nil
}
