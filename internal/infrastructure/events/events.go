package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/cassiomorais/turnkey/internal/infrastructure/config"
	redisinfra "github.com/cassiomorais/turnkey/internal/infrastructure/redis"
	"github.com/cassiomorais/turnkey/internal/service"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// Envelope is the wire form of an event on NATS and SQS.
type Envelope struct {
	EventType string          `json:"eventType"`
	Key       string          `json:"key"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func encode(eventType, key string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{
		EventType: eventType,
		Key:       key,
		Payload:   raw,
		Timestamp: time.Now().Unix(),
	})
}

// Publisher is the part of *nats.Conn the sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each event on a subject named after its type.
type NATSSink struct {
	conn   Publisher
	prefix string
}

func NewNATSSink(conn Publisher, prefix string) *NATSSink {
	return &NATSSink{conn: conn, prefix: prefix}
}

func (s *NATSSink) Publish(ctx context.Context, eventType, key string, payload any) error {
	data, err := encode(eventType, key, payload)
	if err != nil {
		return err
	}
	subject := eventType
	if s.prefix != "" {
		subject = s.prefix + "." + eventType
	}
	if err := s.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish %s to nats: %w", eventType, err)
	}
	return nil
}

// SQSAPI is the part of the SQS client the sink uses.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSSink sends each event as one queue message.
type SQSSink struct {
	client   SQSAPI
	queueURL string
}

func NewSQSSink(client SQSAPI, queueURL string) *SQSSink {
	return &SQSSink{client: client, queueURL: queueURL}
}

func (s *SQSSink) Publish(ctx context.Context, eventType, key string, payload any) error {
	data, err := encode(eventType, key, payload)
	if err != nil {
		return err
	}
	_, err = s.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.queueURL),
		MessageBody: aws.String(string(data)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(eventType)},
			"key":        {DataType: aws.String("String"), StringValue: aws.String(key)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send %s to sqs: %w", eventType, err)
	}
	return nil
}

// Noop drops every event.
type Noop struct{}

func (Noop) Publish(context.Context, string, string, any) error { return nil }

// New builds the sink selected by cfg.Driver. The returned close function
// releases any connection the sink opened.
func New(ctx context.Context, cfg config.EventsConfig, region string, rdb redis.Cmdable) (service.EventSink, func(), error) {
	switch cfg.Driver {
	case "", "redis":
		stream := cfg.Stream
		if stream == "" {
			stream = redisinfra.EventStream
		}
		return redisinfra.NewStreamProducer(rdb, stream), func() {}, nil
	case "nats":
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("turnkey"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to nats: %w", err)
		}
		return NewNATSSink(nc, "turnkey"), nc.Close, nil
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load aws config: %w", err)
		}
		return NewSQSSink(sqs.NewFromConfig(awsCfg), cfg.SQSQueueURL), func() {}, nil
	case "none":
		return Noop{}, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown events driver %q", cfg.Driver)
	}
}
