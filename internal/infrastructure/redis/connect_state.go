package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/turnkey/internal/domain/giftcard"
	"github.com/redis/go-redis/v9"
)

// ConnectStateStore keeps pending processor connections until their callback
// arrives or the TTL runs out.
type ConnectStateStore struct {
	client redis.Cmdable
}

func NewConnectStateStore(client redis.Cmdable) *ConnectStateStore {
	return &ConnectStateStore{client: client}
}

func ConnectStateKey(id string) string {
	return "turnkey:connect:" + id
}

func (s *ConnectStateStore) Save(ctx context.Context, state giftcard.ConnectState, ttl time.Duration) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode connect state: %w", err)
	}
	if err := s.client.Set(ctx, ConnectStateKey(state.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save connect state: %w", err)
	}
	return nil
}

// Take reads and deletes the state in one round trip, so a callback URL
// works once.
func (s *ConnectStateStore) Take(ctx context.Context, id string) (*giftcard.ConnectState, error) {
	raw, err := s.client.GetDel(ctx, ConnectStateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read connect state: %w", err)
	}

	var state giftcard.ConnectState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to decode connect state: %w", err)
	}
	return &state, nil
}
