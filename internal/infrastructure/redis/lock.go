package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/turnkey/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our token, so a
// lock that expired and was taken by someone else is left alone.
var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

// DistributedLock is a single-holder SET NX lock. It guards an idempotency
// key while its first request runs and the janitor sweep across replicas.
type DistributedLock struct {
	client redis.Cmdable
	key    string
	token  string
	ttl    time.Duration
	held   bool
}

func NewDistributedLock(client redis.Cmdable, name string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    LockKey(name),
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Acquire reports false without error when another holder has the lock.
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.key, err)
	}
	l.held = ok
	return ok, nil
}

// Release is a no-op for a lock that was never acquired. It returns
// ErrLockNotHeld when the lock expired before release.
func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.held {
		return nil
	}
	l.held = false

	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.key, err)
	}
	if n == 0 {
		return domainErrors.ErrLockNotHeld
	}
	return nil
}

// LockKey namespaces a lock name.
func LockKey(name string) string {
	return "turnkey:lock:" + name
}
