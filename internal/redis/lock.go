package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("provider calendar lock not acquired")
)

type providerLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewProviderLocker creates a calendar.Locker backed by a per-provider
// Redis key, so that multiple API instances serialize mutations of one
// provider's aggregate. The lock is held for the whole
// check-then-commit of a mutation.
func NewProviderLocker(client *redis.Client, ttl time.Duration) *providerLocker {
	return &providerLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *providerLocker) WithProviderLock(ctx context.Context, providerID string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:calendar:%s", providerID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire calendar lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *providerLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release calendar lock: %w", err)
	}
	return nil
}
