package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/port"

	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds the caller's token,
// so a holder whose TTL expired cannot release a lock re-acquired by someone else.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker acquires locks with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	opts   Options
}

// NewRedisLocker creates a locker on client.
func NewRedisLocker(client redis.UniversalClient, opts Options) *RedisLocker {
	return &RedisLocker{client: client, opts: opts.withDefaults()}
}

// Acquire blocks until key is free, retrying every RetryInterval up to WaitTimeout.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (port.LockHandle, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock %s: ttl must be positive", key)
	}
	full := l.opts.fullKey(key)
	token := newToken()

	err := acquire(ctx, key, l.opts, func(ctx context.Context) (bool, error) {
		ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
		if err != nil {
			return false, fmt.Errorf("redis setnx %s: %w", full, err)
		}
		return ok, nil
	})
	if err != nil {
		return nil, err
	}
	return &redisHandle{client: l.client, key: key, fullKey: full, token: token}, nil
}

type redisHandle struct {
	client  redis.UniversalClient
	key     string
	fullKey string
	token   string
}

func (h *redisHandle) Key() string   { return h.key }
func (h *redisHandle) Token() string { return h.token }

// Release deletes the lock if this handle still owns it. Releasing an
// expired or stolen lock is not an error.
func (h *redisHandle) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, h.client, []string{h.fullKey}, h.token).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", h.fullKey, err)
	}
	return nil
}
