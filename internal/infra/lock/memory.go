package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/port"
)

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker is an in-process port.Locker with the same TTL and ownership
// semantics as RedisLocker. It only serializes callers sharing the instance.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	opts  Options
	clock func() time.Time
}

// NewMemoryLocker creates an empty in-memory locker.
func NewMemoryLocker(opts Options) *MemoryLocker {
	return &MemoryLocker{
		held:  make(map[string]memoryEntry),
		opts:  opts.withDefaults(),
		clock: time.Now,
	}
}

// Acquire blocks until key is free, retrying every RetryInterval up to WaitTimeout.
func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (port.LockHandle, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lock %s: ttl must be positive", key)
	}
	full := l.opts.fullKey(key)
	token := newToken()

	err := acquire(ctx, key, l.opts, func(context.Context) (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		now := l.clock()
		if e, ok := l.held[full]; ok && now.Before(e.expiresAt) {
			return false, nil
		}
		l.held[full] = memoryEntry{token: token, expiresAt: now.Add(ttl)}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return &memoryHandle{locker: l, key: key, fullKey: full, token: token}, nil
}

// Held reports whether key is currently locked.
func (l *MemoryLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[l.opts.fullKey(key)]
	return ok && l.clock().Before(e.expiresAt)
}

type memoryHandle struct {
	locker  *MemoryLocker
	key     string
	fullKey string
	token   string
}

func (h *memoryHandle) Key() string   { return h.key }
func (h *memoryHandle) Token() string { return h.token }

func (h *memoryHandle) Release(context.Context) error {
	h.locker.mu.Lock()
	defer h.locker.mu.Unlock()
	if e, ok := h.locker.held[h.fullKey]; ok && e.token == h.token {
		delete(h.locker.held, h.fullKey)
	}
	return nil
}
