// Package lock implements port.Locker over Redis and, for single-process
// deployments and tests, in memory.
package lock

import (
	"context"
	"strings"
	"time"

	"github.com/boddenberg/acquiring-core-go/internal/domain"

	"github.com/google/uuid"
)

// Options controls key namespacing and the acquisition wait policy.
type Options struct {
	Prefix        string
	RetryInterval time.Duration
	WaitTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	o.Prefix = strings.TrimSuffix(strings.TrimSpace(o.Prefix), ":")
	if o.Prefix == "" {
		o.Prefix = "acq:lock"
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 50 * time.Millisecond
	}
	if o.WaitTimeout < 0 {
		o.WaitTimeout = 0
	}
	return o
}

func (o Options) fullKey(key string) string {
	return o.Prefix + ":" + key
}

func newToken() string {
	return uuid.NewString()
}

// acquire calls try until it reports success, the wait timeout elapses or ctx
// is done. try reports (false, nil) while the lock is held elsewhere.
func acquire(ctx context.Context, key string, opts Options, try func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(opts.WaitTimeout)
	for {
		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return &domain.ErrLockNotAcquired{Key: key}
		}

		wait := opts.RetryInterval
		if left := time.Until(deadline); left < wait {
			wait = left
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
