// Package lock serializes work on a key across processes.
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/shelfpay/pkg/errs"
)

var ErrLockTimeout = errs.Wrap(errs.ErrConflict, "lock_timeout")

// Locker grants exclusive, expiring ownership of a key. The returned token
// must be presented on Release so an expired holder cannot free a lock now
// owned by someone else.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	Release(ctx context.Context, key, token string) error
}

const (
	minBackoff = 10 * time.Millisecond
	maxBackoff = 200 * time.Millisecond
)

// Acquire polls TryLock until the lock is held or wait elapses. The returned
// release func uses a fresh context so it still runs after ctx is canceled.
func Acquire(ctx context.Context, l Locker, key string, ttl, wait time.Duration) (func(), error) {
	if l == nil {
		return nil, errors.New("locker not configured")
	}
	deadline := time.Now().Add(wait)
	backoff := minBackoff

	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = l.Release(releaseCtx, key, token)
			}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrLockTimeout
		}
		sleep := backoff
		if sleep > remaining {
			sleep = remaining
		}

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
