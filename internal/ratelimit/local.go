package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter keeps one in-process bucket per key. Limits are per replica.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	policy  Policy
	now     func() time.Time
}

func NewLocalLimiter(policy Policy) *LocalLimiter {
	return &LocalLimiter{
		buckets: make(map[string]*rate.Limiter),
		policy:  policy,
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (*Result, error) {
	if err := l.policy.validate(key); err != nil {
		return nil, err
	}

	now := l.now()
	r := l.bucket(key).ReserveN(now, 1)
	delay := r.DelayFrom(now)
	if delay > 0 {
		r.CancelAt(now)
		return &Result{
			Allowed:    false,
			Limit:      l.policy.Burst,
			ResetTime:  now.Add(delay),
			RetryAfter: delay,
		}, nil
	}

	remaining := int(l.bucket(key).TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return &Result{
		Allowed:   true,
		Limit:     l.policy.Burst,
		Remaining: remaining,
		ResetTime: now,
	}, nil
}

func (l *LocalLimiter) bucket(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = rate.NewLimiter(rate.Limit(l.policy.Rate), l.policy.Burst)
		l.buckets[key] = b
	}
	return b
}
