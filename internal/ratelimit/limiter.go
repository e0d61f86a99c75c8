// Package ratelimit throttles money-moving requests per user.
package ratelimit

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrRateLimited   = errors.New("rate_limited")
	ErrInvalidPolicy = errors.New("invalid_rate_limit_policy")
	ErrEmptyKey      = errors.New("rate_limit_key_empty")
)

// Policy is a token bucket: Rate tokens per second up to Burst.
type Policy struct {
	Rate  float64
	Burst int
}

func (p Policy) validate(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	if p.Rate <= 0 || p.Burst <= 0 {
		return ErrInvalidPolicy
	}
	return nil
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// Key builds the bucket key for one scope and subject.
func Key(scope, subject string) string {
	return "ratelimit:" + scope + ":" + subject
}

// Unlimited allows every request. It stands in when limiting is disabled.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (*Result, error) {
	return &Result{Allowed: true}, nil
}
