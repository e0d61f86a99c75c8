package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/shelfpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(New),
)

// New shares buckets through Redis when REDIS_ADDR is set, otherwise each
// replica limits on its own.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return Unlimited{}, nil
	}
	policy := Policy{Rate: cfg.RateLimit.PerSecond, Burst: cfg.RateLimit.Burst}
	if err := policy.validate("config"); err != nil {
		return nil, err
	}

	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		log.Named("ratelimit").Info("REDIS_ADDR not set; rate limits apply per replica")
		return NewLocalLimiter(policy), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return NewTokenBucket(client, policy), nil
}
