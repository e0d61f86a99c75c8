package events

import (
	"context"

	"github.com/smallbiznis/shelfpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("events",
	fx.Provide(New),
)

// New returns a Kafka publisher when brokers are configured, otherwise Noop.
func New(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	log = log.Named("events")
	if len(cfg.Kafka.Brokers) == 0 || cfg.Kafka.Topic == "" {
		log.Info("kafka not configured; domain events are disabled")
		return Noop()
	}
	pub := NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	lc.Append(fx.StopHook(func(context.Context) error {
		return pub.Close()
	}))
	return pub
}

// PublishAfterCommit sends event and only logs failures; callers have
// already committed the change the event describes.
func PublishAfterCommit(ctx context.Context, pub Publisher, log *zap.Logger, event Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, event); err != nil {
		log.Warn("domain event dropped",
			zap.String("event_type", event.Type),
			zap.String("key", event.Key),
			zap.Error(err),
		)
	}
}
