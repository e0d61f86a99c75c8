package alert

import (
	"strings"

	"github.com/smallbiznis/shelfpay/internal/config"
	"github.com/smallbiznis/shelfpay/internal/providers/slack"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("alert",
	fx.Provide(New),
)

func New(cfg config.Config, log *zap.Logger) Notifier {
	var provider slack.Provider = &slack.NoOpProvider{}
	if url := strings.TrimSpace(cfg.SlackWebhookURL); url != "" {
		provider = slack.NewWebhookProvider(url)
	}
	return NewLogNotifier(log.Named("alert"), provider)
}
