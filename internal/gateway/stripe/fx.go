package stripe

import (
	"github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.stripe",
	fx.Provide(New),
	fx.Provide(
		func(c *Client) domain.Gateway { return c },
		func(c *Client) domain.WebhookVerifier { return c },
	),
)
