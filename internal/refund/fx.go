package refund

import (
	"github.com/smallbiznis/shelfpay/internal/refund/repository"
	"github.com/smallbiznis/shelfpay/internal/refund/service"
	"go.uber.org/fx"
)

var Module = fx.Module("refund.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
