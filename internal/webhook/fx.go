package webhook

import (
	"github.com/smallbiznis/shelfpay/internal/reconcile"
	"github.com/smallbiznis/shelfpay/internal/webhook/domain"
	"github.com/smallbiznis/shelfpay/internal/webhook/repository"
	"github.com/smallbiznis/shelfpay/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(r *reconcile.Registry) domain.Dispatcher { return r }),
)
