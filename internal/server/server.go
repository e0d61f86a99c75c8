package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/shelfpay/internal/account"
	accountdomain "github.com/smallbiznis/shelfpay/internal/account/domain"
	"github.com/smallbiznis/shelfpay/internal/alert"
	"github.com/smallbiznis/shelfpay/internal/audit"
	auditdomain "github.com/smallbiznis/shelfpay/internal/audit/domain"
	"github.com/smallbiznis/shelfpay/internal/authorization"
	"github.com/smallbiznis/shelfpay/internal/catalog"
	"github.com/smallbiznis/shelfpay/internal/checkout"
	checkoutdomain "github.com/smallbiznis/shelfpay/internal/checkout/domain"
	"github.com/smallbiznis/shelfpay/internal/config"
	"github.com/smallbiznis/shelfpay/internal/events"
	"github.com/smallbiznis/shelfpay/internal/gateway/stripe"
	"github.com/smallbiznis/shelfpay/internal/lock"
	"github.com/smallbiznis/shelfpay/internal/observability"
	obsmiddleware "github.com/smallbiznis/shelfpay/internal/observability/logger"
	obstracing "github.com/smallbiznis/shelfpay/internal/observability/tracing"
	"github.com/smallbiznis/shelfpay/internal/order"
	orderdomain "github.com/smallbiznis/shelfpay/internal/order/domain"
	"github.com/smallbiznis/shelfpay/internal/payout"
	payoutdomain "github.com/smallbiznis/shelfpay/internal/payout/domain"
	"github.com/smallbiznis/shelfpay/internal/ratelimit"
	"github.com/smallbiznis/shelfpay/internal/reconcile"
	"github.com/smallbiznis/shelfpay/internal/refund"
	refunddomain "github.com/smallbiznis/shelfpay/internal/refund/domain"
	"github.com/smallbiznis/shelfpay/internal/wallet"
	walletservice "github.com/smallbiznis/shelfpay/internal/wallet/service"
	"github.com/smallbiznis/shelfpay/internal/webhook"
	webhookdomain "github.com/smallbiznis/shelfpay/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	stripe.Module,
	lock.Module,
	ratelimit.Module,
	events.Module,
	alert.Module,
	audit.Module,
	authorization.Module,
	catalog.Module,
	order.Module,
	wallet.Module,
	checkout.Module,
	refund.Module,
	payout.Module,
	account.Module,
	reconcile.Module,
	webhook.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

// maxWebhookBody bounds the raw body read before signature verification.
const maxWebhookBody = 1 << 20

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTPPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	log         *zap.Logger
	authzSvc    authorization.Service
	auditSvc    auditdomain.Service
	checkoutSvc checkoutdomain.Service
	orderSvc    orderdomain.Service
	refundSvc   refunddomain.Service
	payoutSvc   payoutdomain.Service
	walletSvc   *walletservice.Service
	accountSvc  accountdomain.Service
	webhookSvc  webhookdomain.Service
	limiter     ratelimit.Limiter
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Log         *zap.Logger
	AuthzSvc    authorization.Service
	AuditSvc    auditdomain.Service
	CheckoutSvc checkoutdomain.Service
	OrderSvc    orderdomain.Service
	RefundSvc   refunddomain.Service
	PayoutSvc   payoutdomain.Service
	WalletSvc   *walletservice.Service
	AccountSvc  accountdomain.Service
	WebhookSvc  webhookdomain.Service
	Limiter     ratelimit.Limiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		log:         p.Log.Named("http.server"),
		authzSvc:    p.AuthzSvc,
		auditSvc:    p.AuditSvc,
		checkoutSvc: p.CheckoutSvc,
		orderSvc:    p.OrderSvc,
		refundSvc:   p.RefundSvc,
		payoutSvc:   p.PayoutSvc,
		walletSvc:   p.WalletSvc,
		accountSvc:  p.AccountSvc,
		webhookSvc:  p.WebhookSvc,
		limiter:     p.Limiter,
	}
	if svc.limiter == nil {
		svc.limiter = ratelimit.Unlimited{}
	}

	svc.registerAPIRoutes()
	svc.registerWebhookRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", UserRequired())

	api.POST("/checkout", s.rateLimited("checkout"), s.Checkout)

	api.GET("/orders/:id", s.GetOrder)
	api.POST("/orders/:id/refund", s.rateLimited("refund"), s.RefundOrder)

	api.POST("/payouts", s.rateLimited("payout"), s.CreatePayout)
	api.GET("/payouts/:id", s.GetPayout)
	api.POST("/payouts/:id/cancel", s.CancelPayout)

	api.GET("/wallet", s.GetWallet)

	api.POST("/accounts/onboard", s.OnboardAccount)
	api.GET("/accounts/status", s.GetAccountStatus)
	api.DELETE("/accounts", s.UnlinkAccount)
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/webhooks/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin", UserRequired())

	admin.GET("/webhooks/unresolved",
		s.authorizeAction(authorization.ObjectWebhookEvent, authorization.ActionWebhookEventView),
		s.ListUnresolvedWebhooks,
	)
	admin.POST("/webhooks/:id/replay",
		s.authorizeAction(authorization.ObjectWebhookEvent, authorization.ActionWebhookEventReplay),
		s.ReplayWebhook,
	)
	admin.GET("/audit-logs",
		s.authorizeAction(authorization.ObjectAuditLog, authorization.ActionAuditLogView),
		s.ListAuditLogs,
	)
}
