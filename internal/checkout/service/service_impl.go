package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/shelfpay/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/shelfpay/internal/catalog/domain"
	"github.com/smallbiznis/shelfpay/internal/checkout/domain"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/config"
	gatewaydomain "github.com/smallbiznis/shelfpay/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/shelfpay/internal/order/domain"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Policy      *config.PaymentPolicyHolder
	Gateway     gatewaydomain.Gateway
	CatalogRepo catalogdomain.Repository
	OrderRepo   orderdomain.Repository
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PaymentPolicyHolder
	gateway     gatewaydomain.Gateway
	catalogRepo catalogdomain.Repository
	orderRepo   orderdomain.Repository
	auditSvc    auditdomain.Service
	successURL  string
	cancelURL   string
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("checkout.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		gateway:     p.Gateway,
		catalogRepo: p.CatalogRepo,
		orderRepo:   p.OrderRepo,
		auditSvc:    p.AuditSvc,
		successURL:  p.Config.Stripe.SuccessURL,
		cancelURL:   p.Config.Stripe.CancelURL,
	}
}

func (s *Service) Checkout(ctx context.Context, req domain.CheckoutRequest) (*domain.CheckoutResponse, error) {
	product, err := s.catalogRepo.FindProduct(ctx, s.db, req.ProductID)
	if err != nil {
		return nil, err
	}
	if product == nil || !product.Active {
		return nil, catalogdomain.ErrProductNotFound
	}

	seller, err := s.catalogRepo.FindUser(ctx, s.db, product.SellerID)
	if err != nil {
		return nil, err
	}
	destination := seller.PayableAccount()
	if destination == "" {
		return nil, catalogdomain.ErrSellerNotPayable
	}

	if req.BuyerID == product.SellerID {
		return nil, fmt.Errorf("%w: sellers cannot buy their own listing", domain.ErrInvalidBuyer)
	}
	buyer, err := s.catalogRepo.FindUser(ctx, s.db, req.BuyerID)
	if err != nil {
		return nil, err
	}
	if buyer == nil {
		return nil, catalogdomain.ErrUserNotFound
	}
	owned, err := s.orderRepo.HasCompletedPurchase(ctx, s.db, req.BuyerID, product.ID)
	if err != nil {
		return nil, err
	}
	if owned {
		return nil, orderdomain.ErrAlreadyPurchased
	}

	policy := s.policy.Get()
	currency := strings.ToLower(strings.TrimSpace(product.Currency))
	if currency == "" {
		currency = policy.Currency
	}

	now := s.clock.Now()
	order := &orderdomain.Order{
		ID:        s.genID.Generate(),
		BuyerID:   req.BuyerID,
		SellerID:  product.SellerID,
		ProductID: product.ID,
		Amount:    product.Price,
		Currency:  currency,
		Status:    orderdomain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	// The order must exist before the gateway can emit events about it.
	if err := s.orderRepo.Create(ctx, s.db, order); err != nil {
		return nil, err
	}

	log := s.log.With(
		zap.String("order_id", order.ID.String()),
		zap.String("product_id", product.ID.String()),
		zap.String("buyer_id", req.BuyerID.String()),
	)

	metadata := map[string]string{
		"order_id":   order.ID.String(),
		"buyer_id":   req.BuyerID.String(),
		"seller_id":  product.SellerID.String(),
		"product_id": product.ID.String(),
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, policy.GatewayTimeout)
	defer cancel()
	session, err := s.gateway.CreateCheckoutSession(gatewayCtx, gatewaydomain.CheckoutSessionParams{
		IdempotencyKey:     order.ID.String(),
		Amount:             order.Amount,
		Currency:           currency,
		ProductName:        product.Title,
		DestinationAccount: destination,
		SuccessURL:         s.successURL,
		CancelURL:          s.cancelURL,
		Metadata:           metadata,
	})
	if err != nil {
		log.Warn("checkout session creation failed; order left pending", zap.Error(err))
		if !errors.Is(err, errs.ErrGateway) {
			err = errs.NewAmbiguousGatewayError("create_checkout_session", err)
		}
		return nil, err
	}

	attached, err := s.orderRepo.AttachSession(ctx, s.db, order.ID, session.ID, session.URL, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if !attached {
		return nil, fmt.Errorf("%w: order %s", orderdomain.ErrSessionAttached, order.ID)
	}

	targetID := order.ID.String()
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeUser, nil, auditdomain.ActionCheckoutCreated, "order", &targetID, map[string]any{
		"product_id":          product.ID.String(),
		"amount":              order.Amount,
		"currency":            currency,
		"checkout_session_id": session.ID,
	}); err != nil {
		log.Warn("failed to write checkout audit log", zap.Error(err))
	}

	log.Info("checkout session created", zap.String("checkout_session_id", session.ID))
	return &domain.CheckoutResponse{
		OrderID:   order.ID,
		SessionID: session.ID,
		URL:       session.URL,
	}, nil
}
