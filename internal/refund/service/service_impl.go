package service

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/shelfpay/internal/audit/domain"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/config"
	"github.com/smallbiznis/shelfpay/internal/events"
	gatewaydomain "github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/internal/observability/metrics"
	orderdomain "github.com/smallbiznis/shelfpay/internal/order/domain"
	"github.com/smallbiznis/shelfpay/internal/refund/domain"
	walletdomain "github.com/smallbiznis/shelfpay/internal/wallet/domain"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Policy     *config.PaymentPolicyHolder
	Gateway    gatewaydomain.Gateway
	Repo       domain.Repository
	OrderRepo  orderdomain.Repository
	WalletRepo walletdomain.Repository
	AuditSvc   auditdomain.Service
	Events     events.Publisher
	Metrics    *metrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
	policy     *config.PaymentPolicyHolder
	gateway    gatewaydomain.Gateway
	repo       domain.Repository
	orderRepo  orderdomain.Repository
	walletRepo walletdomain.Repository
	auditSvc   auditdomain.Service
	events     events.Publisher
	metrics    *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("refund.service"),
		genID:      p.GenID,
		clock:      p.Clock,
		policy:     p.Policy,
		gateway:    p.Gateway,
		repo:       p.Repo,
		orderRepo:  p.OrderRepo,
		walletRepo: p.WalletRepo,
		auditSvc:   p.AuditSvc,
		events:     p.Events,
		metrics:    p.Metrics,
	}
}

func (s *Service) CreateRefund(ctx context.Context, req domain.CreateRefundRequest) (*domain.Refund, error) {
	order, err := s.orderRepo.FindByID(ctx, s.db, req.OrderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, orderdomain.ErrOrderNotFound
	}
	if order.BuyerID != req.RequesterID {
		return nil, domain.ErrNotBuyer
	}

	policy := s.policy.Get()
	now := s.clock.Now()
	if deadline := order.CreatedAt.Add(policy.RefundWindow); !now.Before(deadline) {
		return nil, fmt.Errorf("%w: order %s was refundable until %s", domain.ErrRefundWindowClosed, order.ID, deadline.Format("2006-01-02T15:04:05Z07:00"))
	}
	switch order.Status {
	case orderdomain.StatusCompleted:
	case orderdomain.StatusRefunded:
		return nil, fmt.Errorf("%w: order %s is %s", orderdomain.ErrInvalidTransition, order.ID, order.Status)
	default:
		// Never paid through the gateway, so there is nothing to refund.
		return nil, fmt.Errorf("%w: order %s is %s", domain.ErrPaymentIntentMissing, order.ID, order.Status)
	}

	log := s.log.With(zap.String("order_id", order.ID.String()))

	refund, err := s.repo.FindByOrderID(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	switch {
	case refund != nil && refund.Status == domain.StatusSucceeded:
		return nil, fmt.Errorf("%w: order %s already refunded", orderdomain.ErrInvalidTransition, order.ID)
	case refund != nil:
		// A previous attempt did not settle; retry it under the same key.
		log.Info("retrying pending refund", zap.String("refund_id", refund.ID.String()))
	default:
		refund, err = s.insertPending(ctx, order, req.RequesterID, now)
		if err != nil {
			return nil, err
		}
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, policy.GatewayTimeout)
	defer cancel()
	result, err := s.gateway.CreateRefund(gatewayCtx, gatewaydomain.RefundParams{
		IdempotencyKey:  "refund_" + refund.ID.String(),
		PaymentIntentID: refund.PaymentIntentID,
		Amount:          refund.Amount,
		Metadata: map[string]string{
			"order_id":  order.ID.String(),
			"refund_id": refund.ID.String(),
		},
	})
	if err != nil {
		if errs.IsAmbiguous(err) {
			s.metrics.RecordRefund(ctx, "pending")
			log.Warn("refund outcome unknown; left pending for reconciliation",
				zap.String("refund_id", refund.ID.String()),
				zap.Error(err),
			)
			return nil, err
		}
		if delErr := s.repo.DeletePending(ctx, s.db, refund.ID); delErr != nil {
			log.Error("failed to clear rejected refund", zap.String("refund_id", refund.ID.String()), zap.Error(delErr))
		}
		s.metrics.RecordRefund(ctx, "failed")
		log.Warn("refund rejected by gateway", zap.Error(err))
		return nil, err
	}

	stripeRefundID := result.ID
	finalized, err := s.finalize(ctx, refund, &stripeRefundID, auditdomain.ActorTypeUser)
	if err != nil {
		return nil, err
	}
	return finalized, nil
}

func (s *Service) insertPending(ctx context.Context, order *orderdomain.Order, requesterID snowflake.ID, now time.Time) (*domain.Refund, error) {
	if order.CheckoutSessionID == nil || *order.CheckoutSessionID == "" {
		return nil, fmt.Errorf("%w: order %s has no checkout session", domain.ErrPaymentIntentMissing, order.ID)
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.policy.Get().GatewayTimeout)
	defer cancel()
	session, err := s.gateway.GetCheckoutSession(gatewayCtx, *order.CheckoutSessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.PaymentIntentID == "" {
		return nil, fmt.Errorf("%w: session %s", domain.ErrPaymentIntentMissing, *order.CheckoutSessionID)
	}

	refund := &domain.Refund{
		ID:              s.genID.Generate(),
		OrderID:         order.ID,
		RequesterID:     requesterID,
		Amount:          order.Amount,
		PaymentIntentID: session.PaymentIntentID,
		Status:          domain.StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	inserted, err := s.repo.InsertPending(ctx, s.db, refund)
	if err != nil {
		return nil, err
	}
	if inserted {
		s.audit(ctx, auditdomain.ActorTypeUser, auditdomain.ActionRefundRequested, refund, nil)
		return refund, nil
	}

	// A concurrent request won the insert.
	existing, err := s.repo.FindByOrderID(ctx, s.db, order.ID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("%w: refund for order %s vanished", errs.ErrConflict, order.ID)
	}
	if existing.Status == domain.StatusSucceeded {
		return nil, fmt.Errorf("%w: order %s already refunded", orderdomain.ErrInvalidTransition, order.ID)
	}
	return existing, nil
}

func (s *Service) FinalizeByPaymentIntent(ctx context.Context, paymentIntentID string, stripeRefundID *string) (*domain.Refund, error) {
	refund, err := s.repo.FindPendingByPaymentIntent(ctx, s.db, paymentIntentID)
	if err != nil {
		return nil, err
	}
	if refund == nil {
		return nil, nil
	}
	return s.finalize(ctx, refund, stripeRefundID, auditdomain.ActorTypeGateway)
}

// finalize settles a pending refund: refund succeeded, order REFUNDED and
// seller wallet debited, all or nothing. Finalizing twice is a no-op.
func (s *Service) finalize(ctx context.Context, refund *domain.Refund, stripeRefundID *string, actor auditdomain.ActorType) (*domain.Refund, error) {
	now := s.clock.Now()
	var order *orderdomain.Order
	applied := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.MarkSucceeded(ctx, tx, refund.ID, stripeRefundID, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		order, err = s.orderRepo.FindByID(ctx, tx, refund.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: refund %s", orderdomain.ErrOrderNotFound, refund.ID)
		}
		moved, err := s.orderRepo.MarkRefunded(ctx, tx, order.ID, refund.ID, now)
		if err != nil {
			return err
		}
		if !moved {
			return fmt.Errorf("%w: order %s is %s", orderdomain.ErrInvalidTransition, order.ID, order.Status)
		}
		if err := s.walletRepo.Debit(ctx, tx, order.SellerID, order.Amount, now); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		s.metrics.RecordRefund(ctx, "failed")
		return nil, err
	}

	current, err := s.repo.FindByOrderID(ctx, s.db, refund.OrderID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrRefundNotFound
	}
	if !applied {
		return current, nil
	}

	s.metrics.RecordRefund(ctx, "succeeded")
	s.metrics.RecordOrderTransition(ctx, string(orderdomain.StatusCompleted), string(orderdomain.StatusRefunded))
	s.audit(ctx, actor, auditdomain.ActionRefundFinalized, current, map[string]any{
		"seller_id": order.SellerID.String(),
	})
	events.PublishAfterCommit(ctx, s.events, s.log, events.Event{
		Type:       events.TypeOrderRefunded,
		Key:        order.ID.String(),
		OccurredAt: now,
		Data: map[string]any{
			"order_id":  order.ID.String(),
			"refund_id": current.ID.String(),
			"amount":    current.Amount,
		},
	})
	s.log.Info("refund finalized",
		zap.String("order_id", order.ID.String()),
		zap.String("refund_id", current.ID.String()),
	)
	return current, nil
}

func (s *Service) audit(ctx context.Context, actor auditdomain.ActorType, action string, refund *domain.Refund, extra map[string]any) {
	targetID := refund.OrderID.String()
	metadata := map[string]any{
		"refund_id": refund.ID.String(),
		"amount":    refund.Amount,
		"status":    string(refund.Status),
	}
	for k, v := range extra {
		metadata[k] = v
	}
	if err := s.auditSvc.AuditLog(ctx, actor, nil, action, "order", &targetID, metadata); err != nil {
		s.log.Warn("failed to write refund audit log", zap.String("action", action), zap.Error(err))
	}
}
