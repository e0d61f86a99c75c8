package reconcile

import (
	"context"
	"fmt"

	accountdomain "github.com/smallbiznis/shelfpay/internal/account/domain"
	auditdomain "github.com/smallbiznis/shelfpay/internal/audit/domain"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/events"
	gatewaydomain "github.com/smallbiznis/shelfpay/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/shelfpay/internal/order/domain"
	payoutdomain "github.com/smallbiznis/shelfpay/internal/payout/domain"
	refunddomain "github.com/smallbiznis/shelfpay/internal/refund/domain"
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
	Clock      clock.Clock
	OrderRepo  orderdomain.Repository
	OrderSvc   orderdomain.Service
	WalletRepo walletdomain.Repository
	RefundSvc  refunddomain.Service
	PayoutSvc  payoutdomain.Service
	AccountSvc accountdomain.Service
	AuditSvc   auditdomain.Service
	Events     events.Publisher
}

type handlers struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	orderRepo  orderdomain.Repository
	orderSvc   orderdomain.Service
	walletRepo walletdomain.Repository
	refundSvc  refunddomain.Service
	payoutSvc  payoutdomain.Service
	accountSvc accountdomain.Service
	auditSvc   auditdomain.Service
	events     events.Publisher
}

// New builds the registry with every reconciliation handler.
func New(p Params) *Registry {
	h := &handlers{
		db:         p.DB,
		log:        p.Log.Named("reconcile"),
		clock:      p.Clock,
		orderRepo:  p.OrderRepo,
		orderSvc:   p.OrderSvc,
		walletRepo: p.WalletRepo,
		refundSvc:  p.RefundSvc,
		payoutSvc:  p.PayoutSvc,
		accountSvc: p.AccountSvc,
		auditSvc:   p.AuditSvc,
		events:     p.Events,
	}

	r := NewRegistry(h.unhandled)
	r.Register(gatewaydomain.EventCheckoutSessionCompleted, h.checkoutCompleted)
	r.Register(gatewaydomain.EventCheckoutSessionExpired, h.checkoutExpired)
	r.Register(gatewaydomain.EventPaymentIntentFailed, h.paymentFailed)
	r.Register(gatewaydomain.EventChargeRefunded, h.chargeRefunded)
	r.Register(gatewaydomain.EventAccountUpdated, h.accountUpdated)
	r.Register(gatewaydomain.EventPayoutPaid, h.payoutStatus(payoutdomain.StatusPaid))
	r.Register(gatewaydomain.EventPayoutFailed, h.payoutStatus(payoutdomain.StatusFailed))
	return r
}

// checkoutCompleted marks the order COMPLETED and credits the seller in one
// transaction. A redelivered event finds the order COMPLETED and does nothing.
func (h *handlers) checkoutCompleted(ctx context.Context, ev *gatewaydomain.Event) error {
	var sess gatewaydomain.SessionObject
	if err := ev.Decode(&sess); err != nil {
		return err
	}
	orderID, err := orderIDFromMetadata(sess.Metadata)
	if err != nil {
		return err
	}

	var order *orderdomain.Order
	var result *orderdomain.TransitionResult
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err = h.orderRepo.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order == nil {
			return fmt.Errorf("%w: %s", orderdomain.ErrOrderNotFound, orderID)
		}
		if sess.AmountTotal > 0 && sess.AmountTotal != order.Amount {
			return fmt.Errorf("%w: session %s charged %d for order %s of %d",
				errs.ErrIntegrityViolation, sess.ID, sess.AmountTotal, orderID, order.Amount)
		}

		result, err = h.orderSvc.Transition(ctx, tx, orderID, orderdomain.StatusCompleted)
		if err != nil {
			return err
		}
		if !result.Applied {
			return nil
		}
		return h.walletRepo.Credit(ctx, tx, order.SellerID, order.Amount, order.Currency, h.clock.Now())
	})
	if err != nil {
		return err
	}

	h.afterTransition(ctx, ev, result, events.TypeOrderCompleted)
	return nil
}

func (h *handlers) checkoutExpired(ctx context.Context, ev *gatewaydomain.Event) error {
	var sess gatewaydomain.SessionObject
	if err := ev.Decode(&sess); err != nil {
		return err
	}
	return h.fail(ctx, ev, sess.Metadata)
}

func (h *handlers) paymentFailed(ctx context.Context, ev *gatewaydomain.Event) error {
	var pi gatewaydomain.PaymentIntentObject
	if err := ev.Decode(&pi); err != nil {
		return err
	}
	if pi.LastPaymentError != nil {
		h.log.Info("payment attempt failed",
			zap.String("event_id", ev.ID),
			zap.String("decline_code", pi.LastPaymentError.Code),
		)
	}
	return h.fail(ctx, ev, pi.Metadata)
}

func (h *handlers) fail(ctx context.Context, ev *gatewaydomain.Event, metadata map[string]string) error {
	orderID, err := orderIDFromMetadata(metadata)
	if err != nil {
		return err
	}
	result, err := h.orderSvc.Transition(ctx, h.db, orderID, orderdomain.StatusFailed)
	if err != nil {
		return err
	}
	h.afterTransition(ctx, ev, result, events.TypeOrderFailed)
	return nil
}

func (h *handlers) chargeRefunded(ctx context.Context, ev *gatewaydomain.Event) error {
	var charge gatewaydomain.ChargeObject
	if err := ev.Decode(&charge); err != nil {
		return err
	}
	if charge.PaymentIntent == "" {
		return fmt.Errorf("%w: charge %s has no payment intent", errs.ErrIntegrityViolation, charge.ID)
	}
	if !charge.Refunded {
		// Partial refunds are not issued by this service.
		h.log.Warn("partial refund reported; ledger unchanged",
			zap.String("event_id", ev.ID),
			zap.Int64("amount_refunded", charge.AmountRefunded),
		)
		return nil
	}

	var stripeRefundID *string
	if id := charge.LatestRefundID(); id != "" {
		stripeRefundID = &id
	}
	refund, err := h.refundSvc.FinalizeByPaymentIntent(ctx, charge.PaymentIntent, stripeRefundID)
	if err != nil {
		return err
	}
	if refund == nil {
		h.log.Info("no pending refund for charge; nothing to finalize", zap.String("event_id", ev.ID))
	}
	return nil
}

func (h *handlers) accountUpdated(ctx context.Context, ev *gatewaydomain.Event) error {
	var acct gatewaydomain.AccountObject
	if err := ev.Decode(&acct); err != nil {
		return err
	}
	accountID := acct.ID
	if accountID == "" {
		accountID = ev.Account
	}
	_, err := h.accountSvc.ApplyAccountUpdate(ctx, accountID, acct.ChargesEnabled, acct.PayoutsEnabled)
	return err
}

func (h *handlers) payoutStatus(status payoutdomain.Status) HandlerFunc {
	return func(ctx context.Context, ev *gatewaydomain.Event) error {
		var po gatewaydomain.PayoutObject
		if err := ev.Decode(&po); err != nil {
			return err
		}
		if po.ID == "" {
			return fmt.Errorf("%w: payout event without id", errs.ErrIntegrityViolation)
		}
		if status == payoutdomain.StatusFailed && po.FailureCode != "" {
			h.log.Warn("payout failed at gateway",
				zap.String("event_id", ev.ID),
				zap.String("failure_code", po.FailureCode),
			)
		}
		payout, err := h.payoutSvc.ApplyGatewayStatus(ctx, po.ID, string(status))
		if err != nil {
			return err
		}
		if payout == nil {
			h.log.Info("payout event for unknown payout ignored", zap.String("event_id", ev.ID))
		}
		return nil
	}
}

// unhandled acknowledges event types with no handler.
func (h *handlers) unhandled(ctx context.Context, ev *gatewaydomain.Event) error {
	targetID := ev.ID
	if err := h.auditSvc.AuditLog(ctx, auditdomain.ActorTypeGateway, nil, auditdomain.ActionWebhookUnhandled, "webhook_event", &targetID, map[string]any{
		"event_type": ev.Type,
	}); err != nil {
		h.log.Warn("failed to audit unhandled event", zap.String("event_type", ev.Type), zap.Error(err))
	}
	h.log.Info("unhandled event type acknowledged", zap.String("event_type", ev.Type), zap.String("event_id", ev.ID))
	return nil
}

func (h *handlers) afterTransition(ctx context.Context, ev *gatewaydomain.Event, result *orderdomain.TransitionResult, eventType string) {
	if result == nil || !result.Applied {
		return
	}
	order := result.Order
	targetID := order.ID.String()
	if err := h.auditSvc.AuditLog(ctx, auditdomain.ActorTypeGateway, nil, auditdomain.ActionOrderTransitioned, "order", &targetID, map[string]any{
		"from_status": string(result.From),
		"to_status":   string(order.Status),
		"event_id":    ev.ID,
		"event_type":  ev.Type,
	}); err != nil {
		h.log.Warn("failed to audit order transition", zap.String("order_id", targetID), zap.Error(err))
	}
	events.PublishAfterCommit(ctx, h.events, h.log, events.Event{
		Type:       eventType,
		Key:        targetID,
		OccurredAt: h.clock.Now(),
		Data: map[string]any{
			"order_id":   targetID,
			"buyer_id":   order.BuyerID.String(),
			"seller_id":  order.SellerID.String(),
			"product_id": order.ProductID.String(),
			"amount":     order.Amount,
			"currency":   order.Currency,
		},
	})
}
