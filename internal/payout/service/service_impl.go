package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/alert"
	auditdomain "github.com/smallbiznis/shelfpay/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/shelfpay/internal/catalog/domain"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/config"
	"github.com/smallbiznis/shelfpay/internal/events"
	gatewaydomain "github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/internal/lock"
	"github.com/smallbiznis/shelfpay/internal/observability/metrics"
	"github.com/smallbiznis/shelfpay/internal/payout/domain"
	walletdomain "github.com/smallbiznis/shelfpay/internal/wallet/domain"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockKeyFormat = "payout:user:%s"

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Policy      *config.PaymentPolicyHolder
	Gateway     gatewaydomain.Gateway
	Locker      lock.Locker
	Repo        domain.Repository
	CatalogRepo catalogdomain.Repository
	WalletRepo  walletdomain.Repository
	AuditSvc    auditdomain.Service
	Events      events.Publisher
	Alerts      alert.Notifier
	Metrics     *metrics.Metrics          `optional:"true"`
	Reconcile   *metrics.ReconcileMetrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	policy      *config.PaymentPolicyHolder
	gateway     gatewaydomain.Gateway
	locker      lock.Locker
	repo        domain.Repository
	catalogRepo catalogdomain.Repository
	walletRepo  walletdomain.Repository
	auditSvc    auditdomain.Service
	events      events.Publisher
	alerts      alert.Notifier
	metrics     *metrics.Metrics
	reconcile   *metrics.ReconcileMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payout.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		policy:      p.Policy,
		gateway:     p.Gateway,
		locker:      p.Locker,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		walletRepo:  p.WalletRepo,
		auditSvc:    p.AuditSvc,
		events:      p.Events,
		alerts:      p.Alerts,
		metrics:     p.Metrics,
		reconcile:   p.Reconcile,
	}
}

func (s *Service) CreatePayout(ctx context.Context, req domain.CreatePayoutRequest) (*domain.Payout, error) {
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	accountID, err := s.payableAccount(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	policy := s.policy.Get()
	release, err := s.acquire(ctx, req.UserID, policy)
	if err != nil {
		return nil, err
	}
	defer release()

	log := s.log.With(zap.String("user_id", req.UserID.String()), zap.Int64("amount", req.Amount))

	gatewayCtx, cancel := context.WithTimeout(ctx, policy.GatewayTimeout)
	defer cancel()

	if _, err := s.gateway.GetAccount(gatewayCtx, accountID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: gateway account missing", catalogdomain.ErrAccountNotLinked)
		}
		return nil, err
	}

	balance, err := s.gateway.GetBalance(gatewayCtx, accountID)
	if err != nil {
		return nil, err
	}
	if available := balance.AvailableIn(policy.Currency); available < req.Amount {
		s.metrics.RecordPayout(ctx, "insufficient_funds")
		log.Info("payout rejected: insufficient available balance", zap.Int64("available", available))
		return nil, fmt.Errorf("%w: available %d, requested %d", domain.ErrInsufficientBalance, available, req.Amount)
	}

	payoutID := s.genID.Generate()
	result, err := s.gateway.CreatePayout(gatewayCtx, gatewaydomain.PayoutParams{
		IdempotencyKey: payoutID.String(),
		AccountID:      accountID,
		Amount:         req.Amount,
		Currency:       policy.Currency,
		Metadata: map[string]string{
			"payout_id": payoutID.String(),
			"user_id":   req.UserID.String(),
		},
	})
	if err != nil {
		s.metrics.RecordPayout(ctx, "gateway_failed")
		log.Warn("gateway payout failed; nothing recorded", zap.Error(err))
		return nil, err
	}

	status, ok := domain.ParseStatus(result.Status)
	if !ok {
		status = domain.StatusPending
	}
	now := s.clock.Now()
	payout := &domain.Payout{
		ID:             payoutID,
		UserID:         req.UserID,
		Amount:         req.Amount,
		Currency:       policy.Currency,
		StripePayoutID: result.ID,
		Status:         status,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.Insert(ctx, tx, payout); err != nil {
			return err
		}
		return s.walletRepo.RecordPayout(ctx, tx, req.UserID, req.Amount, now)
	})
	if err != nil {
		s.compensate(ctx, accountID, payout, err)
		return nil, err
	}

	s.metrics.RecordPayout(ctx, "created")
	s.audit(ctx, auditdomain.ActorTypeUser, auditdomain.ActionPayoutCreated, payout, nil)
	events.PublishAfterCommit(ctx, s.events, s.log, events.Event{
		Type:       events.TypePayoutCreated,
		Key:        req.UserID.String(),
		OccurredAt: now,
		Data:       payoutEventData(payout),
	})
	log.Info("payout created",
		zap.String("payout_id", payout.ID.String()),
		zap.String("stripe_payout_id", payout.StripePayoutID),
	)
	return payout, nil
}

// compensate cancels a gateway payout whose local record could not be
// written, so the ledger and the gateway do not diverge silently.
func (s *Service) compensate(ctx context.Context, accountID string, payout *domain.Payout, cause error) {
	s.metrics.RecordPayout(ctx, "compensated")
	s.metrics.RecordIntegrityViolation(ctx, "payout")

	cancelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.Get().GatewayTimeout)
	defer cancel()

	fields := map[string]string{
		"payout_id":        payout.ID.String(),
		"stripe_payout_id": payout.StripePayoutID,
		"user_id":          payout.UserID.String(),
		"cause":            cause.Error(),
	}
	message := "payout recorded at gateway but not locally; canceled at gateway"
	if _, err := s.gateway.CancelPayout(cancelCtx, accountID, payout.StripePayoutID); err != nil {
		message = "payout recorded at gateway but not locally; gateway cancel failed"
		fields["cancel_error"] = err.Error()
	}

	s.alerts.Notify(ctx, alert.Alert{
		Severity:  alert.SeverityCritical,
		Component: "payout",
		Message:   message,
		Fields:    fields,
	})
	s.audit(ctx, auditdomain.ActorTypeSystem, auditdomain.ActionPayoutCompensated, payout, map[string]any{"cause": cause.Error()})
}

func (s *Service) GetPayout(ctx context.Context, userID, payoutID snowflake.ID) (*domain.Payout, error) {
	payout, err := s.owned(ctx, userID, payoutID)
	if err != nil {
		return nil, err
	}
	accountID, err := s.payableAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.policy.Get().GatewayTimeout)
	defer cancel()
	remote, err := s.gateway.GetPayout(gatewayCtx, accountID, payout.StripePayoutID)
	if err != nil {
		s.log.Warn("payout refresh failed; returning stored status",
			zap.String("payout_id", payout.ID.String()),
			zap.Error(err),
		)
		return payout, nil
	}
	status, ok := domain.ParseStatus(remote.Status)
	if !ok || status == payout.Status {
		return payout, nil
	}
	updated, err := s.applyStatus(ctx, payout, status, auditdomain.ActorTypeGateway)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) CancelPayout(ctx context.Context, userID, payoutID snowflake.ID) (*domain.Payout, error) {
	payout, err := s.owned(ctx, userID, payoutID)
	if err != nil {
		return nil, err
	}
	if payout.Status == domain.StatusCanceled {
		return payout, nil
	}
	if payout.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: payout %s is %s", domain.ErrNotCancelable, payout.ID, payout.Status)
	}
	accountID, err := s.payableAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	policy := s.policy.Get()
	release, err := s.acquire(ctx, userID, policy)
	if err != nil {
		return nil, err
	}
	defer release()

	gatewayCtx, cancel := context.WithTimeout(ctx, policy.GatewayTimeout)
	defer cancel()
	if _, err := s.gateway.CancelPayout(gatewayCtx, accountID, payout.StripePayoutID); err != nil {
		return nil, err
	}
	return s.applyStatus(ctx, payout, domain.StatusCanceled, auditdomain.ActorTypeUser)
}

func (s *Service) ApplyGatewayStatus(ctx context.Context, stripePayoutID, rawStatus string) (*domain.Payout, error) {
	status, ok := domain.ParseStatus(rawStatus)
	if !ok {
		return nil, fmt.Errorf("%w: unknown payout status %q", errs.ErrIntegrityViolation, rawStatus)
	}
	payout, err := s.repo.FindByStripeID(ctx, s.db, stripePayoutID)
	if err != nil {
		return nil, err
	}
	if payout == nil {
		return nil, nil
	}
	if payout.Status == status {
		return payout, nil
	}
	return s.applyStatus(ctx, payout, status, auditdomain.ActorTypeGateway)
}

// applyStatus moves the payout and, when the funds come back, re-credits the
// wallet in the same transaction.
func (s *Service) applyStatus(ctx context.Context, payout *domain.Payout, to domain.Status, actor auditdomain.ActorType) (*domain.Payout, error) {
	from := payout.Status
	if !domain.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: payout %s %s -> %s", errs.ErrIntegrityViolation, payout.ID, from, to)
	}

	now := s.clock.Now()
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.repo.UpdateStatus(ctx, tx, payout.ID, from, to, now)
		if err != nil || !ok {
			return err
		}
		if to.ReturnsFunds() {
			if err := s.walletRepo.Credit(ctx, tx, payout.UserID, payout.Amount, payout.Currency, now); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, s.db, payout.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrPayoutNotFound
	}
	if !applied {
		return current, nil
	}

	s.metrics.RecordPayout(ctx, string(to))
	action := auditdomain.ActionPayoutStatus
	if to == domain.StatusCanceled {
		action = auditdomain.ActionPayoutCanceled
	}
	s.audit(ctx, actor, action, current, map[string]any{"from_status": string(from)})

	if eventType := payoutEventType(to); eventType != "" {
		events.PublishAfterCommit(ctx, s.events, s.log, events.Event{
			Type:       eventType,
			Key:        current.UserID.String(),
			OccurredAt: now,
			Data:       payoutEventData(current),
		})
	}
	s.log.Info("payout status changed",
		zap.String("payout_id", current.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return current, nil
}

func (s *Service) owned(ctx context.Context, userID, payoutID snowflake.ID) (*domain.Payout, error) {
	payout, err := s.repo.FindByID(ctx, s.db, payoutID)
	if err != nil {
		return nil, err
	}
	// Other users' payouts are reported as missing.
	if payout == nil || payout.UserID != userID {
		return nil, domain.ErrPayoutNotFound
	}
	return payout, nil
}

func (s *Service) payableAccount(ctx context.Context, userID snowflake.ID) (string, error) {
	user, err := s.catalogRepo.FindUser(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "", catalogdomain.ErrUserNotFound
	}
	accountID := user.PayableAccount()
	if accountID == "" {
		return "", catalogdomain.ErrAccountNotLinked
	}
	return accountID, nil
}

func (s *Service) acquire(ctx context.Context, userID snowflake.ID, policy config.PaymentPolicy) (func(), error) {
	start := time.Now()
	release, err := lock.Acquire(ctx, s.locker, fmt.Sprintf(lockKeyFormat, userID), policy.PayoutLockTTL, policy.PayoutLockWait)
	s.reconcile.ObserveLockWait(metrics.LockResourcePayoutUser, time.Since(start))
	if err != nil {
		s.log.Warn("payout lock not acquired", zap.String("user_id", userID.String()), zap.Error(err))
		return nil, err
	}
	return release, nil
}

func (s *Service) audit(ctx context.Context, actor auditdomain.ActorType, action string, payout *domain.Payout, extra map[string]any) {
	targetID := payout.ID.String()
	metadata := map[string]any{
		"user_id":          payout.UserID.String(),
		"amount":           payout.Amount,
		"currency":         payout.Currency,
		"status":           string(payout.Status),
		"stripe_payout_id": payout.StripePayoutID,
	}
	for k, v := range extra {
		metadata[k] = v
	}
	if err := s.auditSvc.AuditLog(ctx, actor, nil, action, "payout", &targetID, metadata); err != nil {
		s.log.Warn("failed to write payout audit log", zap.String("action", action), zap.Error(err))
	}
}

func payoutEventType(status domain.Status) string {
	switch status {
	case domain.StatusPaid:
		return events.TypePayoutPaid
	case domain.StatusFailed:
		return events.TypePayoutFailed
	case domain.StatusCanceled:
		return events.TypePayoutCanceled
	default:
		return ""
	}
}

func payoutEventData(p *domain.Payout) map[string]any {
	return map[string]any{
		"payout_id": p.ID.String(),
		"user_id":   p.UserID.String(),
		"amount":    p.Amount,
		"currency":  p.Currency,
		"status":    string(p.Status),
	}
}
