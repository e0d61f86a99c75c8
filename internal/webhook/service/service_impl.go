package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/alert"
	auditdomain "github.com/smallbiznis/shelfpay/internal/audit/domain"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/config"
	gatewaydomain "github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/internal/observability/metrics"
	"github.com/smallbiznis/shelfpay/internal/reconcile"
	"github.com/smallbiznis/shelfpay/internal/webhook/domain"
	"github.com/smallbiznis/shelfpay/pkg/db/pagination"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Policy     *config.PaymentPolicyHolder
	Verifier   gatewaydomain.WebhookVerifier
	Dispatcher domain.Dispatcher
	Repo       domain.Repository
	AuditSvc   auditdomain.Service
	Alerts     alert.Notifier
	Metrics    *metrics.Metrics          `optional:"true"`
	Reconcile  *metrics.ReconcileMetrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	policy     *config.PaymentPolicyHolder
	verifier   gatewaydomain.WebhookVerifier
	dispatcher domain.Dispatcher
	repo       domain.Repository
	auditSvc   auditdomain.Service
	alerts     alert.Notifier
	metrics    *metrics.Metrics
	reconcile  *metrics.ReconcileMetrics
}

func New(p Params) domain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("webhook.service"),
		clock:      p.Clock,
		policy:     p.Policy,
		verifier:   p.Verifier,
		dispatcher: p.Dispatcher,
		repo:       p.Repo,
		auditSvc:   p.AuditSvc,
		alerts:     p.Alerts,
		metrics:    p.Metrics,
		reconcile:  p.Reconcile,
	}
}

func (s *Service) Receive(ctx context.Context, payload []byte, signatureHeader string) error {
	start := s.clock.Now()

	event, err := s.verifier.VerifyEvent(payload, signatureHeader)
	if err != nil {
		s.metrics.RecordWebhookEvent(ctx, "", "rejected")
		s.log.Warn("webhook rejected", zap.Error(err))
		return err
	}

	claimed, err := s.claim(ctx, event, payload)
	if err != nil {
		return err
	}
	if !claimed {
		s.metrics.RecordWebhookEvent(ctx, event.Type, "duplicate")
		s.log.Info("duplicate webhook event ignored",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.NamedError("reason", errs.ErrDuplicateEvent),
		)
		return nil
	}

	err = s.process(ctx, event)
	s.reconcile.ObserveWebhook(event.Type, s.clock.Now().Sub(start))
	return err
}

// claim inserts the delivery or takes over a row a previous attempt left
// open. False means another attempt owns or finished the event.
func (s *Service) claim(ctx context.Context, event *gatewaydomain.Event, payload []byte) (bool, error) {
	now := s.clock.Now()
	inserted, err := s.repo.Insert(ctx, s.db, &domain.Event{
		ID:        event.ID,
		EventType: event.Type,
		Payload:   datatypes.JSON(payload),
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return false, fmt.Errorf("record webhook event: %w", err)
	}
	if inserted {
		return true, nil
	}

	reclaimed, err := s.repo.Reclaim(ctx, s.db, event.ID, now.Add(-s.policy.Get().ReplayStaleAfter), now)
	if err != nil {
		return false, fmt.Errorf("reclaim webhook event: %w", err)
	}
	if reclaimed {
		s.log.Info("retrying webhook event", zap.String("event_id", event.ID), zap.String("event_type", event.Type))
	}
	return reclaimed, nil
}

// process dispatches a claimed event and records the outcome on its row.
func (s *Service) process(ctx context.Context, event *gatewaydomain.Event) error {
	handlerErr := s.dispatcher.Dispatch(ctx, event)

	// The outcome must land even when the caller has gone away.
	markCtx := context.WithoutCancel(ctx)
	now := s.clock.Now()

	var markErr error
	switch {
	case handlerErr == nil:
		markErr = s.repo.MarkProcessed(markCtx, s.db, event.ID, now)
		s.metrics.RecordWebhookEvent(ctx, event.Type, "processed")
	case reconcile.IsRetryable(handlerErr):
		markErr = s.repo.MarkRetryable(markCtx, s.db, event.ID, handlerErr.Error(), now)
		s.metrics.RecordWebhookEvent(ctx, event.Type, "retryable")
		s.reconcile.IncWebhookFailure(event.Type, handlerErr)
		s.log.Warn("webhook event left for redelivery",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(handlerErr),
		)
	default:
		markErr = s.repo.MarkFailed(markCtx, s.db, event.ID, handlerErr.Error(), now)
		s.metrics.RecordWebhookEvent(ctx, event.Type, "failed")
		s.reconcile.IncWebhookFailure(event.Type, handlerErr)
		s.onFailure(markCtx, event, handlerErr)
	}

	if markErr != nil {
		s.log.Error("failed to record webhook outcome",
			zap.String("event_id", event.ID),
			zap.Error(markErr),
		)
		return errors.Join(handlerErr, fmt.Errorf("record webhook outcome: %w", markErr))
	}
	s.refreshUnresolved(markCtx)
	return handlerErr
}

func (s *Service) onFailure(ctx context.Context, event *gatewaydomain.Event, err error) {
	if !errors.Is(err, errs.ErrIntegrityViolation) {
		s.log.Warn("webhook event failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err),
		)
		return
	}

	s.log.Error("integrity violation while reconciling webhook",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.Type),
		zap.Error(err),
	)
	s.metrics.RecordIntegrityViolation(ctx, "webhook")
	s.alerts.Notify(ctx, alert.Alert{
		Severity:  alert.SeverityCritical,
		Component: "webhook",
		Message:   "webhook event could not be reconciled",
		Fields: map[string]string{
			"event_id":   event.ID,
			"event_type": event.Type,
			"error":      err.Error(),
		},
	})
	targetID := event.ID
	if auditErr := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeGateway, nil, auditdomain.ActionIntegrityViolation, "webhook_event", &targetID, map[string]any{
		"event_type": event.Type,
		"error":      err.Error(),
	}); auditErr != nil {
		s.log.Warn("failed to audit integrity violation", zap.String("event_id", event.ID), zap.Error(auditErr))
	}
}

func (s *Service) refreshUnresolved(ctx context.Context) {
	if s.reconcile == nil {
		return
	}
	count, err := s.repo.CountUnresolved(ctx, s.db)
	if err != nil {
		s.log.Debug("count unresolved webhook events", zap.Error(err))
		return
	}
	s.reconcile.SetUnresolvedEvents(int(count))
}

func (s *Service) Replay(ctx context.Context, eventID string, operatorID snowflake.ID) (*domain.Event, error) {
	eventID = strings.TrimSpace(eventID)
	stored, err := s.repo.FindByID(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, domain.ErrEventNotFound
	}
	if stored.Resolved() {
		s.reconcile.IncWebhookReplay("already_resolved")
		return nil, domain.ErrEventResolved
	}

	now := s.clock.Now()
	claimed, err := s.repo.ReclaimForReplay(ctx, s.db, eventID, now.Add(-s.policy.Get().ReplayStaleAfter), now)
	if err != nil {
		return nil, err
	}
	if !claimed {
		s.reconcile.IncWebhookReplay("in_flight")
		return nil, domain.ErrEventInFlight
	}

	// The payload was verified when it was first received.
	event, err := s.verifier.ParseEvent(stored.Payload)
	if err != nil {
		markErr := s.repo.MarkFailed(context.WithoutCancel(ctx), s.db, eventID, err.Error(), s.clock.Now())
		return nil, errors.Join(err, markErr)
	}

	handlerErr := s.process(ctx, event)

	result := "processed"
	if handlerErr != nil {
		result = "failed"
	}
	s.reconcile.IncWebhookReplay(result)

	operator := operatorID.String()
	if err := s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeOperator, &operator, auditdomain.ActionWebhookReplayed, "webhook_event", &eventID, map[string]any{
		"event_type": event.Type,
		"result":     result,
	}); err != nil {
		s.log.Warn("failed to audit webhook replay", zap.String("event_id", eventID), zap.Error(err))
	}
	s.log.Info("webhook event replayed",
		zap.String("event_id", eventID),
		zap.String("operator_id", operator),
		zap.String("result", result),
	)

	updated, err := s.repo.FindByID(ctx, s.db, eventID)
	if err != nil {
		return nil, err
	}
	if handlerErr != nil {
		return updated, handlerErr
	}
	return updated, nil
}

func (s *Service) ListUnresolved(ctx context.Context, req domain.ListUnresolvedRequest) (domain.ListUnresolvedResponse, error) {
	var cursor *domain.Cursor
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListUnresolvedResponse{}, domain.ErrInvalidPageToken
		}
		createdAt, err := time.Parse(time.RFC3339Nano, decoded.CreatedAt)
		if err != nil || strings.TrimSpace(decoded.ID) == "" {
			return domain.ListUnresolvedResponse{}, domain.ErrInvalidPageToken
		}
		cursor = &domain.Cursor{ID: decoded.ID, CreatedAt: createdAt}
	}

	pageSize := pagination.ClampPageSize(req.PageSize, 50)
	items, err := s.repo.ListUnresolved(ctx, s.db, domain.ListFilter{Cursor: cursor, Limit: pageSize})
	if err != nil {
		return domain.ListUnresolvedResponse{}, err
	}
	total, err := s.repo.CountUnresolved(ctx, s.db)
	if err != nil {
		return domain.ListUnresolvedResponse{}, err
	}
	s.reconcile.SetUnresolvedEvents(int(total))

	pageInfo := pagination.BuildCursorPageInfo(items, int32(pageSize), func(item *domain.Event) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        item.ID,
			CreatedAt: item.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if len(items) > pageSize {
		items = items[:pageSize]
	}

	out := make([]domain.Event, 0, len(items))
	for _, item := range items {
		if item != nil {
			out = append(out, *item)
		}
	}

	resp := domain.ListUnresolvedResponse{Events: out, Total: total}
	if pageInfo != nil {
		resp.PageInfo = *pageInfo
	}
	return resp, nil
}
