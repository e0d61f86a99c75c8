package scheduler

import (
	"context"
	"errors"
	"strconv"

	"github.com/smallbiznis/shelfpay/internal/alert"
	payoutdomain "github.com/smallbiznis/shelfpay/internal/payout/domain"
	webhookdomain "github.com/smallbiznis/shelfpay/internal/webhook/domain"
	"go.uber.org/zap"
)

// PayoutRefreshJob polls the gateway for pending payouts whose status webhook
// has not arrived within PayoutRefreshAfter.
func (s *Scheduler) PayoutRefreshJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)
	cutoff := s.clock.Now().Add(-s.cfg.PayoutRefreshAfter)

	payouts, err := s.payoutRepo.ListStale(ctx, s.db, payoutdomain.StatusPending, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	var jobErr error
	for _, p := range payouts {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		updated, err := s.payoutSvc.GetPayout(ctx, p.UserID, p.ID)
		if err != nil {
			s.logJobError(ctx, "payout refresh failed", err, zap.String("payout_id", p.ID.String()))
			jobErr = errors.Join(jobErr, err)
			continue
		}
		run.AddProcessed(1)
		if updated.Status != p.Status {
			s.logger(ctx).Info("payout status reconciled",
				zap.String("payout_id", p.ID.String()),
				zap.String("from", string(p.Status)),
				zap.String("to", string(updated.Status)),
			)
		}
	}
	return jobErr
}

// StaleRefundsJob raises one alert per run while refunds stay pending past
// RefundStaleAfter. Those are refunds whose gateway call was ambiguous and
// whose charge.refunded webhook never arrived.
func (s *Scheduler) StaleRefundsJob(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.cfg.RefundStaleAfter)
	refunds, err := s.refundRepo.ListPendingBefore(ctx, s.db, cutoff, s.cfg.BatchSize)
	if err != nil {
		return err
	}
	jobRunFromContext(ctx).AddProcessed(len(refunds))
	if len(refunds) == 0 {
		return nil
	}

	oldest := refunds[0]
	s.alerts.Notify(ctx, alert.Alert{
		Severity:  alert.SeverityWarning,
		Component: "refund",
		Message:   "refunds pending without gateway confirmation",
		Fields: map[string]string{
			"count":             countLabel(len(refunds), s.cfg.BatchSize),
			"oldest_refund_id":  oldest.ID.String(),
			"oldest_order_id":   oldest.OrderID.String(),
			"payment_intent_id": oldest.PaymentIntentID,
			"pending_since":     oldest.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		},
	})
	return nil
}

// UnresolvedEventsJob refreshes the unresolved webhook gauge and alerts when
// the oldest unresolved event is older than UnresolvedAlertAfter.
func (s *Scheduler) UnresolvedEventsJob(ctx context.Context) error {
	total, err := s.webhookRepo.CountUnresolved(ctx, s.db)
	if err != nil {
		return err
	}
	s.reconcile.SetUnresolvedEvents(int(total))
	if total == 0 {
		return nil
	}

	oldest, err := s.webhookRepo.ListUnresolved(ctx, s.db, webhookdomain.ListFilter{Limit: 1})
	if err != nil {
		return err
	}
	jobRunFromContext(ctx).AddProcessed(int(total))
	if len(oldest) == 0 {
		return nil
	}
	ev := oldest[0]
	age := s.clock.Now().Sub(ev.CreatedAt)
	if age < s.cfg.UnresolvedAlertAfter {
		return nil
	}

	fields := map[string]string{
		"count":      strconv.FormatInt(total, 10),
		"event_id":   ev.ID,
		"event_type": ev.EventType,
		"attempts":   strconv.Itoa(ev.Attempts),
	}
	if ev.ProcessingError != nil {
		fields["error"] = *ev.ProcessingError
	}
	s.alerts.Notify(ctx, alert.Alert{
		Severity:  alert.SeverityWarning,
		Component: "webhook",
		Message:   "webhook events unresolved past threshold",
		Fields:    fields,
	})
	return nil
}

func countLabel(n, limit int) string {
	if n >= limit {
		return strconv.Itoa(n) + "+"
	}
	return strconv.Itoa(n)
}
