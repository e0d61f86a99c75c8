// Package scheduler runs periodic reconciliation sweeps: it refreshes payouts
// the gateway never reported on and surfaces refunds and webhook events that
// stayed unresolved past their thresholds.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/alert"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/observability/metrics"
	payoutdomain "github.com/smallbiznis/shelfpay/internal/payout/domain"
	refunddomain "github.com/smallbiznis/shelfpay/internal/refund/domain"
	webhookdomain "github.com/smallbiznis/shelfpay/internal/webhook/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	JobPayoutRefresh    = "payout_refresh"
	JobStaleRefunds     = "stale_refunds"
	JobUnresolvedEvents = "unresolved_events"

	actorID = "scheduler"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	GenID       *snowflake.Node
	Config      Config `optional:"true"`
	PayoutRepo  payoutdomain.Repository
	PayoutSvc   payoutdomain.Service
	RefundRepo  refunddomain.Repository
	WebhookRepo webhookdomain.Repository
	Alerts      alert.Notifier
	Reconcile   *metrics.ReconcileMetrics `optional:"true"`
}

type Scheduler struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	genID       *snowflake.Node
	cfg         Config
	payoutRepo  payoutdomain.Repository
	payoutSvc   payoutdomain.Service
	refundRepo  refunddomain.Repository
	webhookRepo webhookdomain.Repository
	alerts      alert.Notifier
	reconcile   *metrics.ReconcileMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.DB == nil || p.Log == nil || p.Clock == nil || p.GenID == nil ||
		p.PayoutRepo == nil || p.PayoutSvc == nil || p.RefundRepo == nil ||
		p.WebhookRepo == nil || p.Alerts == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		db:          p.DB,
		log:         p.Log.Named("scheduler"),
		clock:       p.Clock,
		genID:       p.GenID,
		cfg:         p.Config.withDefaults(),
		payoutRepo:  p.PayoutRepo,
		payoutSvc:   p.PayoutSvc,
		refundRepo:  p.RefundRepo,
		webhookRepo: p.WebhookRepo,
		alerts:      p.Alerts,
		reconcile:   p.Reconcile,
	}, nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	ctx, run := s.startJobRun(ctx, name)
	err := fn(ctx)
	if err != nil && run.errorCount == 0 {
		run.IncError()
	}
	s.logJobFinish(ctx, run)
	s.reconcile.ObserveSweepJob(name, s.clock.Now().Sub(start), err)
	if err == nil {
		return nil
	}

	// Deadline is a soft timeout; the next tick picks up the remainder.
	if errors.Is(err, context.DeadlineExceeded) {
		s.logger(ctx).Warn("job timed out", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobPayoutRefresh, s.PayoutRefreshJob},
		{JobStaleRefunds, s.StaleRefundsJob},
		{JobUnresolvedEvents, s.UnresolvedEventsJob},
	}

	var err error
	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// isJobEnabled treats an empty EnabledJobs list as all jobs on.
func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
