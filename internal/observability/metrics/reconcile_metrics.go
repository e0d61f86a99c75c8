package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"gorm.io/gorm"
)

const (
	FailureReasonDeadlineExceeded     = "deadline_exceeded"
	FailureReasonIntegrity            = "integrity_violation"
	FailureReasonNotFound             = "not_found"
	FailureReasonGateway              = "gateway"
	FailureReasonAuthentication       = "authentication"
	FailureReasonInsufficientFunds    = "insufficient_funds"
	FailureReasonConflict             = "conflict"
	FailureReasonDBLockTimeout        = "db_lock_timeout"
	FailureReasonSerializationFailure = "serialization_failure"
	FailureReasonUniqueViolation      = "unique_violation"
	FailureReasonUnknown              = "unknown"
)

const (
	LockResourcePayoutUser = "payout_user"
)

// ReconcileMetrics captures reconciliation health signals scraped via /metrics.
type ReconcileMetrics struct {
	webhookDuration  *prometheus.HistogramVec
	webhookFailures  *prometheus.CounterVec
	webhookReplays   *prometheus.CounterVec
	gatewayDuration  *prometheus.HistogramVec
	lockWait         *prometheus.HistogramVec
	unresolvedEvents prometheus.Gauge
	sweepRuns        *prometheus.CounterVec
	sweepErrors      *prometheus.CounterVec
	sweepDuration    *prometheus.HistogramVec
}

var (
	reconcileMetricsOnce sync.Once
	reconcileMetrics     *ReconcileMetrics
)

// Reconcile returns the singleton reconciliation metrics registry.
func Reconcile() *ReconcileMetrics {
	return ReconcileWithConfig(Config{})
}

// ReconcileWithConfig returns the singleton registry using config labels.
func ReconcileWithConfig(cfg Config) *ReconcileMetrics {
	reconcileMetricsOnce.Do(func() {
		reconcileMetrics = newReconcileMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reconcileMetrics
}

// ResetReconcileMetricsForTest resets the singleton for tests.
func ResetReconcileMetricsForTest() {
	reconcileMetricsOnce = sync.Once{}
	reconcileMetrics = nil
}

func newReconcileMetrics(registerer prometheus.Registerer, cfg Config) *ReconcileMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "shelfpay"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	webhookDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "shelfpay_webhook_processing_seconds",
		Help:        "Webhook verification, dedup and handler latency by event type.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"event_type"})
	webhookFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "shelfpay_webhook_failures_total",
		Help:        "Webhook handler failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"event_type", "reason"})
	webhookReplays := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "shelfpay_webhook_replays_total",
		Help:        "Operator-initiated webhook replays by result.",
		ConstLabels: constLabels,
	}, []string{"result"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "shelfpay_gateway_call_seconds",
		Help:        "Payment processor call latency by operation.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		ConstLabels: constLabels,
	}, []string{"operation"})
	lockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "shelfpay_lock_wait_seconds",
		Help:        "Time spent acquiring serialization locks.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: constLabels,
	}, []string{"resource"})
	unresolvedEvents := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "shelfpay_webhook_unresolved_events",
		Help:        "Webhook events last seen failed or unprocessed.",
		ConstLabels: constLabels,
	})

	sweepRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "shelfpay_sweep_job_runs_total",
		Help:        "Reconciliation sweep job executions.",
		ConstLabels: constLabels,
	}, []string{"job"})
	sweepErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "shelfpay_sweep_job_errors_total",
		Help:        "Reconciliation sweep job errors by reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	sweepDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "shelfpay_sweep_job_seconds",
		Help:        "Reconciliation sweep job duration.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		ConstLabels: constLabels,
	}, []string{"job"})

	registerer.MustRegister(
		webhookDuration,
		webhookFailures,
		webhookReplays,
		gatewayDuration,
		lockWait,
		unresolvedEvents,
		sweepRuns,
		sweepErrors,
		sweepDuration,
	)

	return &ReconcileMetrics{
		webhookDuration:  webhookDuration,
		webhookFailures:  webhookFailures,
		webhookReplays:   webhookReplays,
		gatewayDuration:  gatewayDuration,
		lockWait:         lockWait,
		unresolvedEvents: unresolvedEvents,
		sweepRuns:        sweepRuns,
		sweepErrors:      sweepErrors,
		sweepDuration:    sweepDuration,
	}
}

// ObserveWebhook records end-to-end processing latency for one delivery.
func (m *ReconcileMetrics) ObserveWebhook(eventType string, duration time.Duration) {
	if m == nil || m.webhookDuration == nil {
		return
	}
	m.webhookDuration.WithLabelValues(eventTypeLabel(eventType)).Observe(duration.Seconds())
}

// IncWebhookFailure increments the failure counter with classification.
func (m *ReconcileMetrics) IncWebhookFailure(eventType string, err error) {
	if m == nil || err == nil || m.webhookFailures == nil {
		return
	}
	m.webhookFailures.WithLabelValues(eventTypeLabel(eventType), ClassifyFailureReason(err)).Inc()
}

func (m *ReconcileMetrics) IncWebhookReplay(result string) {
	if m == nil || m.webhookReplays == nil {
		return
	}
	m.webhookReplays.WithLabelValues(result).Inc()
}

func (m *ReconcileMetrics) ObserveGatewayCall(operation string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveLockWait records time spent waiting for a serialization lock.
func (m *ReconcileMetrics) ObserveLockWait(resource string, duration time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.lockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

func (m *ReconcileMetrics) SetUnresolvedEvents(count int) {
	if m == nil || m.unresolvedEvents == nil {
		return
	}
	m.unresolvedEvents.Set(float64(count))
}

// ObserveSweepJob records one sweep job run. A nil err counts as success.
func (m *ReconcileMetrics) ObserveSweepJob(job string, duration time.Duration, err error) {
	if m == nil || m.sweepRuns == nil {
		return
	}
	m.sweepRuns.WithLabelValues(job).Inc()
	m.sweepDuration.WithLabelValues(job).Observe(duration.Seconds())
	if err != nil {
		m.sweepErrors.WithLabelValues(job, ClassifyFailureReason(err)).Inc()
	}
}

var knownEventTypes = map[string]struct{}{
	"checkout.session.completed":    {},
	"checkout.session.expired":      {},
	"payment_intent.payment_failed": {},
	"charge.refunded":               {},
	"account.updated":               {},
	"payout.paid":                   {},
	"payout.failed":                 {},
}

// eventTypeLabel folds unregistered event types into "other" to bound cardinality.
func eventTypeLabel(eventType string) string {
	if _, ok := knownEventTypes[eventType]; ok {
		return eventType
	}
	return "other"
}

// ClassifyFailureReason maps reconciliation errors to low-cardinality reasons.
func ClassifyFailureReason(err error) string {
	if err == nil {
		return FailureReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureReasonDeadlineExceeded
	}
	switch errs.Class(err) {
	case errs.ErrIntegrityViolation:
		return FailureReasonIntegrity
	case errs.ErrNotFound:
		return FailureReasonNotFound
	case errs.ErrGateway:
		return FailureReasonGateway
	case errs.ErrAuthentication:
		return FailureReasonAuthentication
	case errs.ErrInsufficientFunds:
		return FailureReasonInsufficientFunds
	case errs.ErrConflict:
		return FailureReasonConflict
	}
	if hasPGCode(err, "55P03") {
		return FailureReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return FailureReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return FailureReasonUniqueViolation
	}
	return FailureReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
