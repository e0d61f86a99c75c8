package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"gorm.io/gorm"
)

func TestClassifyFailureReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: FailureReasonDeadlineExceeded},
		{name: "integrity", err: errs.Wrap(errs.ErrIntegrityViolation, "missing_order_metadata"), want: FailureReasonIntegrity},
		{name: "not_found", err: errs.Wrap(errs.ErrNotFound, "order_not_found"), want: FailureReasonNotFound},
		{name: "gateway", err: errs.NewGatewayError("refund.create", errors.New("declined")), want: FailureReasonGateway},
		{name: "db_lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: FailureReasonDBLockTimeout},
		{name: "serialization_failure", err: &pgconn.PgError{Code: "40001"}, want: FailureReasonSerializationFailure},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: FailureReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: FailureReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyFailureReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestWebhookFailureFoldsUnknownEventTypes(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newReconcileMetrics(registry, Config{ServiceName: "shelfpay", Environment: "test"})

	m.IncWebhookFailure("invoice.created", errs.Wrap(errs.ErrNotFound, "order_not_found"))
	m.IncWebhookFailure("checkout.session.completed", errs.Wrap(errs.ErrNotFound, "order_not_found"))

	if got := testutil.ToFloat64(m.webhookFailures.WithLabelValues("other", FailureReasonNotFound)); got != 1 {
		t.Fatalf("expected folded count 1, got %v", got)
	}
	if got := testutil.ToFloat64(m.webhookFailures.WithLabelValues("checkout.session.completed", FailureReasonNotFound)); got != 1 {
		t.Fatalf("expected completed count 1, got %v", got)
	}
}

func TestUnresolvedGaugeAndLockWait(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newReconcileMetrics(registry, Config{})

	m.SetUnresolvedEvents(4)
	if got := testutil.ToFloat64(m.unresolvedEvents); got != 4 {
		t.Fatalf("expected gauge 4, got %v", got)
	}

	m.ObserveLockWait(LockResourcePayoutUser, -time.Second)
	if got := testutil.CollectAndCount(m.lockWait); got != 1 {
		t.Fatalf("expected one lock wait series, got %d", got)
	}
}

func TestObserveSweepJob(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newReconcileMetrics(registry, Config{})

	m.ObserveSweepJob("payout_refresh", time.Second, nil)
	m.ObserveSweepJob("payout_refresh", time.Second, errs.NewGatewayError("payout.get", errors.New("down")))

	if got := testutil.ToFloat64(m.sweepRuns.WithLabelValues("payout_refresh")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.sweepErrors.WithLabelValues("payout_refresh", FailureReasonGateway)); got != 1 {
		t.Fatalf("expected 1 gateway error, got %v", got)
	}

	var nilMetrics *ReconcileMetrics
	nilMetrics.ObserveSweepJob("payout_refresh", time.Second, nil)
}
