package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/alert"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/ledgertest"
	payoutdomain "github.com/smallbiznis/shelfpay/internal/payout/domain"
	payoutrepo "github.com/smallbiznis/shelfpay/internal/payout/repository"
	refunddomain "github.com/smallbiznis/shelfpay/internal/refund/domain"
	refundrepo "github.com/smallbiznis/shelfpay/internal/refund/repository"
	webhookdomain "github.com/smallbiznis/shelfpay/internal/webhook/domain"
	webhookrepo "github.com/smallbiznis/shelfpay/internal/webhook/repository"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var start = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type mockPayouts struct{ mock.Mock }

func (m *mockPayouts) CreatePayout(ctx context.Context, req payoutdomain.CreatePayoutRequest) (*payoutdomain.Payout, error) {
	args := m.Called(ctx, req)
	p, _ := args.Get(0).(*payoutdomain.Payout)
	return p, args.Error(1)
}

func (m *mockPayouts) GetPayout(ctx context.Context, userID, payoutID snowflake.ID) (*payoutdomain.Payout, error) {
	args := m.Called(ctx, userID, payoutID)
	p, _ := args.Get(0).(*payoutdomain.Payout)
	return p, args.Error(1)
}

func (m *mockPayouts) CancelPayout(ctx context.Context, userID, payoutID snowflake.ID) (*payoutdomain.Payout, error) {
	args := m.Called(ctx, userID, payoutID)
	p, _ := args.Get(0).(*payoutdomain.Payout)
	return p, args.Error(1)
}

func (m *mockPayouts) ApplyGatewayStatus(ctx context.Context, stripePayoutID, status string) (*payoutdomain.Payout, error) {
	args := m.Called(ctx, stripePayoutID, status)
	p, _ := args.Get(0).(*payoutdomain.Payout)
	return p, args.Error(1)
}

type fixture struct {
	sched   *Scheduler
	conn    *gorm.DB
	clock   *clock.FakeClock
	payouts *mockPayouts
	alerts  *alert.Recorder
}

func newFixture(t *testing.T, cfg Config) fixture {
	t.Helper()
	conn := ledgertest.NewDB(t)
	clk := clock.NewFakeClock(start)
	payouts := &mockPayouts{}
	alerts := &alert.Recorder{}

	sched, err := New(Params{
		DB:          conn,
		Log:         zap.NewNop(),
		Clock:       clk,
		GenID:       ledgertest.NewNode(t),
		Config:      cfg,
		PayoutRepo:  payoutrepo.Provide(),
		PayoutSvc:   payouts,
		RefundRepo:  refundrepo.Provide(),
		WebhookRepo: webhookrepo.Provide(),
		Alerts:      alerts,
	})
	require.NoError(t, err)
	return fixture{sched: sched, conn: conn, clock: clk, payouts: payouts, alerts: alerts}
}

func (f fixture) seedPayout(t *testing.T, id snowflake.ID, status payoutdomain.Status, updatedAt time.Time) *payoutdomain.Payout {
	t.Helper()
	p := &payoutdomain.Payout{
		ID:             id,
		UserID:         10,
		Amount:         1500,
		Currency:       "usd",
		StripePayoutID: "po_" + id.String(),
		Status:         status,
		CreatedAt:      updatedAt,
		UpdatedAt:      updatedAt,
	}
	require.NoError(t, payoutrepo.Provide().Insert(context.Background(), f.conn, p))
	return p
}

func TestNewRejectsMissingDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{BatchSize: 5}.withDefaults()
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, time.Minute, cfg.RunInterval)
	assert.Equal(t, 30*time.Minute, cfg.PayoutRefreshAfter)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
}

func TestPayoutRefreshOnlyTouchesStalePending(t *testing.T) {
	f := newFixture(t, Config{})
	stale := f.seedPayout(t, 1, payoutdomain.StatusPending, start.Add(-time.Hour))
	f.seedPayout(t, 2, payoutdomain.StatusPending, start.Add(-time.Minute))
	f.seedPayout(t, 3, payoutdomain.StatusPaid, start.Add(-2*time.Hour))

	paid := *stale
	paid.Status = payoutdomain.StatusPaid
	f.payouts.On("GetPayout", mock.Anything, stale.UserID, stale.ID).Return(&paid, nil).Once()

	require.NoError(t, f.sched.RunOnce(context.Background()))
	f.payouts.AssertExpectations(t)
	f.payouts.AssertNumberOfCalls(t, "GetPayout", 1)
}

func TestPayoutRefreshErrorsAreReported(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobPayoutRefresh}})
	first := f.seedPayout(t, 1, payoutdomain.StatusPending, start.Add(-2*time.Hour))
	second := f.seedPayout(t, 2, payoutdomain.StatusPending, start.Add(-time.Hour))

	f.payouts.On("GetPayout", mock.Anything, first.UserID, first.ID).
		Return(nil, errs.Wrap(errs.ErrNotFound, "gateway_account_missing"))
	f.payouts.On("GetPayout", mock.Anything, second.UserID, second.ID).Return(second, nil)

	err := f.sched.RunOnce(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Contains(t, err.Error(), JobPayoutRefresh)
	f.payouts.AssertNumberOfCalls(t, "GetPayout", 2)
}

func TestStaleRefundsAlertOncePerRun(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobStaleRefunds}})
	repo := refundrepo.Provide()
	for i, age := range []time.Duration{3 * time.Hour, 2 * time.Hour, 10 * time.Minute} {
		created := start.Add(-age)
		inserted, err := repo.InsertPending(context.Background(), f.conn, &refunddomain.Refund{
			ID:              snowflake.ID(100 + i),
			OrderID:         snowflake.ID(400 + i),
			RequesterID:     200,
			Amount:          1999,
			PaymentIntentID: "pi_" + snowflake.ID(i).String(),
			CreatedAt:       created,
			UpdatedAt:       created,
		})
		require.NoError(t, err)
		require.True(t, inserted)
	}

	require.NoError(t, f.sched.RunOnce(context.Background()))
	alerts := f.alerts.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "refund", alerts[0].Component)
	assert.Equal(t, "2", alerts[0].Fields["count"])
	assert.Equal(t, "100", alerts[0].Fields["oldest_refund_id"])
	assert.Equal(t, "400", alerts[0].Fields["oldest_order_id"])
}

func TestStaleRefundsQuietWhenNonePending(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobStaleRefunds}})
	require.NoError(t, f.sched.RunOnce(context.Background()))
	assert.Empty(t, f.alerts.Alerts())
}

func TestUnresolvedEventsAlertAfterThreshold(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{JobUnresolvedEvents}, UnresolvedAlertAfter: time.Hour})
	repo := webhookrepo.Provide()
	ctx := context.Background()

	created := start.Add(-30 * time.Minute)
	_, err := repo.Insert(ctx, f.conn, &webhookdomain.Event{ID: "evt_1", EventType: "payout.paid", Payload: []byte(`{}`), CreatedAt: created, UpdatedAt: created})
	require.NoError(t, err)
	require.NoError(t, repo.MarkFailed(ctx, f.conn, "evt_1", "missing_order_metadata", created))

	require.NoError(t, f.sched.RunOnce(ctx))
	assert.Empty(t, f.alerts.Alerts())

	f.clock.Advance(time.Hour)
	require.NoError(t, f.sched.RunOnce(ctx))
	alerts := f.alerts.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "webhook", alerts[0].Component)
	assert.Equal(t, "evt_1", alerts[0].Fields["event_id"])
	assert.Equal(t, "1", alerts[0].Fields["count"])
	assert.Equal(t, "missing_order_metadata", alerts[0].Fields["error"])
}

func TestRunJobTreatsDeadlineAsSoftTimeout(t *testing.T) {
	f := newFixture(t, Config{})
	err := f.sched.runJob(context.Background(), "slow", func(ctx context.Context) error {
		return context.DeadlineExceeded
	})
	require.NoError(t, err)

	err = f.sched.runJob(context.Background(), "broken", func(ctx context.Context) error {
		return errors.New("boom")
	})
	require.EqualError(t, err, "broken: boom")
}

func TestIsJobEnabled(t *testing.T) {
	f := newFixture(t, Config{EnabledJobs: []string{"PAYOUT_REFRESH"}})
	assert.True(t, f.sched.isJobEnabled(JobPayoutRefresh))
	assert.False(t, f.sched.isJobEnabled(JobStaleRefunds))

	all := newFixture(t, Config{})
	assert.True(t, all.sched.isJobEnabled(JobUnresolvedEvents))
}
