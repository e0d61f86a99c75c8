package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/alert"
	catalogdomain "github.com/smallbiznis/shelfpay/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/shelfpay/internal/catalog/repository"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/config"
	"github.com/smallbiznis/shelfpay/internal/events"
	gatewaydomain "github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/internal/gateway/fake"
	"github.com/smallbiznis/shelfpay/internal/ledgertest"
	"github.com/smallbiznis/shelfpay/internal/lock"
	"github.com/smallbiznis/shelfpay/internal/payout/domain"
	"github.com/smallbiznis/shelfpay/internal/payout/repository"
	walletrepo "github.com/smallbiznis/shelfpay/internal/wallet/repository"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sellerID snowflake.ID = 10
	account               = "acct_seller"
)

type fixture struct {
	svc     *Service
	conn    *gorm.DB
	gateway *fake.Gateway
	alerts  *alert.Recorder
	events  *events.Recorder
	locker  *lock.LocalLocker
}

func newFixture(t *testing.T, walletBalance, gatewayBalance int64) fixture {
	t.Helper()
	conn := ledgertest.NewDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC))
	gw := fake.New()
	alerts := &alert.Recorder{}
	rec := &events.Recorder{}
	locker := lock.NewLocalLocker()

	ledgertest.SeedUser(t, conn, sellerID, account)
	if walletBalance >= 0 {
		ledgertest.SeedWallet(t, conn, sellerID, walletBalance)
	}
	gw.AddAccount(gatewaydomain.Account{ID: account, ChargesEnabled: true, PayoutsEnabled: true})
	gw.SetBalance(account, "usd", gatewayBalance)

	policy := config.DefaultPaymentPolicy()
	policy.PayoutLockWait = 50 * time.Millisecond

	svc := New(Params{
		DB:          conn,
		Log:         zap.NewNop(),
		GenID:       ledgertest.NewNode(t),
		Clock:       clk,
		Policy:      config.NewStaticPaymentPolicyHolder(policy),
		Gateway:     gw,
		Locker:      locker,
		Repo:        repository.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		WalletRepo:  walletrepo.Provide(),
		AuditSvc:    ledgertest.NewAudit(t, conn, clk),
		Events:      rec,
		Alerts:      alerts,
	}).(*Service)

	return fixture{svc: svc, conn: conn, gateway: gw, alerts: alerts, events: rec, locker: locker}
}

func TestCreatePayout(t *testing.T) {
	f := newFixture(t, 5000, 5000)

	payout, err := f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 1500})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, payout.Status)
	assert.NotEmpty(t, payout.StripePayoutID)

	assert.Equal(t, int64(1), ledgertest.Count(t, f.conn, "payouts", "user_id = ?", sellerID))
	assert.Equal(t, int64(3500), ledgertest.WalletBalance(t, f.conn, sellerID))
	assert.Equal(t, int64(1), ledgertest.Count(t, f.conn, "wallets", "last_payout_at IS NOT NULL"))
	assert.Equal(t, int64(3500), f.gateway.Balance(account, "usd"))
	assert.Len(t, f.events.OfType(events.TypePayoutCreated), 1)
}

func TestCreatePayoutInsufficientFundsWritesNothing(t *testing.T) {
	f := newFixture(t, 5000, 1000)

	_, err := f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 1500})
	require.ErrorIs(t, err, domain.ErrInsufficientBalance)
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)

	assert.Equal(t, int64(0), ledgertest.Count(t, f.conn, "payouts", ""))
	assert.Equal(t, int64(5000), ledgertest.WalletBalance(t, f.conn, sellerID))
	assert.Equal(t, int64(0), ledgertest.Count(t, f.conn, "wallets", "last_payout_at IS NOT NULL"))
	assert.Equal(t, 0, f.gateway.Calls(fake.OpCreatePayout))
}

func TestCreatePayoutValidation(t *testing.T) {
	f := newFixture(t, 5000, 5000)
	ledgertest.SeedUser(t, f.conn, 11, "")

	_, err := f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 0})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: 11, Amount: 100})
	require.ErrorIs(t, err, catalogdomain.ErrAccountNotLinked)

	_, err = f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: 404, Amount: 100})
	require.ErrorIs(t, err, catalogdomain.ErrUserNotFound)
}

func TestCreatePayoutGatewayAccountMissing(t *testing.T) {
	f := newFixture(t, 5000, 5000)
	require.NoError(t, f.gateway.DeleteAccount(context.Background(), account))

	_, err := f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 100})
	require.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, int64(0), ledgertest.Count(t, f.conn, "payouts", ""))
}

func TestCreatePayoutGatewayFailureWritesNothing(t *testing.T) {
	f := newFixture(t, 5000, 5000)
	f.gateway.FailNext(fake.OpCreatePayout, errs.NewGatewayError("create_payout", errors.New("account_closed")))

	_, err := f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 1500})
	require.ErrorIs(t, err, errs.ErrGateway)
	assert.Equal(t, int64(0), ledgertest.Count(t, f.conn, "payouts", ""))
	assert.Equal(t, int64(5000), ledgertest.WalletBalance(t, f.conn, sellerID))
}

func TestCreatePayoutCompensatesWhenLedgerWriteFails(t *testing.T) {
	// No wallet row: the gateway payout succeeds but the local debit fails.
	f := newFixture(t, -1, 5000)

	_, err := f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 1500})
	require.Error(t, err)

	assert.Equal(t, int64(0), ledgertest.Count(t, f.conn, "payouts", ""))
	assert.Equal(t, 1, f.gateway.Calls(fake.OpCancelPayout))
	assert.Equal(t, int64(5000), f.gateway.Balance(account, "usd"))

	alerts := f.alerts.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, alert.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "payout", alerts[0].Component)
}

func TestCreatePayoutLockHeld(t *testing.T) {
	f := newFixture(t, 5000, 5000)
	_, ok, err := f.locker.TryLock(context.Background(), "payout:user:10", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 100})
	require.ErrorIs(t, err, lock.ErrLockTimeout)
	require.ErrorIs(t, err, errs.ErrConflict)
	assert.Equal(t, 0, f.gateway.Calls(fake.OpGetBalance))
}

func TestConcurrentPayoutsCannotOverdraw(t *testing.T) {
	f := newFixture(t, 1000, 1000)
	policy := config.DefaultPaymentPolicy()
	policy.PayoutLockWait = 5 * time.Second
	f.svc.policy = config.NewStaticPaymentPolicyHolder(policy)

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 700})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, errs.ErrInsufficientFunds)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), ledgertest.Count(t, f.conn, "payouts", ""))
	assert.Equal(t, int64(300), ledgertest.WalletBalance(t, f.conn, sellerID))
}

func TestCancelPayoutRecreditsWallet(t *testing.T) {
	f := newFixture(t, 5000, 5000)
	payout, err := f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 1500})
	require.NoError(t, err)

	canceled, err := f.svc.CancelPayout(context.Background(), sellerID, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, canceled.Status)
	assert.Equal(t, int64(5000), ledgertest.WalletBalance(t, f.conn, sellerID))
	assert.Equal(t, int64(5000), f.gateway.Balance(account, "usd"))

	again, err := f.svc.CancelPayout(context.Background(), sellerID, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCanceled, again.Status)
	assert.Equal(t, int64(5000), ledgertest.WalletBalance(t, f.conn, sellerID))

	_, err = f.svc.CancelPayout(context.Background(), 999, payout.ID)
	require.ErrorIs(t, err, domain.ErrPayoutNotFound)
}

func TestCancelPaidPayoutRejected(t *testing.T) {
	f := newFixture(t, 5000, 5000)
	payout, err := f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 1500})
	require.NoError(t, err)
	_, err = f.svc.ApplyGatewayStatus(context.Background(), payout.StripePayoutID, "paid")
	require.NoError(t, err)

	_, err = f.svc.CancelPayout(context.Background(), sellerID, payout.ID)
	require.ErrorIs(t, err, domain.ErrNotCancelable)
}

func TestApplyGatewayStatus(t *testing.T) {
	f := newFixture(t, 5000, 5000)
	payout, err := f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 1500})
	require.NoError(t, err)

	paid, err := f.svc.ApplyGatewayStatus(context.Background(), payout.StripePayoutID, "paid")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, paid.Status)
	assert.Equal(t, int64(3500), ledgertest.WalletBalance(t, f.conn, sellerID))

	failed, err := f.svc.ApplyGatewayStatus(context.Background(), payout.StripePayoutID, "failed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, failed.Status)
	assert.Equal(t, int64(5000), ledgertest.WalletBalance(t, f.conn, sellerID))

	// Redelivery of the same status does not credit twice.
	_, err = f.svc.ApplyGatewayStatus(context.Background(), payout.StripePayoutID, "failed")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), ledgertest.WalletBalance(t, f.conn, sellerID))

	unknown, err := f.svc.ApplyGatewayStatus(context.Background(), "po_unknown", "paid")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	_, err = f.svc.ApplyGatewayStatus(context.Background(), payout.StripePayoutID, "paid")
	require.ErrorIs(t, err, errs.ErrIntegrityViolation)
}

func TestGetPayoutRefreshesFromGateway(t *testing.T) {
	f := newFixture(t, 5000, 5000)
	payout, err := f.svc.CreatePayout(context.Background(), domain.CreatePayoutRequest{UserID: sellerID, Amount: 1500})
	require.NoError(t, err)
	f.gateway.SetPayoutStatus(payout.StripePayoutID, "paid")

	got, err := f.svc.GetPayout(context.Background(), sellerID, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, got.Status)
	assert.Equal(t, int64(1), ledgertest.Count(t, f.conn, "payouts", "status = ?", "paid"))

	_, err = f.svc.GetPayout(context.Background(), 999, payout.ID)
	require.ErrorIs(t, err, domain.ErrPayoutNotFound)
}

func TestParseStatus(t *testing.T) {
	s, ok := domain.ParseStatus("in_transit")
	assert.True(t, ok)
	assert.Equal(t, domain.StatusPending, s)
	_, ok = domain.ParseStatus("exploded")
	assert.False(t, ok)
}
