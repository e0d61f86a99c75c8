package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/shelfpay/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/shelfpay/internal/catalog/repository"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/config"
	gatewaydomain "github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/internal/gateway/fake"
	"github.com/smallbiznis/shelfpay/internal/ledgertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const userID snowflake.ID = 42

func newTestService(t *testing.T) (*Service, *gorm.DB, *fake.Gateway) {
	t.Helper()
	conn := ledgertest.NewDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	gw := fake.New()
	svc := New(Params{
		DB:          conn,
		Log:         zap.NewNop(),
		Clock:       clk,
		Policy:      config.NewStaticPaymentPolicyHolder(config.DefaultPaymentPolicy()),
		Gateway:     gw,
		CatalogRepo: catalogrepo.Provide(),
		AuditSvc:    ledgertest.NewAudit(t, conn, clk),
	}).(*Service)
	return svc, conn, gw
}

func TestOnboardLinksOnce(t *testing.T) {
	svc, conn, gw := newTestService(t)
	ledgertest.SeedUser(t, conn, userID, "")

	first, err := svc.Onboard(context.Background(), userID)
	require.NoError(t, err)
	require.NotEmpty(t, first.AccountID)
	assert.Contains(t, first.OnboardingURL, first.AccountID)

	second, err := svc.Onboard(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, first.AccountID, second.AccountID)
	assert.Equal(t, 1, gw.Calls(fake.OpCreateAccount))
	assert.Equal(t, int64(1), ledgertest.Count(t, conn, "users", "stripe_account_id = ?", first.AccountID))
}

func TestStatusSyncsVerification(t *testing.T) {
	svc, conn, gw := newTestService(t)
	ledgertest.SeedUser(t, conn, userID, "acct_1")
	gw.AddAccount(gatewaydomain.Account{ID: "acct_1", ChargesEnabled: true, PayoutsEnabled: false})

	st, err := svc.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.False(t, st.Verified)
	assert.False(t, ledgertest.UserVerified(t, conn, userID))

	gw.AddAccount(gatewaydomain.Account{ID: "acct_1", ChargesEnabled: true, PayoutsEnabled: true, DetailsSubmitted: true})
	st, err = svc.Status(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, st.Verified)
	assert.True(t, ledgertest.UserVerified(t, conn, userID))
}

func TestStatusWithoutAccount(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ledgertest.SeedUser(t, conn, userID, "")

	_, err := svc.Status(context.Background(), userID)
	require.ErrorIs(t, err, catalogdomain.ErrAccountNotLinked)

	_, err = svc.Status(context.Background(), 404)
	require.ErrorIs(t, err, catalogdomain.ErrUserNotFound)
}

func TestUnlinkDeletesGatewayAccount(t *testing.T) {
	svc, conn, gw := newTestService(t)
	ledgertest.SeedUser(t, conn, userID, "acct_1")
	gw.AddAccount(gatewaydomain.Account{ID: "acct_1"})

	require.NoError(t, svc.Unlink(context.Background(), userID))
	assert.Equal(t, int64(0), ledgertest.Count(t, conn, "users", "stripe_account_id IS NOT NULL"))
	_, err := gw.GetAccount(context.Background(), "acct_1")
	require.Error(t, err)

	require.ErrorIs(t, svc.Unlink(context.Background(), userID), catalogdomain.ErrAccountNotLinked)
}

func TestApplyAccountUpdate(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ledgertest.SeedUser(t, conn, userID, "acct_1")

	changed, err := svc.ApplyAccountUpdate(context.Background(), "acct_1", true, false)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, ledgertest.UserVerified(t, conn, userID))

	changed, err = svc.ApplyAccountUpdate(context.Background(), "acct_1", true, true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.True(t, ledgertest.UserVerified(t, conn, userID))

	changed, err = svc.ApplyAccountUpdate(context.Background(), "acct_1", true, true)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = svc.ApplyAccountUpdate(context.Background(), "acct_unknown", true, true)
	require.NoError(t, err)
	assert.False(t, changed)
}
