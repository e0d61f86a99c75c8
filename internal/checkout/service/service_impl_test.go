package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/smallbiznis/shelfpay/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/shelfpay/internal/catalog/repository"
	"github.com/smallbiznis/shelfpay/internal/checkout/domain"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/config"
	"github.com/smallbiznis/shelfpay/internal/gateway/fake"
	"github.com/smallbiznis/shelfpay/internal/ledgertest"
	orderdomain "github.com/smallbiznis/shelfpay/internal/order/domain"
	orderrepo "github.com/smallbiznis/shelfpay/internal/order/repository"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	sellerID  snowflake.ID = 100
	buyerID   snowflake.ID = 200
	productID snowflake.ID = 300
)

type fixture struct {
	svc     *Service
	conn    *gorm.DB
	gateway *fake.Gateway
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := ledgertest.NewDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	gw := fake.New()

	ledgertest.SeedUser(t, conn, sellerID, "acct_seller")
	ledgertest.SeedUser(t, conn, buyerID, "")
	ledgertest.SeedProduct(t, conn, productID, sellerID, 1999, true)

	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: ledgertest.NewNode(t),
		Clock: clk,
		Config: config.Config{Stripe: config.StripeConfig{
			SuccessURL: "https://shelf.example/success",
			CancelURL:  "https://shelf.example/cancel",
		}},
		Policy:      config.NewStaticPaymentPolicyHolder(config.DefaultPaymentPolicy()),
		Gateway:     gw,
		CatalogRepo: catalogrepo.Provide(),
		OrderRepo:   orderrepo.Provide(),
		AuditSvc:    ledgertest.NewAudit(t, conn, clk),
	}).(*Service)

	return fixture{svc: svc, conn: conn, gateway: gw}
}

func TestCheckoutCreatesPendingOrderWithSession(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{ProductID: productID, BuyerID: buyerID})
	require.NoError(t, err)
	require.NotEmpty(t, resp.SessionID)
	require.NotEmpty(t, resp.URL)

	order, err := orderrepo.Provide().FindByID(context.Background(), f.conn, resp.OrderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, orderdomain.StatusPending, order.Status)
	assert.Equal(t, int64(1999), order.Amount)
	assert.Equal(t, sellerID, order.SellerID)
	require.NotNil(t, order.CheckoutSessionID)
	assert.Equal(t, resp.SessionID, *order.CheckoutSessionID)

	sess, ok := f.gateway.Session(resp.SessionID)
	require.True(t, ok)
	assert.Equal(t, resp.OrderID.String(), sess.Metadata["order_id"])
	assert.Equal(t, buyerID.String(), sess.Metadata["buyer_id"])
	assert.Equal(t, sellerID.String(), sess.Metadata["seller_id"])
	assert.Equal(t, productID.String(), sess.Metadata["product_id"])

	assert.Equal(t, int64(1), ledgertest.Count(t, f.conn, "audit_logs", "action = ?", "checkout.created"))
}

func TestCheckoutGatewayFailureLeavesOrderPendingWithoutSession(t *testing.T) {
	for _, gwErr := range []error{
		errs.NewGatewayError("create_checkout_session", errors.New("card_declined")),
		errs.NewAmbiguousGatewayError("create_checkout_session", context.DeadlineExceeded),
	} {
		f := newFixture(t)
		f.gateway.FailNext(fake.OpCreateCheckoutSession, gwErr)

		resp, err := f.svc.Checkout(context.Background(), domain.CheckoutRequest{ProductID: productID, BuyerID: buyerID})
		require.Nil(t, resp)
		require.ErrorIs(t, err, errs.ErrGateway)

		assert.Equal(t, int64(1), ledgertest.Count(t, f.conn, "orders", "status = ? AND checkout_session_id IS NULL", "PENDING"))
		assert.Equal(t, int64(0), ledgertest.Count(t, f.conn, "orders", "checkout_session_id IS NOT NULL"))
		assert.Equal(t, int64(0), ledgertest.Count(t, f.conn, "audit_logs", ""))
	}
}

func TestCheckoutRejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T, conn *gorm.DB)
		req   domain.CheckoutRequest
		want  error
		class error
	}{
		{
			name:  "unknown product",
			req:   domain.CheckoutRequest{ProductID: 999, BuyerID: buyerID},
			want:  catalogdomain.ErrProductNotFound,
			class: errs.ErrNotFound,
		},
		{
			name: "inactive product",
			setup: func(t *testing.T, conn *gorm.DB) {
				ledgertest.SeedProduct(t, conn, 301, sellerID, 500, false)
			},
			req:   domain.CheckoutRequest{ProductID: 301, BuyerID: buyerID},
			want:  catalogdomain.ErrProductNotFound,
			class: errs.ErrNotFound,
		},
		{
			name: "seller without sub-account",
			setup: func(t *testing.T, conn *gorm.DB) {
				ledgertest.SeedUser(t, conn, 101, "")
				ledgertest.SeedProduct(t, conn, 302, 101, 500, true)
			},
			req:   domain.CheckoutRequest{ProductID: 302, BuyerID: buyerID},
			want:  catalogdomain.ErrSellerNotPayable,
			class: errs.ErrNotFound,
		},
		{
			name:  "seller buying own book",
			req:   domain.CheckoutRequest{ProductID: productID, BuyerID: sellerID},
			want:  domain.ErrInvalidBuyer,
			class: errs.ErrInvalidRequest,
		},
		{
			name: "already purchased",
			setup: func(t *testing.T, conn *gorm.DB) {
				ledgertest.SeedOrder(t, conn, ledgertest.OrderSeed{ID: 1, BuyerID: buyerID, SellerID: sellerID, ProductID: productID, Amount: 1999, Status: "COMPLETED"})
			},
			req:   domain.CheckoutRequest{ProductID: productID, BuyerID: buyerID},
			want:  orderdomain.ErrAlreadyPurchased,
			class: errs.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f.conn)
			}
			before := ledgertest.Count(t, f.conn, "orders", "")

			_, err := f.svc.Checkout(context.Background(), tt.req)
			require.ErrorIs(t, err, tt.want)
			require.ErrorIs(t, err, tt.class)
			assert.Equal(t, before, ledgertest.Count(t, f.conn, "orders", ""))
			assert.Equal(t, 0, f.gateway.Calls(fake.OpCreateCheckoutSession))
		})
	}
}
