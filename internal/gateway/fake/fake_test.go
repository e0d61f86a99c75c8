package fake

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerify(t *testing.T) {
	g := New()
	payload := EventPayload("evt_1", domain.EventAccountUpdated, map[string]any{"id": "acct_1", "charges_enabled": true})

	ev, err := g.VerifyEvent(payload, g.Sign(payload))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)

	var acct domain.AccountObject
	require.NoError(t, ev.Decode(&acct))
	assert.True(t, acct.ChargesEnabled)

	_, err = g.VerifyEvent(append(payload, ' '), g.Sign(payload))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyRejectsStaleOrMalformedSignature(t *testing.T) {
	g := New()
	payload := EventPayload("evt_1", domain.EventAccountUpdated, map[string]any{"id": "acct_1"})

	tests := []struct {
		name   string
		header string
	}{
		{name: "day old timestamp", header: g.SignAt(payload, time.Now().Add(-24*time.Hour))},
		{name: "just outside tolerance", header: g.SignAt(payload, time.Now().Add(-g.Tolerance-time.Minute))},
		{name: "missing header", header: ""},
		{name: "no v1 scheme", header: "t=1700000000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.VerifyEvent(payload, tt.header)
			assert.ErrorIs(t, err, domain.ErrInvalidSignature)
			assert.ErrorIs(t, err, errs.ErrAuthentication)
		})
	}

	ev, err := g.VerifyEvent(payload, g.SignAt(payload, time.Now().Add(-time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
}

func TestIdempotentCheckoutSession(t *testing.T) {
	g := New()
	ctx := context.Background()
	params := domain.CheckoutSessionParams{IdempotencyKey: "order-1", Amount: 1999, Currency: "usd"}

	first, err := g.CreateCheckoutSession(ctx, params)
	require.NoError(t, err)
	second, err := g.CreateCheckoutSession(ctx, params)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, g.Calls(OpCreateCheckoutSession))
}

func TestInjectedFailureIsConsumedOnce(t *testing.T) {
	g := New()
	g.FailNext(OpGetBalance, errs.NewAmbiguousGatewayError(OpGetBalance, errors.New("timeout")))
	g.AddAccount(domain.Account{ID: "acct_1"})
	g.SetBalance("acct_1", "usd", 500)

	_, err := g.GetBalance(context.Background(), "acct_1")
	assert.True(t, errs.IsAmbiguous(err))

	bal, err := g.GetBalance(context.Background(), "acct_1")
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal.AvailableIn("usd"))
}

func TestPayoutMovesBalanceAndCancelRestores(t *testing.T) {
	g := New()
	ctx := context.Background()
	g.AddAccount(domain.Account{ID: "acct_1"})
	g.SetBalance("acct_1", "usd", 1000)

	p, err := g.CreatePayout(ctx, domain.PayoutParams{IdempotencyKey: "p1", AccountID: "acct_1", Amount: 600, Currency: "usd"})
	require.NoError(t, err)
	assert.Equal(t, int64(400), g.Balance("acct_1", "usd"))

	_, err = g.CancelPayout(ctx, "acct_1", p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), g.Balance("acct_1", "usd"))

	_, err = g.GetPayout(ctx, "acct_other", p.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
}
