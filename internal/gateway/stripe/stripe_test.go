package stripe

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/smallbiznis/shelfpay/internal/config"
	"github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripego "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
	"go.uber.org/zap"
)

const testSecret = "whsec_test"

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(Params{
		Config: config.Config{Stripe: config.StripeConfig{SecretKey: "sk_test_123", WebhookSecret: testSecret}},
		Policy: config.NewStaticPaymentPolicyHolder(config.DefaultPaymentPolicy()),
		Log:    zap.NewNop(),
	})
	require.NoError(t, err)
	return c
}

func buildStripeSignatureHeader(secret string, payload []byte, timestamp int64) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Unix(timestamp, 0),
	}).Header
}

const completedPayload = `{"id":"evt_123","object":"event","type":"checkout.session.completed","created":1700000000,` +
	`"data":{"object":{"id":"cs_1","payment_intent":"pi_1","payment_status":"paid","amount_total":1999,` +
	`"metadata":{"order_id":"42"}}}}`

func TestVerifyEvent(t *testing.T) {
	c := newTestClient(t)
	payload := []byte(completedPayload)

	ev, err := c.VerifyEvent(payload, buildStripeSignatureHeader(testSecret, payload, time.Now().Unix()))
	require.NoError(t, err)
	assert.Equal(t, "evt_123", ev.ID)
	assert.Equal(t, domain.EventCheckoutSessionCompleted, ev.Type)
	assert.Equal(t, int64(1700000000), ev.Created.Unix())

	var sess domain.SessionObject
	require.NoError(t, ev.Decode(&sess))
	assert.Equal(t, "pi_1", sess.PaymentIntent)
	assert.Equal(t, "42", sess.Metadata["order_id"])
	assert.Equal(t, int64(1999), sess.AmountTotal)
}

func TestVerifyEventRejectsBadSignatures(t *testing.T) {
	c := newTestClient(t)
	payload := []byte(completedPayload)
	now := time.Now().Unix()

	tests := []struct {
		name   string
		body   []byte
		header string
	}{
		{name: "wrong secret", body: payload, header: buildStripeSignatureHeader("whsec_other", payload, now)},
		{name: "missing header", body: payload, header: ""},
		{name: "garbage header", body: payload, header: "nonsense"},
		{name: "stale timestamp", body: payload, header: buildStripeSignatureHeader(testSecret, payload, now-int64(time.Hour/time.Second))},
		{name: "body altered after signing", body: append([]byte(" "), payload...), header: buildStripeSignatureHeader(testSecret, payload, now)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.VerifyEvent(tt.body, tt.header)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidSignature), "got %v", err)
			assert.True(t, errors.Is(err, errs.ErrAuthentication))
		})
	}
}

func TestVerifyEventWithoutSecret(t *testing.T) {
	c := newTestClient(t)
	c.webhookSecret = ""
	payload := []byte(completedPayload)

	_, err := c.VerifyEvent(payload, buildStripeSignatureHeader(testSecret, payload, time.Now().Unix()))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent([]byte(completedPayload))
	require.NoError(t, err)
	assert.Equal(t, "evt_123", ev.ID)
	assert.JSONEq(t, `{"id":"cs_1","payment_intent":"pi_1","payment_status":"paid","amount_total":1999,"metadata":{"order_id":"42"}}`, string(ev.Object))

	_, err = ParseEvent([]byte(`{"type":"charge.refunded"}`))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)

	_, err = ParseEvent([]byte(`not json`))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		ambiguous bool
		notFound  bool
	}{
		{name: "resource missing", err: &stripego.Error{HTTPStatusCode: http.StatusNotFound, Code: stripego.ErrorCodeResourceMissing}, notFound: true},
		{name: "card declined", err: &stripego.Error{HTTPStatusCode: http.StatusPaymentRequired, Code: stripego.ErrorCodeCardDeclined}},
		{name: "invalid request", err: &stripego.Error{HTTPStatusCode: http.StatusBadRequest}},
		{name: "server error", err: &stripego.Error{HTTPStatusCode: http.StatusBadGateway}, ambiguous: true},
		{name: "deadline", err: context.DeadlineExceeded, ambiguous: true},
		{name: "transport", err: errors.New("connection reset by peer"), ambiguous: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := mapError("op", tt.err)
			assert.ErrorIs(t, mapped, errs.ErrGateway)
			assert.Equal(t, tt.ambiguous, errs.IsAmbiguous(mapped))
			assert.Equal(t, tt.notFound, errors.Is(mapped, errs.ErrNotFound))
		})
	}
}

func TestDecodeBalance(t *testing.T) {
	bal := decodeBalance(&stripego.Balance{
		Available: []*stripego.Amount{
			{Amount: 1500, Currency: stripego.CurrencyUSD},
			{Amount: 200, Currency: stripego.CurrencyEUR},
			nil,
		},
		Pending: []*stripego.Amount{{Amount: 99, Currency: "USD"}},
	})
	assert.Equal(t, int64(1500), bal.AvailableIn("usd"))
	assert.Equal(t, int64(200), bal.AvailableIn("eur"))
	assert.Equal(t, int64(0), bal.AvailableIn("gbp"))
	assert.Equal(t, int64(99), bal.Pending["usd"])
}
