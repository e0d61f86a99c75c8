// Package stripe implements the payment gateway on Stripe Connect.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/shelfpay/internal/config"
	"github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/internal/observability/metrics"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	stripego "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/client"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	opCreateCheckoutSession = "create_checkout_session"
	opGetCheckoutSession    = "get_checkout_session"
	opCreateRefund          = "create_refund"
	opCreatePayout          = "create_payout"
	opGetPayout             = "get_payout"
	opCancelPayout          = "cancel_payout"
	opCreateAccount         = "create_account"
	opGetAccount            = "get_account"
	opDeleteAccount         = "delete_account"
	opCreateAccountLink     = "create_account_link"
	opGetBalance            = "get_balance"
)

type Params struct {
	fx.In

	Config    config.Config
	Policy    *config.PaymentPolicyHolder
	Log       *zap.Logger
	Metrics   *metrics.Metrics          `optional:"true"`
	Reconcile *metrics.ReconcileMetrics `optional:"true"`
}

// Client talks to Stripe through an injected client.API; no package-level
// key is ever set.
type Client struct {
	api           *client.API
	webhookSecret string
	policy        *config.PaymentPolicyHolder
	log           *zap.Logger
	metrics       *metrics.Metrics
	reconcile     *metrics.ReconcileMetrics
}

func New(p Params) (*Client, error) {
	key := strings.TrimSpace(p.Config.Stripe.SecretKey)
	if key == "" && p.Config.IsProduction() {
		return nil, errors.New("stripe secret key is required")
	}

	log := p.Log.Named("gateway.stripe")
	policy := p.Policy.Get()

	retries := p.Config.Stripe.MaxNetworkRetries
	backends := stripego.NewBackendsWithConfig(&stripego.BackendConfig{
		HTTPClient:        &http.Client{Timeout: policy.GatewayTimeout},
		MaxNetworkRetries: stripego.Int64(retries),
		LeveledLogger:     log.Sugar(),
	})

	return &Client{
		api:           client.New(key, backends),
		webhookSecret: p.Config.Stripe.WebhookSecret,
		policy:        p.Policy,
		log:           log,
		metrics:       p.Metrics,
		reconcile:     p.Reconcile,
	}, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, in domain.CheckoutSessionParams) (*domain.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL: stripego.String(in.SuccessURL),
		CancelURL:  stripego.String(in.CancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			Quantity: stripego.Int64(1),
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripego.String(in.Currency),
				UnitAmount: stripego.Int64(in.Amount),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripego.String(in.ProductName),
				},
			},
		}},
		PaymentIntentData: &stripego.CheckoutSessionPaymentIntentDataParams{
			Metadata: in.Metadata,
			TransferData: &stripego.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripego.String(in.DestinationAccount),
			},
		},
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(in.IdempotencyKey)

	var sess *stripego.CheckoutSession
	err := c.call(ctx, opCreateCheckoutSession, func() (err error) {
		sess, err = c.api.CheckoutSessions.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toCheckoutSession(sess), nil
}

func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{}
	params.Context = ctx

	var sess *stripego.CheckoutSession
	err := c.call(ctx, opGetCheckoutSession, func() (err error) {
		sess, err = c.api.CheckoutSessions.Get(sessionID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toCheckoutSession(sess), nil
}

func (c *Client) CreateRefund(ctx context.Context, in domain.RefundParams) (*domain.Refund, error) {
	params := &stripego.RefundParams{
		PaymentIntent:   stripego.String(in.PaymentIntentID),
		ReverseTransfer: stripego.Bool(true),
	}
	if in.Amount > 0 {
		params.Amount = stripego.Int64(in.Amount)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(in.IdempotencyKey)

	var refund *stripego.Refund
	err := c.call(ctx, opCreateRefund, func() (err error) {
		refund, err = c.api.Refunds.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := &domain.Refund{
		ID:     refund.ID,
		Status: string(refund.Status),
		Amount: refund.Amount,
	}
	if refund.PaymentIntent != nil {
		out.PaymentIntentID = refund.PaymentIntent.ID
	}
	return out, nil
}

func (c *Client) CreatePayout(ctx context.Context, in domain.PayoutParams) (*domain.Payout, error) {
	params := &stripego.PayoutParams{
		Amount:   stripego.Int64(in.Amount),
		Currency: stripego.String(in.Currency),
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetStripeAccount(in.AccountID)
	params.SetIdempotencyKey(in.IdempotencyKey)

	var payout *stripego.Payout
	err := c.call(ctx, opCreatePayout, func() (err error) {
		payout, err = c.api.Payouts.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toPayout(payout), nil
}

func (c *Client) GetPayout(ctx context.Context, accountID, payoutID string) (*domain.Payout, error) {
	params := &stripego.PayoutParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	var payout *stripego.Payout
	err := c.call(ctx, opGetPayout, func() (err error) {
		payout, err = c.api.Payouts.Get(payoutID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toPayout(payout), nil
}

func (c *Client) CancelPayout(ctx context.Context, accountID, payoutID string) (*domain.Payout, error) {
	params := &stripego.PayoutParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	params.SetIdempotencyKey("cancel_" + payoutID)

	var payout *stripego.Payout
	err := c.call(ctx, opCancelPayout, func() (err error) {
		payout, err = c.api.Payouts.Cancel(payoutID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toPayout(payout), nil
}

func (c *Client) CreateAccount(ctx context.Context, in domain.AccountParams) (*domain.Account, error) {
	params := &stripego.AccountParams{
		Type:  stripego.String(string(stripego.AccountTypeExpress)),
		Email: stripego.String(in.Email),
		Capabilities: &stripego.AccountCapabilitiesParams{
			CardPayments: &stripego.AccountCapabilitiesCardPaymentsParams{Requested: stripego.Bool(true)},
			Transfers:    &stripego.AccountCapabilitiesTransfersParams{Requested: stripego.Bool(true)},
		},
	}
	if in.Country != "" {
		params.Country = stripego.String(in.Country)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	if in.IdempotencyKey != "" {
		params.SetIdempotencyKey(in.IdempotencyKey)
	}

	var acct *stripego.Account
	err := c.call(ctx, opCreateAccount, func() (err error) {
		acct, err = c.api.Accounts.New(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toAccount(acct), nil
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	params := &stripego.AccountParams{}
	params.Context = ctx

	var acct *stripego.Account
	err := c.call(ctx, opGetAccount, func() (err error) {
		acct, err = c.api.Accounts.GetByID(accountID, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toAccount(acct), nil
}

func (c *Client) DeleteAccount(ctx context.Context, accountID string) error {
	params := &stripego.AccountParams{}
	params.Context = ctx

	return c.call(ctx, opDeleteAccount, func() error {
		_, err := c.api.Accounts.Del(accountID, params)
		return err
	})
}

func (c *Client) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	params := &stripego.AccountLinkParams{
		Account:    stripego.String(accountID),
		RefreshURL: stripego.String(refreshURL),
		ReturnURL:  stripego.String(returnURL),
		Type:       stripego.String("account_onboarding"),
	}
	params.Context = ctx

	var link *stripego.AccountLink
	err := c.call(ctx, opCreateAccountLink, func() (err error) {
		link, err = c.api.AccountLinks.New(params)
		return err
	})
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func (c *Client) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	params := &stripego.BalanceParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	var bal *stripego.Balance
	err := c.call(ctx, opGetBalance, func() (err error) {
		bal, err = c.api.Balance.Get(params)
		return err
	})
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return nil, errs.NewGatewayError(opGetBalance, errors.New("empty balance response"))
	}
	return decodeBalance(bal), nil
}

func decodeBalance(bal *stripego.Balance) *domain.Balance {
	out := &domain.Balance{
		Available: make(map[string]int64, len(bal.Available)),
		Pending:   make(map[string]int64, len(bal.Pending)),
	}
	for _, a := range bal.Available {
		if a != nil {
			out.Available[strings.ToLower(string(a.Currency))] += a.Amount
		}
	}
	for _, a := range bal.Pending {
		if a != nil {
			out.Pending[strings.ToLower(string(a.Currency))] += a.Amount
		}
	}
	return out
}

// call runs fn, records latency and outcome, and maps the error.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.reconcile.ObserveGatewayCall(op, time.Since(start))

	if err == nil {
		c.metrics.RecordGatewayCall(ctx, op, "success")
		return nil
	}

	mapped := mapError(op, err)
	outcome := "failed"
	if errs.IsAmbiguous(mapped) {
		outcome = "ambiguous"
	}
	c.metrics.RecordGatewayCall(ctx, op, outcome)
	c.log.Warn("stripe call failed",
		zap.String("operation", op),
		zap.String("outcome", outcome),
		zap.Error(err),
	)
	return mapped
}

// mapError classifies a Stripe failure. Only responses that prove the
// request was rejected are definitive; transport errors, timeouts and 5xx
// responses leave the outcome unknown.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var stripeErr *stripego.Error
	if errors.As(err, &stripeErr) {
		switch {
		case stripeErr.Code == stripego.ErrorCodeResourceMissing || stripeErr.HTTPStatusCode == http.StatusNotFound:
			return errs.NewGatewayError(op, fmt.Errorf("%w: %s", domain.ErrResourceMissing, stripeErr.Msg))
		case stripeErr.HTTPStatusCode >= http.StatusInternalServerError:
			return errs.NewAmbiguousGatewayError(op, err)
		case stripeErr.HTTPStatusCode == 0:
			return errs.NewAmbiguousGatewayError(op, err)
		default:
			return errs.NewGatewayError(op, err)
		}
	}

	// Deadline, cancellation and network errors all land here.
	return errs.NewAmbiguousGatewayError(op, err)
}

func toCheckoutSession(sess *stripego.CheckoutSession) *domain.CheckoutSession {
	if sess == nil {
		return nil
	}
	out := &domain.CheckoutSession{
		ID:            sess.ID,
		URL:           sess.URL,
		Status:        string(sess.Status),
		PaymentStatus: string(sess.PaymentStatus),
		Metadata:      sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	return out
}

func toPayout(p *stripego.Payout) *domain.Payout {
	if p == nil {
		return nil
	}
	out := &domain.Payout{
		ID:       p.ID,
		Status:   string(p.Status),
		Amount:   p.Amount,
		Currency: string(p.Currency),
	}
	if p.ArrivalDate > 0 {
		out.ArrivalDate = time.Unix(p.ArrivalDate, 0).UTC()
	}
	return out
}

func toAccount(a *stripego.Account) *domain.Account {
	if a == nil {
		return nil
	}
	return &domain.Account{
		ID:               a.ID,
		Email:            a.Email,
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
}
