// Package fake provides an in-memory gateway for tests and local runs.
package fake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/internal/gateway/stripe"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"github.com/stripe/stripe-go/v80/webhook"
)

const (
	OpCreateCheckoutSession = "create_checkout_session"
	OpGetCheckoutSession    = "get_checkout_session"
	OpCreateRefund          = "create_refund"
	OpCreatePayout          = "create_payout"
	OpGetPayout             = "get_payout"
	OpCancelPayout          = "cancel_payout"
	OpCreateAccount         = "create_account"
	OpGetAccount            = "get_account"
	OpDeleteAccount         = "delete_account"
	OpCreateAccountLink     = "create_account_link"
	OpGetBalance            = "get_balance"
)

// Gateway mimics the processor: idempotency keys replay the first result,
// balances move with payouts, and errors can be injected per operation.
type Gateway struct {
	mu sync.Mutex

	seq        int
	sessions   map[string]*domain.CheckoutSession
	refunds    map[string]*domain.Refund
	payouts    map[string]*domain.Payout
	payoutAcct map[string]string
	accounts   map[string]*domain.Account
	balances   map[string]map[string]int64
	idem       map[string]any
	failures   map[string][]error
	calls      map[string]int

	// Secret signs and verifies webhook payloads built with Sign.
	Secret    string
	// Tolerance bounds the age of a signature timestamp.
	Tolerance time.Duration
}

func New() *Gateway {
	return &Gateway{
		sessions:   make(map[string]*domain.CheckoutSession),
		refunds:    make(map[string]*domain.Refund),
		payouts:    make(map[string]*domain.Payout),
		payoutAcct: make(map[string]string),
		accounts:   make(map[string]*domain.Account),
		balances:   make(map[string]map[string]int64),
		idem:       make(map[string]any),
		failures:   make(map[string][]error),
		calls:      make(map[string]int),
		Secret:     "whsec_fake",
		Tolerance:  webhook.DefaultTolerance,
	}
}

// FailNext queues err for the next call of op. Queued errors are consumed in order.
func (g *Gateway) FailNext(op string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[op] = append(g.failures[op], err)
}

// Calls returns how many times op was invoked, including failed attempts.
func (g *Gateway) Calls(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *Gateway) AddAccount(acct domain.Account) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := acct
	g.accounts[acct.ID] = &cp
}

func (g *Gateway) SetBalance(accountID, currency string, available int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.balances[accountID] == nil {
		g.balances[accountID] = make(map[string]int64)
	}
	g.balances[accountID][currency] = available
}

func (g *Gateway) Balance(accountID, currency string) int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.balances[accountID][currency]
}

// Session returns a stored session by id.
func (g *Gateway) Session(id string) (*domain.CheckoutSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[id]
	if !ok {
		return nil, false
	}
	cp := *s
	return &cp, true
}

func (g *Gateway) Payout(id string) (*domain.Payout, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.payouts[id]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

func (g *Gateway) begin(op string) error {
	g.calls[op]++
	queue := g.failures[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	g.failures[op] = queue[1:]
	return err
}

func (g *Gateway) nextID(prefix string) string {
	g.seq++
	return fmt.Sprintf("%s_fake_%d", prefix, g.seq)
}

func missing(op, what string) error {
	return errs.NewGatewayError(op, fmt.Errorf("%w: no such %s", domain.ErrResourceMissing, what))
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, params domain.CheckoutSessionParams) (*domain.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCreateCheckoutSession); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.NewAmbiguousGatewayError(OpCreateCheckoutSession, err)
	}
	key := OpCreateCheckoutSession + ":" + params.IdempotencyKey
	if prev, ok := g.idem[key]; ok && params.IdempotencyKey != "" {
		cp := *prev.(*domain.CheckoutSession)
		return &cp, nil
	}

	id := g.nextID("cs")
	sess := &domain.CheckoutSession{
		ID:              id,
		URL:             "https://checkout.example.test/" + id,
		Status:          "open",
		PaymentStatus:   "unpaid",
		PaymentIntentID: g.nextID("pi"),
		Metadata:        copyMap(params.Metadata),
	}
	g.sessions[id] = sess
	g.idem[key] = sess
	cp := *sess
	return &cp, nil
}

func (g *Gateway) GetCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpGetCheckoutSession); err != nil {
		return nil, err
	}
	sess, ok := g.sessions[sessionID]
	if !ok {
		return nil, missing(OpGetCheckoutSession, "checkout session")
	}
	cp := *sess
	return &cp, nil
}

// PutSession stores a session as if it had been created earlier.
func (g *Gateway) PutSession(sess domain.CheckoutSession) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := sess
	g.sessions[sess.ID] = &cp
}

func (g *Gateway) CreateRefund(ctx context.Context, params domain.RefundParams) (*domain.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCreateRefund); err != nil {
		return nil, err
	}
	key := OpCreateRefund + ":" + params.IdempotencyKey
	if prev, ok := g.idem[key]; ok && params.IdempotencyKey != "" {
		cp := *prev.(*domain.Refund)
		return &cp, nil
	}
	refund := &domain.Refund{
		ID:              g.nextID("re"),
		Status:          "succeeded",
		Amount:          params.Amount,
		PaymentIntentID: params.PaymentIntentID,
	}
	g.refunds[refund.ID] = refund
	g.idem[key] = refund
	cp := *refund
	return &cp, nil
}

func (g *Gateway) CreatePayout(ctx context.Context, params domain.PayoutParams) (*domain.Payout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCreatePayout); err != nil {
		return nil, err
	}
	key := OpCreatePayout + ":" + params.IdempotencyKey
	if prev, ok := g.idem[key]; ok && params.IdempotencyKey != "" {
		cp := *prev.(*domain.Payout)
		return &cp, nil
	}
	if g.balances[params.AccountID][params.Currency] < params.Amount {
		return nil, errs.NewGatewayError(OpCreatePayout, fmt.Errorf("%w: balance_insufficient", errs.ErrInsufficientFunds))
	}
	if g.balances[params.AccountID] == nil {
		g.balances[params.AccountID] = make(map[string]int64)
	}
	g.balances[params.AccountID][params.Currency] -= params.Amount

	payout := &domain.Payout{
		ID:          g.nextID("po"),
		Status:      "pending",
		Amount:      params.Amount,
		Currency:    params.Currency,
		ArrivalDate: time.Now().UTC().Add(48 * time.Hour).Truncate(time.Second),
	}
	g.payouts[payout.ID] = payout
	g.payoutAcct[payout.ID] = params.AccountID
	g.idem[key] = payout
	cp := *payout
	return &cp, nil
}

func (g *Gateway) GetPayout(ctx context.Context, accountID, payoutID string) (*domain.Payout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpGetPayout); err != nil {
		return nil, err
	}
	payout, ok := g.payouts[payoutID]
	if !ok || g.payoutAcct[payoutID] != accountID {
		return nil, missing(OpGetPayout, "payout")
	}
	cp := *payout
	return &cp, nil
}

// SetPayoutStatus simulates the processor settling a payout.
func (g *Gateway) SetPayoutStatus(payoutID, status string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if p, ok := g.payouts[payoutID]; ok {
		p.Status = status
	}
}

func (g *Gateway) CancelPayout(ctx context.Context, accountID, payoutID string) (*domain.Payout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCancelPayout); err != nil {
		return nil, err
	}
	payout, ok := g.payouts[payoutID]
	if !ok || g.payoutAcct[payoutID] != accountID {
		return nil, missing(OpCancelPayout, "payout")
	}
	switch payout.Status {
	case "canceled":
	case "pending":
		payout.Status = "canceled"
		g.balances[accountID][payout.Currency] += payout.Amount
	default:
		return nil, errs.NewGatewayError(OpCancelPayout, fmt.Errorf("payout %s is %s", payoutID, payout.Status))
	}
	cp := *payout
	return &cp, nil
}

func (g *Gateway) CreateAccount(ctx context.Context, params domain.AccountParams) (*domain.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCreateAccount); err != nil {
		return nil, err
	}
	key := OpCreateAccount + ":" + params.IdempotencyKey
	if prev, ok := g.idem[key]; ok && params.IdempotencyKey != "" {
		cp := *prev.(*domain.Account)
		return &cp, nil
	}
	acct := &domain.Account{ID: g.nextID("acct"), Email: params.Email}
	g.accounts[acct.ID] = acct
	g.idem[key] = acct
	cp := *acct
	return &cp, nil
}

func (g *Gateway) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpGetAccount); err != nil {
		return nil, err
	}
	acct, ok := g.accounts[accountID]
	if !ok {
		return nil, missing(OpGetAccount, "account")
	}
	cp := *acct
	return &cp, nil
}

func (g *Gateway) DeleteAccount(ctx context.Context, accountID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpDeleteAccount); err != nil {
		return err
	}
	if _, ok := g.accounts[accountID]; !ok {
		return missing(OpDeleteAccount, "account")
	}
	delete(g.accounts, accountID)
	return nil
}

func (g *Gateway) CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpCreateAccountLink); err != nil {
		return "", err
	}
	if _, ok := g.accounts[accountID]; !ok {
		return "", missing(OpCreateAccountLink, "account")
	}
	return "https://connect.example.test/setup/" + accountID, nil
}

func (g *Gateway) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.begin(OpGetBalance); err != nil {
		return nil, err
	}
	if _, ok := g.accounts[accountID]; !ok {
		return nil, missing(OpGetBalance, "account")
	}
	return &domain.Balance{
		Available: copyInt64Map(g.balances[accountID]),
		Pending:   map[string]int64{},
	}, nil
}

// VerifyEvent checks a Stripe-Signature header the way the live gateway does,
// including the timestamp tolerance.
func (g *Gateway) VerifyEvent(payload []byte, signatureHeader string) (*domain.Event, error) {
	if err := webhook.ValidatePayloadWithTolerance(payload, signatureHeader, g.Secret, g.Tolerance); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	}
	return stripe.ParseEvent(payload)
}

func (g *Gateway) ParseEvent(payload []byte) (*domain.Event, error) {
	return stripe.ParseEvent(payload)
}

// Sign returns a signature header for payload stamped now.
func (g *Gateway) Sign(payload []byte) string {
	return g.SignAt(payload, time.Now())
}

// SignAt returns a signature header for payload stamped at ts.
func (g *Gateway) SignAt(payload []byte, ts time.Time) string {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    g.Secret,
		Timestamp: ts,
	}).Header
}

// EventPayload builds a raw event body with object as data.object.
func EventPayload(id, eventType string, object any) []byte {
	raw, err := json.Marshal(map[string]any{
		"id":      id,
		"object":  "event",
		"type":    eventType,
		"created": time.Now().Unix(),
		"data":    map[string]any{"object": object},
	})
	if err != nil {
		panic(err)
	}
	return raw
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyInt64Map(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
