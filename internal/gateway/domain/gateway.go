package domain

import (
	"context"
	"time"
)

// Gateway is the payment processor boundary. Every call must honor ctx
// cancellation; implementations report failures as *errs.GatewayError.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutSessionParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	CreateRefund(ctx context.Context, params RefundParams) (*Refund, error)

	CreatePayout(ctx context.Context, params PayoutParams) (*Payout, error)
	GetPayout(ctx context.Context, accountID, payoutID string) (*Payout, error)
	CancelPayout(ctx context.Context, accountID, payoutID string) (*Payout, error)

	CreateAccount(ctx context.Context, params AccountParams) (*Account, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	DeleteAccount(ctx context.Context, accountID string) error
	CreateAccountLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)

	GetBalance(ctx context.Context, accountID string) (*Balance, error)
}

// WebhookVerifier authenticates raw webhook bodies.
type WebhookVerifier interface {
	// VerifyEvent checks the signature header against the unparsed payload
	// and returns the decoded envelope.
	VerifyEvent(payload []byte, signatureHeader string) (*Event, error)
	// ParseEvent decodes a payload that was verified on an earlier delivery.
	ParseEvent(payload []byte) (*Event, error)
}

type CheckoutSessionParams struct {
	IdempotencyKey     string
	Amount             int64
	Currency           string
	ProductName        string
	DestinationAccount string
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
}

type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	PaymentStatus   string
	PaymentIntentID string
	Metadata        map[string]string
}

type RefundParams struct {
	IdempotencyKey  string
	PaymentIntentID string
	Amount          int64
	Metadata        map[string]string
}

type Refund struct {
	ID              string
	Status          string
	Amount          int64
	PaymentIntentID string
}

type PayoutParams struct {
	IdempotencyKey string
	AccountID      string
	Amount         int64
	Currency       string
	Metadata       map[string]string
}

type Payout struct {
	ID          string
	Status      string
	Amount      int64
	Currency    string
	ArrivalDate time.Time
}

type AccountParams struct {
	IdempotencyKey string
	Email          string
	Country        string
	Metadata       map[string]string
}

type Account struct {
	ID               string
	Email            string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

// Verified reports whether the account can both accept charges and receive payouts.
func (a *Account) Verified() bool {
	return a != nil && a.ChargesEnabled && a.PayoutsEnabled
}

// Balance holds amounts per lowercase ISO currency.
type Balance struct {
	Available map[string]int64
	Pending   map[string]int64
}

func (b *Balance) AvailableIn(currency string) int64 {
	if b == nil {
		return 0
	}
	return b.Available[currency]
}
