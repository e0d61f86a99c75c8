package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/smallbiznis/shelfpay/pkg/errs"
)

const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventCheckoutSessionExpired   = "checkout.session.expired"
	EventPaymentIntentFailed      = "payment_intent.payment_failed"
	EventChargeRefunded           = "charge.refunded"
	EventAccountUpdated           = "account.updated"
	EventPayoutPaid               = "payout.paid"
	EventPayoutFailed             = "payout.failed"
)

var (
	ErrInvalidSignature = errs.Wrap(errs.ErrAuthentication, "invalid_signature")
	ErrInvalidPayload   = errs.Wrap(errs.ErrInvalidRequest, "invalid_payload")
	ErrResourceMissing  = errs.Wrap(errs.ErrNotFound, "gateway_resource_missing")
)

// Event is a verified webhook envelope. Object holds the raw data.object.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Account string
	Object  json.RawMessage
}

// Objects below mirror the processor's wire shape for the fields
// reconciliation reads.

type SessionObject struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	PaymentStatus string            `json:"payment_status"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

type PaymentIntentObject struct {
	ID               string            `json:"id"`
	Amount           int64             `json:"amount"`
	Metadata         map[string]string `json:"metadata"`
	LastPaymentError *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type ChargeObject struct {
	ID             string            `json:"id"`
	PaymentIntent  string            `json:"payment_intent"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"`
	Refunded       bool              `json:"refunded"`
	Metadata       map[string]string `json:"metadata"`
	Refunds        *struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"refunds"`
}

// LatestRefundID returns the first refund listed on the charge, if expanded.
func (c *ChargeObject) LatestRefundID() string {
	if c.Refunds == nil || len(c.Refunds.Data) == 0 {
		return ""
	}
	return c.Refunds.Data[0].ID
}

type AccountObject struct {
	ID             string `json:"id"`
	ChargesEnabled bool   `json:"charges_enabled"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

type PayoutObject struct {
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	Amount         int64             `json:"amount"`
	FailureCode    string            `json:"failure_code"`
	FailureMessage string            `json:"failure_message"`
	Metadata       map[string]string `json:"metadata"`
}

// Decode unmarshals the event object into out. A malformed object is an
// integrity violation: the signature was valid, so the sender is trusted.
func (e *Event) Decode(out any) error {
	if e == nil || len(e.Object) == 0 {
		return fmt.Errorf("%w: event has no object", errs.ErrIntegrityViolation)
	}
	if err := json.Unmarshal(e.Object, out); err != nil {
		return fmt.Errorf("%w: decode %s object: %v", errs.ErrIntegrityViolation, e.Type, err)
	}
	return nil
}
