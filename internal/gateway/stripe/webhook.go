package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/shelfpay/internal/gateway/domain"
	stripego "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"
)

// VerifyEvent checks the Stripe-Signature header against the raw payload.
// The payload must be the exact bytes received; re-encoded JSON never matches.
func (c *Client) VerifyEvent(payload []byte, signatureHeader string) (*domain.Event, error) {
	if c.webhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", domain.ErrInvalidSignature)
	}
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing signature header", domain.ErrInvalidSignature)
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, c.webhookSecret, webhook.ConstructEventOptions{
		Tolerance:                c.policy.Get().WebhookTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return toEvent(event)
}

// ParseEvent decodes a stored payload without signature checks. Callers
// must only pass bytes that were verified when first received.
func (c *Client) ParseEvent(payload []byte) (*domain.Event, error) {
	return ParseEvent(payload)
}

func ParseEvent(payload []byte) (*domain.Event, error) {
	var event stripego.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return toEvent(event)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrTooOld)
}

func toEvent(event stripego.Event) (*domain.Event, error) {
	if event.ID == "" || event.Type == "" {
		return nil, fmt.Errorf("%w: missing event id or type", domain.ErrInvalidPayload)
	}
	out := &domain.Event{
		ID:      event.ID,
		Type:    string(event.Type),
		Account: event.Account,
	}
	if event.Created > 0 {
		out.Created = time.Unix(event.Created, 0).UTC()
	}
	if event.Data != nil {
		out.Object = event.Data.Raw
	}
	return out, nil
}
