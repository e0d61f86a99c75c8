package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type CreateRefundRequest struct {
	OrderID     snowflake.ID
	RequesterID snowflake.ID
}

type Service interface {
	CreateRefund(ctx context.Context, req CreateRefundRequest) (*Refund, error)
	// FinalizeByPaymentIntent completes the pending refund for a payment
	// intent once the gateway confirms it. It returns nil when no pending
	// refund matches.
	FinalizeByPaymentIntent(ctx context.Context, paymentIntentID string, stripeRefundID *string) (*Refund, error)
}
