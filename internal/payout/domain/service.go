package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type CreatePayoutRequest struct {
	UserID snowflake.ID `json:"-"`
	Amount int64        `json:"amount"`
}

type Service interface {
	CreatePayout(ctx context.Context, req CreatePayoutRequest) (*Payout, error)
	// GetPayout refreshes the status from the gateway before returning.
	GetPayout(ctx context.Context, userID, payoutID snowflake.ID) (*Payout, error)
	CancelPayout(ctx context.Context, userID, payoutID snowflake.ID) (*Payout, error)
	// ApplyGatewayStatus records a status reported by the gateway. Unknown
	// payouts return nil without error.
	ApplyGatewayStatus(ctx context.Context, stripePayoutID, status string) (*Payout, error)
}
