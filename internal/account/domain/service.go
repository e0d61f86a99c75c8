package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type OnboardResponse struct {
	AccountID     string `json:"account_id"`
	OnboardingURL string `json:"onboarding_url"`
}

type StatusResponse struct {
	AccountID        string `json:"account_id"`
	ChargesEnabled   bool   `json:"charges_enabled"`
	PayoutsEnabled   bool   `json:"payouts_enabled"`
	DetailsSubmitted bool   `json:"details_submitted"`
	Verified         bool   `json:"verified"`
}

// Service manages a user's gateway sub-account.
type Service interface {
	Onboard(ctx context.Context, userID snowflake.ID) (*OnboardResponse, error)
	Status(ctx context.Context, userID snowflake.ID) (*StatusResponse, error)
	Unlink(ctx context.Context, userID snowflake.ID) error
	// ApplyAccountUpdate marks the owner of accountID verified once both
	// charges and payouts are enabled. Unknown accounts are ignored.
	ApplyAccountUpdate(ctx context.Context, accountID string, chargesEnabled, payoutsEnabled bool) (bool, error)
}
