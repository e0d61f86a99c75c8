package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusFailed   Status = "failed"
	StatusCanceled Status = "canceled"
)

// Payout is written only after the gateway accepted the transfer.
type Payout struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	UserID         snowflake.ID `json:"user_id"`
	Amount         int64        `json:"amount"`
	Currency       string       `json:"currency"`
	StripePayoutID string       `json:"stripe_payout_id"`
	Status         Status       `json:"status"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

func (Payout) TableName() string { return "payouts" }

var transitions = map[Status][]Status{
	StatusPending: {StatusPaid, StatusFailed, StatusCanceled},
	StatusPaid:    {StatusFailed},
}

// CanTransition reports whether a payout may move from one status to another.
// A paid payout can still fail when the bank returns the funds.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReturnsFunds reports whether reaching s gives the amount back to the seller.
func (s Status) ReturnsFunds() bool {
	return s == StatusFailed || s == StatusCanceled
}

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusPaid, StatusFailed, StatusCanceled:
		return s, true
	case "in_transit":
		return StatusPending, true
	default:
		return "", false
	}
}
