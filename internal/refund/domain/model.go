package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
)

// Refund tracks one refund attempt per order. The row is written before the
// gateway call and finalized after it, so an interrupted attempt stays
// visible as pending.
type Refund struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID         snowflake.ID `json:"order_id"`
	RequesterID     snowflake.ID `json:"requester_id"`
	Amount          int64        `json:"amount"`
	PaymentIntentID string       `json:"-"`
	StripeRefundID  *string      `json:"stripe_refund_id,omitempty"`
	Status          Status       `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (Refund) TableName() string { return "refunds" }
