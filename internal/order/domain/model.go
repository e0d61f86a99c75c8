package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

// Order is one purchase attempt. Amount is fixed at creation and
// CheckoutSessionID is written at most once.
type Order struct {
	ID                snowflake.ID  `json:"id" gorm:"primaryKey"`
	BuyerID           snowflake.ID  `json:"buyer_id"`
	SellerID          snowflake.ID  `json:"seller_id"`
	ProductID         snowflake.ID  `json:"product_id"`
	Amount            int64         `json:"amount"`
	Currency          string        `json:"currency"`
	Status            Status        `json:"status"`
	CheckoutSessionID *string       `json:"checkout_session_id,omitempty"`
	PaymentURL        *string       `json:"payment_url,omitempty"`
	RefundID          *snowflake.ID `json:"refund_id,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Abandoned reports whether the gateway never returned a session for this order.
func (o *Order) Abandoned() bool {
	return o.Status == StatusPending && o.CheckoutSessionID == nil
}

func (o *Order) IsParticipant(userID snowflake.ID) bool {
	return o.BuyerID == userID || o.SellerID == userID
}
