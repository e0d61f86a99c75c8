package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/pkg/errs"
)

var ErrInvalidBuyer = errs.Wrap(errs.ErrInvalidRequest, "invalid_buyer")

type CheckoutRequest struct {
	ProductID snowflake.ID `json:"product_id"`
	BuyerID   snowflake.ID `json:"-"`
}

type CheckoutResponse struct {
	OrderID   snowflake.ID `json:"order_id"`
	SessionID string       `json:"session_id"`
	URL       string       `json:"url"`
}

type Service interface {
	// Checkout records a PENDING order and opens a gateway checkout session
	// for it. A gateway failure leaves the order PENDING without a session.
	Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error)
}
