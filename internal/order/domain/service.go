package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// TransitionResult describes the outcome of a status change request.
type TransitionResult struct {
	Order   *Order
	From    Status
	Applied bool
}

type Service interface {
	// Transition moves the order to status `to` inside db (usually a
	// transaction). Re-applying the current status is a no-op with
	// Applied=false.
	Transition(ctx context.Context, db *gorm.DB, orderID snowflake.ID, to Status) (*TransitionResult, error)
	Get(ctx context.Context, orderID, requesterID snowflake.ID) (*Order, error)
}
