package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository mutates orders only through conditional statements so concurrent
// writers cannot skip a state.
type Repository interface {
	Create(ctx context.Context, db *gorm.DB, order *Order) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	AttachSession(ctx context.Context, db *gorm.DB, id snowflake.ID, sessionID, paymentURL string, now time.Time) (bool, error)
	Transition(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, now time.Time) (bool, error)
	MarkRefunded(ctx context.Context, db *gorm.DB, id, refundID snowflake.ID, now time.Time) (bool, error)
	HasCompletedPurchase(ctx context.Context, db *gorm.DB, buyerID, productID snowflake.ID) (bool, error)
}
