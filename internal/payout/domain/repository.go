package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payout *Payout) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payout, error)
	FindByStripeID(ctx context.Context, db *gorm.DB, stripePayoutID string) (*Payout, error)
	// UpdateStatus applies from -> to only if the row is still in from.
	UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to Status, now time.Time) (bool, error)
	// ListStale returns payouts in status whose row has not changed since before,
	// oldest first.
	ListStale(ctx context.Context, db *gorm.DB, status Status, before time.Time, limit int) ([]*Payout, error)
}
