package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	FindUserByStripeAccount(ctx context.Context, db *gorm.DB, accountID string) (*User, error)
	// LinkStripeAccount sets the account only when the user has none and
	// reports whether the row was updated.
	LinkStripeAccount(ctx context.Context, db *gorm.DB, userID snowflake.ID, accountID string, now time.Time) (bool, error)
	UnlinkStripeAccount(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) error
	SetStripeVerified(ctx context.Context, db *gorm.DB, userID snowflake.ID, verified bool, now time.Time) error
}
