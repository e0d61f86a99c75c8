package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertPending reports false when the order already has a refund row.
	InsertPending(ctx context.Context, db *gorm.DB, refund *Refund) (bool, error)
	FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*Refund, error)
	FindPendingByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*Refund, error)
	DeletePending(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, stripeRefundID *string, now time.Time) (bool, error)
	ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*Refund, error)
}
