package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"gorm.io/gorm"
)

// Wallet mirrors a seller's earnings held at the gateway. Balance may go
// negative when a refund lands after the funds were paid out.
type Wallet struct {
	UserID       snowflake.ID `json:"user_id" gorm:"primaryKey"`
	Balance      int64        `json:"balance"`
	Currency     string       `json:"currency"`
	LastPayoutAt *time.Time   `json:"last_payout_at,omitempty"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (Wallet) TableName() string { return "wallets" }

var ErrWalletNotFound = errs.Wrap(errs.ErrNotFound, "wallet_not_found")

type Repository interface {
	Get(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*Wallet, error)
	// Credit creates the wallet on first use.
	Credit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64, currency string, now time.Time) error
	Debit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64, now time.Time) error
	// RecordPayout debits amount and stamps last_payout_at.
	RecordPayout(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64, now time.Time) error
}
