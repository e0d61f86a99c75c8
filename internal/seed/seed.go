package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

const (
	DemoSellerID  snowflake.ID = 1001
	DemoBuyerID   snowflake.ID = 1002
	DemoProductID snowflake.ID = 2001

	DemoPrice    int64 = 1999
	DemoCurrency       = "usd"

	demoSellerEmail = "seller@shelfpay.local"
	demoBuyerEmail  = "buyer@shelfpay.local"
	demoTitle       = "The Reconciled Ledger"
)

// EnsureDemoCatalog seeds a seller, a buyer and one listing for local
// development. Existing rows are left untouched.
func EnsureDemoCatalog(db *gorm.DB, sellerAccount string) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	ctx := context.Background()
	now := time.Now().UTC()
	var account *string
	if trimmed := strings.TrimSpace(sellerAccount); trimmed != "" {
		account = &trimmed
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureUserTx(ctx, tx, DemoSellerID, demoSellerEmail, account, now); err != nil {
			return err
		}
		if err := ensureUserTx(ctx, tx, DemoBuyerID, demoBuyerEmail, nil, now); err != nil {
			return err
		}
		if err := ensureWalletTx(ctx, tx, DemoSellerID, now); err != nil {
			return err
		}
		return tx.WithContext(ctx).Exec(
			`INSERT INTO products (id, seller_id, title, price, currency, active, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (id) DO NOTHING`,
			DemoProductID,
			DemoSellerID,
			demoTitle,
			DemoPrice,
			DemoCurrency,
			true,
			now,
			now,
		).Error
	})
}

func ensureUserTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, email string, account *string, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO users (id, email, stripe_account_id, stripe_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		id,
		email,
		account,
		false,
		now,
		now,
	).Error
}

func ensureWalletTx(ctx context.Context, tx *gorm.DB, userID snowflake.ID, now time.Time) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO wallets (user_id, balance, currency, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
		0,
		DemoCurrency,
		now,
	).Error
}
