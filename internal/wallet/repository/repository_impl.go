package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Get(ctx context.Context, db *gorm.DB, userID snowflake.ID) (*domain.Wallet, error) {
	var w domain.Wallet
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, balance, currency, last_payout_at, updated_at FROM wallets WHERE user_id = ?`,
		userID,
	).Scan(&w).Error
	if err != nil {
		return nil, err
	}
	if w.UserID == 0 {
		return nil, nil
	}
	return &w, nil
}

func (r *repo) Credit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64, currency string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallets (user_id, balance, currency, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET balance = wallets.balance + excluded.balance, updated_at = excluded.updated_at`,
		userID,
		amount,
		currency,
		now,
	).Error
}

func (r *repo) Debit(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE wallets SET balance = balance - ?, updated_at = ? WHERE user_id = ?`,
		amount,
		now,
		userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("debit %s: %w", userID, domain.ErrWalletNotFound)
	}
	return nil
}

func (r *repo) RecordPayout(ctx context.Context, db *gorm.DB, userID snowflake.ID, amount int64, now time.Time) error {
	res := db.WithContext(ctx).Exec(
		`UPDATE wallets SET balance = balance - ?, last_payout_at = ?, updated_at = ? WHERE user_id = ?`,
		amount,
		now,
		now,
		userID,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payout %s: %w", userID, domain.ErrWalletNotFound)
	}
	return nil
}
