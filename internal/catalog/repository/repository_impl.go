package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var p domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, seller_id, title, price, currency, active, created_at, updated_at
		 FROM products WHERE id = ?`,
		id,
	).Scan(&p).Error
	if err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, stripe_account_id, stripe_verified, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&u).Error
	if err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, nil
	}
	return &u, nil
}

func (r *repo) FindUserByStripeAccount(ctx context.Context, db *gorm.DB, accountID string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, stripe_account_id, stripe_verified, created_at, updated_at
		 FROM users WHERE stripe_account_id = ?`,
		accountID,
	).Scan(&u).Error
	if err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, nil
	}
	return &u, nil
}

func (r *repo) LinkStripeAccount(ctx context.Context, db *gorm.DB, userID snowflake.ID, accountID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE users SET stripe_account_id = ?, stripe_verified = ?, updated_at = ?
		 WHERE id = ? AND stripe_account_id IS NULL`,
		accountID,
		false,
		now,
		userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) UnlinkStripeAccount(ctx context.Context, db *gorm.DB, userID snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET stripe_account_id = NULL, stripe_verified = ?, updated_at = ?
		 WHERE id = ?`,
		false,
		now,
		userID,
	).Error
}

func (r *repo) SetStripeVerified(ctx context.Context, db *gorm.DB, userID snowflake.ID, verified bool, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE users SET stripe_verified = ?, updated_at = ? WHERE id = ?`,
		verified,
		now,
		userID,
	).Error
}
