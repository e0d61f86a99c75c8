package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/payout/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const payoutColumns = `id, user_id, amount, currency, stripe_payout_id, status, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, payout *domain.Payout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payouts (id, user_id, amount, currency, stripe_payout_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		payout.ID,
		payout.UserID,
		payout.Amount,
		payout.Currency,
		payout.StripePayoutID,
		payout.Status,
		payout.CreatedAt,
		payout.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payout, error) {
	return r.findOne(ctx, db, `SELECT `+payoutColumns+` FROM payouts WHERE id = ?`, id)
}

func (r *repo) FindByStripeID(ctx context.Context, db *gorm.DB, stripePayoutID string) (*domain.Payout, error) {
	return r.findOne(ctx, db, `SELECT `+payoutColumns+` FROM payouts WHERE stripe_payout_id = ?`, stripePayoutID)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Payout, error) {
	var p domain.Payout
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&p).Error; err != nil {
		return nil, err
	}
	if p.ID == 0 {
		return nil, nil
	}
	return &p, nil
}

func (r *repo) UpdateStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to domain.Status, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payouts SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListStale(ctx context.Context, db *gorm.DB, status domain.Status, before time.Time, limit int) ([]*domain.Payout, error) {
	var items []*domain.Payout
	err := db.WithContext(ctx).Raw(
		`SELECT `+payoutColumns+` FROM payouts
		 WHERE status = ? AND updated_at < ?
		 ORDER BY updated_at ASC, id ASC
		 LIMIT ?`,
		status,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
