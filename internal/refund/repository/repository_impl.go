package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/refund/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const refundColumns = `id, order_id, requester_id, amount, payment_intent_id, stripe_refund_id, status, created_at, updated_at`

func (r *repo) InsertPending(ctx context.Context, db *gorm.DB, refund *domain.Refund) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO refunds (id, order_id, requester_id, amount, payment_intent_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (order_id) DO NOTHING`,
		refund.ID,
		refund.OrderID,
		refund.RequesterID,
		refund.Amount,
		refund.PaymentIntentID,
		domain.StatusPending,
		refund.CreatedAt,
		refund.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) FindByOrderID(ctx context.Context, db *gorm.DB, orderID snowflake.ID) (*domain.Refund, error) {
	return r.findOne(ctx, db, `SELECT `+refundColumns+` FROM refunds WHERE order_id = ?`, orderID)
}

func (r *repo) FindPendingByPaymentIntent(ctx context.Context, db *gorm.DB, paymentIntentID string) (*domain.Refund, error) {
	return r.findOne(ctx, db,
		`SELECT `+refundColumns+` FROM refunds WHERE payment_intent_id = ? AND status = ?`,
		paymentIntentID, domain.StatusPending,
	)
}

func (r *repo) findOne(ctx context.Context, db *gorm.DB, query string, args ...any) (*domain.Refund, error) {
	var refund domain.Refund
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&refund).Error; err != nil {
		return nil, err
	}
	if refund.ID == 0 {
		return nil, nil
	}
	return &refund, nil
}

func (r *repo) DeletePending(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Exec(
		`DELETE FROM refunds WHERE id = ? AND status = ?`,
		id,
		domain.StatusPending,
	).Error
}

func (r *repo) MarkSucceeded(ctx context.Context, db *gorm.DB, id snowflake.ID, stripeRefundID *string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE refunds SET status = ?, stripe_refund_id = COALESCE(?, stripe_refund_id), updated_at = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusSucceeded,
		stripeRefundID,
		now,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListPendingBefore(ctx context.Context, db *gorm.DB, before time.Time, limit int) ([]*domain.Refund, error) {
	var items []*domain.Refund
	err := db.WithContext(ctx).Raw(
		`SELECT `+refundColumns+` FROM refunds
		 WHERE status = ? AND created_at < ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`,
		domain.StatusPending,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
