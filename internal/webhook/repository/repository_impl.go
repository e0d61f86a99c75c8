package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/shelfpay/internal/webhook/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const eventColumns = `id, event_type, payload, processed, retryable, attempts,
	processing_error, created_at, updated_at, processed_at`

const unresolved = `(processed = false OR processing_error IS NOT NULL)`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, event *domain.Event) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`INSERT INTO webhook_events (id, event_type, payload, processed, retryable, attempts, created_at, updated_at)
		 VALUES (?, ?, ?, false, false, 1, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		event.ID,
		event.EventType,
		event.Payload,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) Reclaim(ctx context.Context, db *gorm.DB, id string, staleBefore, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_events SET retryable = false, attempts = attempts + 1, updated_at = ?
		 WHERE id = ? AND processed = false AND (retryable = true OR updated_at < ?)`,
		now,
		id,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ReclaimForReplay(ctx context.Context, db *gorm.DB, id string, staleBefore, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed = false, retryable = false, processing_error = NULL, processed_at = NULL,
		     attempts = attempts + 1, updated_at = ?
		 WHERE id = ? AND (
		     processing_error IS NOT NULL
		     OR (processed = false AND (retryable = true OR updated_at < ?))
		 )`,
		now,
		id,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed = true, retryable = false, processing_error = NULL, processed_at = ?, updated_at = ?
		 WHERE id = ?`,
		now,
		now,
		id,
	).Error
}

func (r *repo) MarkRetryable(ctx context.Context, db *gorm.DB, id, reason string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed = false, retryable = true, processing_error = ?, updated_at = ?
		 WHERE id = ?`,
		reason,
		now,
		id,
	).Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id, reason string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE webhook_events
		 SET processed = true, retryable = false, processing_error = ?, processed_at = ?, updated_at = ?
		 WHERE id = ?`,
		reason,
		now,
		now,
		id,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*domain.Event, error) {
	var e domain.Event
	err := db.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM webhook_events WHERE id = ?`,
		id,
	).Scan(&e).Error
	if err != nil {
		return nil, err
	}
	if e.ID == "" {
		return nil, nil
	}
	return &e, nil
}

func (r *repo) ListUnresolved(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM webhook_events WHERE ` + unresolved
	args := []any{}
	if filter.Cursor != nil {
		query += ` AND (created_at > ? OR (created_at = ? AND id > ?))`
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit+1)
	}

	var events []*domain.Event
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) CountUnresolved(ctx context.Context, db *gorm.DB) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM webhook_events WHERE ` + unresolved,
	).Scan(&count).Error
	return count, err
}
