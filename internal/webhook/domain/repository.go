package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// Insert records a first delivery. It returns false when the id exists.
	Insert(ctx context.Context, db *gorm.DB, event *Event) (bool, error)
	// Reclaim takes ownership of an existing row for another attempt when
	// it was left retryable, or unmarked since before staleBefore.
	Reclaim(ctx context.Context, db *gorm.DB, id string, staleBefore, now time.Time) (bool, error)
	// ReclaimForReplay also accepts rows that failed permanently.
	ReclaimForReplay(ctx context.Context, db *gorm.DB, id string, staleBefore, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, db *gorm.DB, id string, now time.Time) error
	MarkRetryable(ctx context.Context, db *gorm.DB, id, reason string, now time.Time) error
	MarkFailed(ctx context.Context, db *gorm.DB, id, reason string, now time.Time) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*Event, error)
	// ListUnresolved returns up to Limit+1 rows, oldest first.
	ListUnresolved(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Event, error)
	CountUnresolved(ctx context.Context, db *gorm.DB) (int64, error)
}
