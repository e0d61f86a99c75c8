package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/shelfpay/pkg/db/pagination"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"gorm.io/gorm"
)

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

type Service interface {
	AuditLog(ctx context.Context, actorType ActorType, actorID *string, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errs.Wrap(errs.ErrInvalidRequest, "invalid_page_token")
	ErrInvalidTimeRange = errs.Wrap(errs.ErrInvalidRequest, "invalid_time_range")
	ErrInvalidAction    = errs.Wrap(errs.ErrInvalidRequest, "invalid_action")
)
