package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type ActorType string

const (
	ActorTypeSystem   ActorType = "system"
	ActorTypeUser     ActorType = "user"
	ActorTypeGateway  ActorType = "gateway"
	ActorTypeOperator ActorType = "operator"
)

const (
	ActionCheckoutCreated    = "checkout.created"
	ActionOrderTransitioned  = "order.transitioned"
	ActionRefundRequested    = "refund.requested"
	ActionRefundFinalized    = "refund.finalized"
	ActionPayoutCreated      = "payout.created"
	ActionPayoutCanceled     = "payout.canceled"
	ActionPayoutStatus       = "payout.status_changed"
	ActionPayoutCompensated  = "payout.compensated"
	ActionAccountLinked      = "account.linked"
	ActionAccountUnlinked    = "account.unlinked"
	ActionAccountVerified    = "account.verified"
	ActionWebhookUnhandled   = "webhook.unhandled"
	ActionWebhookReplayed    = "webhook.replayed"
	ActionIntegrityViolation = "integrity.violation"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	ActorType  string            `json:"actor_type" gorm:"type:text;not null"`
	ActorID    *string           `json:"actor_id,omitempty" gorm:"type:text"`
	Action     string            `json:"action" gorm:"type:text;not null"`
	TargetType string            `json:"target_type" gorm:"type:text;not null"`
	TargetID   *string           `json:"target_id,omitempty" gorm:"type:text"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	RequestID  *string           `json:"request_id,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}
