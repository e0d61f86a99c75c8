package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	auditdomain "github.com/smallbiznis/shelfpay/internal/audit/domain"
	"github.com/smallbiznis/shelfpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	RoleOperator = "role:operator"
)

const (
	ObjectWebhookEvent = "webhook_event"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionWebhookEventView   = "webhook_event.view"
	ActionWebhookEventReplay = "webhook_event.replay"
	ActionAuditLogView       = "audit_log.view"
)

const actionAuthorizationDenied = "authorization.denied"

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer builds an in-memory enforcer with the static policy set and
// grants the operator role to every configured operator user.
func NewEnforcer(cfg config.Config) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	for _, raw := range cfg.OperatorUserIDs {
		id, err := snowflake.ParseString(strings.TrimSpace(raw))
		if err != nil || id == 0 {
			return nil, fmt.Errorf("invalid operator user id %q", raw)
		}
		if _, err := enforcer.AddGroupingPolicy(subject(id), RoleOperator); err != nil {
			return nil, err
		}
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, userID snowflake.ID, object string, action string) error {
	if userID == 0 {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(userID), object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDenied(ctx, userID, object, action)
		return ErrForbidden
	}
	return nil
}

func (s *ServiceImpl) auditDenied(ctx context.Context, userID snowflake.ID, object string, action string) {
	s.log.Info("authorization denied",
		zap.String("user_id", userID.String()),
		zap.String("object", object),
		zap.String("action", action),
	)
	if s.auditSvc == nil {
		return
	}
	actorID := userID.String()
	targetID := "capability"
	_ = s.auditSvc.AuditLog(ctx, auditdomain.ActorTypeUser, &actorID, actionAuthorizationDenied, "authorization", &targetID, map[string]any{
		"object": object,
		"action": action,
	})
}

func subject(userID snowflake.ID) string {
	return "user:" + userID.String()
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{RoleOperator, ObjectWebhookEvent, ActionWebhookEventView},
		{RoleOperator, ObjectWebhookEvent, ActionWebhookEventReplay},
		{RoleOperator, ObjectAuditLog, ActionAuditLogView},
	}

	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
