package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/account/domain"
	auditdomain "github.com/smallbiznis/shelfpay/internal/audit/domain"
	catalogdomain "github.com/smallbiznis/shelfpay/internal/catalog/domain"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/config"
	gatewaydomain "github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	Clock       clock.Clock
	Config      config.Config
	Policy      *config.PaymentPolicyHolder
	Gateway     gatewaydomain.Gateway
	CatalogRepo catalogdomain.Repository
	AuditSvc    auditdomain.Service
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	clock       clock.Clock
	policy      *config.PaymentPolicyHolder
	gateway     gatewaydomain.Gateway
	catalogRepo catalogdomain.Repository
	auditSvc    auditdomain.Service
	returnURL   string
	refreshURL  string
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("account.service"),
		clock:       p.Clock,
		policy:      p.Policy,
		gateway:     p.Gateway,
		catalogRepo: p.CatalogRepo,
		auditSvc:    p.AuditSvc,
		returnURL:   p.Config.Stripe.OnboardReturnURL,
		refreshURL:  p.Config.Stripe.OnboardRefreshURL,
	}
}

func (s *Service) Onboard(ctx context.Context, userID snowflake.ID) (*domain.OnboardResponse, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.policy.Get().GatewayTimeout)
	defer cancel()

	accountID := user.PayableAccount()
	if accountID == "" {
		acct, err := s.gateway.CreateAccount(gatewayCtx, gatewaydomain.AccountParams{
			IdempotencyKey: "account_" + userID.String(),
			Email:          user.Email,
			Metadata:       map[string]string{"user_id": userID.String()},
		})
		if err != nil {
			return nil, err
		}
		linked, err := s.catalogRepo.LinkStripeAccount(ctx, s.db, userID, acct.ID, s.clock.Now())
		if err != nil {
			return nil, err
		}
		if !linked {
			// Someone linked an account first; keep theirs.
			current, err := s.findUser(ctx, userID)
			if err != nil {
				return nil, err
			}
			if current.PayableAccount() == "" {
				return nil, fmt.Errorf("%w: account link for user %s", errs.ErrConflict, userID)
			}
			acct.ID = current.PayableAccount()
		} else {
			s.audit(ctx, auditdomain.ActionAccountLinked, userID, acct.ID)
			s.log.Info("gateway account linked", zap.String("user_id", userID.String()))
		}
		accountID = acct.ID
	}

	url, err := s.gateway.CreateAccountLink(gatewayCtx, accountID, s.refreshURL, s.returnURL)
	if err != nil {
		return nil, err
	}
	return &domain.OnboardResponse{AccountID: accountID, OnboardingURL: url}, nil
}

func (s *Service) Status(ctx context.Context, userID snowflake.ID) (*domain.StatusResponse, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	accountID := user.PayableAccount()
	if accountID == "" {
		return nil, catalogdomain.ErrAccountNotLinked
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.policy.Get().GatewayTimeout)
	defer cancel()
	acct, err := s.gateway.GetAccount(gatewayCtx, accountID)
	if err != nil {
		return nil, err
	}

	verified := acct.Verified()
	if verified != user.StripeVerified {
		if err := s.catalogRepo.SetStripeVerified(ctx, s.db, userID, verified, s.clock.Now()); err != nil {
			return nil, err
		}
		if verified {
			s.audit(ctx, auditdomain.ActionAccountVerified, userID, accountID)
		}
	}

	return &domain.StatusResponse{
		AccountID:        accountID,
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
		Verified:         verified,
	}, nil
}

func (s *Service) Unlink(ctx context.Context, userID snowflake.ID) error {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return err
	}
	accountID := user.PayableAccount()
	if accountID == "" {
		return catalogdomain.ErrAccountNotLinked
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.policy.Get().GatewayTimeout)
	defer cancel()
	if err := s.gateway.DeleteAccount(gatewayCtx, accountID); err != nil && !errors.Is(err, errs.ErrNotFound) {
		return err
	}
	if err := s.catalogRepo.UnlinkStripeAccount(ctx, s.db, userID, s.clock.Now()); err != nil {
		return err
	}
	s.audit(ctx, auditdomain.ActionAccountUnlinked, userID, accountID)
	s.log.Info("gateway account unlinked", zap.String("user_id", userID.String()))
	return nil
}

func (s *Service) ApplyAccountUpdate(ctx context.Context, accountID string, chargesEnabled, payoutsEnabled bool) (bool, error) {
	user, err := s.catalogRepo.FindUserByStripeAccount(ctx, s.db, accountID)
	if err != nil {
		return false, err
	}
	if user == nil {
		s.log.Info("account update for unknown account ignored")
		return false, nil
	}
	if !chargesEnabled || !payoutsEnabled || user.StripeVerified {
		return false, nil
	}
	if err := s.catalogRepo.SetStripeVerified(ctx, s.db, user.ID, true, s.clock.Now()); err != nil {
		return false, err
	}
	s.audit(ctx, auditdomain.ActionAccountVerified, user.ID, accountID)
	s.log.Info("seller verified", zap.String("user_id", user.ID.String()))
	return true, nil
}

func (s *Service) findUser(ctx context.Context, userID snowflake.ID) (*catalogdomain.User, error) {
	user, err := s.catalogRepo.FindUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, catalogdomain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) audit(ctx context.Context, action string, userID snowflake.ID, accountID string) {
	targetID := userID.String()
	if err := s.auditSvc.AuditLog(ctx, "", nil, action, "user", &targetID, map[string]any{
		"stripe_account_id": accountID,
	}); err != nil {
		s.log.Warn("failed to write account audit log", zap.String("action", action), zap.Error(err))
	}
}
