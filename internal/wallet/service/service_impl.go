package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/wallet/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB   *gorm.DB
	Repo domain.Repository
}

type Service struct {
	db   *gorm.DB
	repo domain.Repository
}

func New(p Params) *Service {
	return &Service{db: p.DB, repo: p.Repo}
}

func (s *Service) Get(ctx context.Context, userID snowflake.ID) (*domain.Wallet, error) {
	w, err := s.repo.Get(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, domain.ErrWalletNotFound
	}
	return w, nil
}
