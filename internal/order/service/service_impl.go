package service

import (
	"context"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/observability/metrics"
	"github.com/smallbiznis/shelfpay/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	clock   clock.Clock
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("order.service"),
		repo:    p.Repo,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Transition(ctx context.Context, db *gorm.DB, orderID snowflake.ID, to domain.Status) (*domain.TransitionResult, error) {
	if db == nil {
		db = s.db
	}

	order, err := s.repo.FindByID(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}

	from := order.Status
	if from == to {
		return &domain.TransitionResult{Order: order, From: from, Applied: false}, nil
	}
	if !domain.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: order %s %s -> %s", domain.ErrInvalidTransition, orderID, from, to)
	}

	now := s.clock.Now()
	ok, err := s.repo.Transition(ctx, db, orderID, from, to, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race with another writer; judge against the row as it is now.
		current, err := s.repo.FindByID(ctx, db, orderID)
		if err != nil {
			return nil, err
		}
		if current != nil && current.Status == to {
			return &domain.TransitionResult{Order: current, From: to, Applied: false}, nil
		}
		status := domain.Status("")
		if current != nil {
			status = current.Status
		}
		return nil, fmt.Errorf("%w: order %s changed to %s concurrently", domain.ErrInvalidTransition, orderID, status)
	}

	order.Status = to
	order.UpdatedAt = now
	s.metrics.RecordOrderTransition(ctx, string(from), string(to))
	s.log.Info("order transitioned",
		zap.String("order_id", orderID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return &domain.TransitionResult{Order: order, From: from, Applied: true}, nil
}

func (s *Service) Get(ctx context.Context, orderID, requesterID snowflake.ID) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, domain.ErrOrderNotFound
	}
	if !order.IsParticipant(requesterID) {
		return nil, domain.ErrNotParticipant
	}
	return order, nil
}
