package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/smallbiznis/shelfpay/internal/clock"
	"github.com/smallbiznis/shelfpay/internal/ledgertest"
	"github.com/smallbiznis/shelfpay/internal/order/domain"
	"github.com/smallbiznis/shelfpay/internal/order/repository"
	"github.com/smallbiznis/shelfpay/pkg/errs"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	buyerID   snowflake.ID = 11
	sellerID  snowflake.ID = 12
	productID snowflake.ID = 13
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	conn := ledgertest.NewDB(t)
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}).(*Service)
	return svc, conn
}

func TestTransitionAppliesLegalEdge(t *testing.T) {
	svc, conn := newTestService(t)
	ledgertest.SeedOrder(t, conn, ledgertest.OrderSeed{ID: 1, BuyerID: buyerID, SellerID: sellerID, ProductID: productID, Amount: 1999, Status: "PENDING"})

	res, err := svc.Transition(context.Background(), nil, 1, domain.StatusCompleted)
	require.NoError(t, err)
	require.True(t, res.Applied)
	require.Equal(t, domain.StatusPending, res.From)
	require.Equal(t, "COMPLETED", ledgertest.OrderStatus(t, conn, 1))
}

func TestTransitionSelfIsNoop(t *testing.T) {
	svc, conn := newTestService(t)
	ledgertest.SeedOrder(t, conn, ledgertest.OrderSeed{ID: 1, BuyerID: buyerID, SellerID: sellerID, ProductID: productID, Amount: 1999, Status: "COMPLETED"})

	res, err := svc.Transition(context.Background(), nil, 1, domain.StatusCompleted)
	require.NoError(t, err)
	require.False(t, res.Applied)
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	svc, conn := newTestService(t)
	ledgertest.SeedOrder(t, conn, ledgertest.OrderSeed{ID: 1, BuyerID: buyerID, SellerID: sellerID, ProductID: productID, Amount: 1999, Status: "FAILED"})

	_, err := svc.Transition(context.Background(), nil, 1, domain.StatusCompleted)
	require.ErrorIs(t, err, domain.ErrInvalidTransition)
	require.ErrorIs(t, err, errs.ErrIntegrityViolation)
	require.Equal(t, "FAILED", ledgertest.OrderStatus(t, conn, 1))
}

func TestTransitionMissingOrder(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Transition(context.Background(), nil, 404, domain.StatusCompleted)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestGetRestrictsToParticipants(t *testing.T) {
	svc, conn := newTestService(t)
	ledgertest.SeedOrder(t, conn, ledgertest.OrderSeed{ID: 1, BuyerID: buyerID, SellerID: sellerID, ProductID: productID, Amount: 1999, Status: "PENDING"})

	order, err := svc.Get(context.Background(), 1, buyerID)
	require.NoError(t, err)
	require.Equal(t, int64(1999), order.Amount)

	_, err = svc.Get(context.Background(), 1, sellerID)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), 1, 999)
	require.ErrorIs(t, err, errs.ErrAuthorizationDenied)
}

// The persisted status always matches a model that only follows legal edges,
// and every rejected request is an integrity violation.
func TestTransitionPropertyAgainstStore(t *testing.T) {
	svc, conn := newTestService(t)
	statuses := []domain.Status{domain.StatusPending, domain.StatusCompleted, domain.StatusFailed, domain.StatusRefunded}
	var nextID int64 = 100

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 40
	properties := gopter.NewProperties(parameters)

	properties.Property("store follows the order graph", prop.ForAll(
		func(requests []int) bool {
			nextID++
			id := snowflake.ID(nextID)
			ledgertest.SeedOrder(t, conn, ledgertest.OrderSeed{ID: id, BuyerID: buyerID, SellerID: sellerID, ProductID: productID, Amount: 500, Status: "PENDING"})

			model := domain.StatusPending
			for _, r := range requests {
				to := statuses[r]
				_, err := svc.Transition(context.Background(), nil, id, to)
				switch {
				case to == model:
					if err != nil {
						return false
					}
				case domain.CanTransition(model, to):
					if err != nil {
						return false
					}
					model = to
				default:
					if !errors.Is(err, errs.ErrIntegrityViolation) {
						return false
					}
				}
			}
			return ledgertest.OrderStatus(t, conn, id) == string(model)
		},
		gen.SliceOfN(6, gen.IntRange(0, len(statuses)-1)),
	))

	properties.TestingRun(t)
}
