package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapMatchesClassAndSentinel(t *testing.T) {
	errOrderNotFound := Wrap(ErrNotFound, "order_not_found")
	wrapped := fmt.Errorf("load order: %w", errOrderNotFound)

	assert.ErrorIs(t, wrapped, errOrderNotFound)
	assert.ErrorIs(t, wrapped, ErrNotFound)
	assert.NotErrorIs(t, wrapped, ErrConflict)
	assert.Equal(t, "order_not_found", errOrderNotFound.Error())
}

func TestGatewayError(t *testing.T) {
	err := NewGatewayError("checkout_session.create", errors.New("card_declined"))
	assert.ErrorIs(t, err, ErrGateway)
	assert.False(t, IsAmbiguous(err))
	assert.Contains(t, err.Error(), "checkout_session.create")

	timeout := NewAmbiguousGatewayError("refund.create", context.DeadlineExceeded)
	assert.ErrorIs(t, timeout, ErrGateway)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)
	assert.True(t, IsAmbiguous(fmt.Errorf("refund: %w", timeout)))
}

func TestClass(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "not_found", err: Wrap(ErrNotFound, "product_not_found"), want: ErrNotFound},
		{name: "gateway", err: NewGatewayError("payout.create", nil), want: ErrGateway},
		{name: "integrity", err: Wrap(ErrIntegrityViolation, "invalid_transition"), want: ErrIntegrityViolation},
		{name: "unknown", err: errors.New("boom"), want: nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Class(tc.err))
		})
	}
}

func TestCode(t *testing.T) {
	errRefundWindow := Wrap(ErrAuthorizationDenied, "refund_window_closed")
	assert.Equal(t, "refund_window_closed", Code(fmt.Errorf("order 7: %w", errRefundWindow)))
	assert.Equal(t, "", Code(errors.New("boom")))
	assert.Equal(t, "", Code(NewGatewayError("refund.create", nil)))
}
