package domain

import "github.com/smallbiznis/shelfpay/pkg/errs"

var (
	ErrInvalidAmount       = errs.Wrap(errs.ErrInvalidRequest, "invalid_payout_amount")
	ErrPayoutNotFound      = errs.Wrap(errs.ErrNotFound, "payout_not_found")
	ErrInsufficientBalance = errs.Wrap(errs.ErrInsufficientFunds, "insufficient_balance")
	ErrNotCancelable       = errs.Wrap(errs.ErrConflict, "payout_not_cancelable")
)
