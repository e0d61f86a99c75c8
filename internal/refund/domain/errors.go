package domain

import "github.com/smallbiznis/shelfpay/pkg/errs"

var (
	ErrNotBuyer             = errs.Wrap(errs.ErrAuthorizationDenied, "refund_requester_not_buyer")
	ErrRefundWindowClosed   = errs.Wrap(errs.ErrAuthorizationDenied, "refund_window_closed")
	ErrPaymentIntentMissing = errs.Wrap(errs.ErrNotFound, "payment_intent_not_found")
	ErrRefundNotFound       = errs.Wrap(errs.ErrNotFound, "refund_not_found")
)
