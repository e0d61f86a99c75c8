package domain

import "github.com/smallbiznis/shelfpay/pkg/errs"

var (
	ErrOrderNotFound     = errs.Wrap(errs.ErrNotFound, "order_not_found")
	ErrInvalidTransition = errs.Wrap(errs.ErrIntegrityViolation, "invalid_transition")
	ErrAlreadyPurchased  = errs.Wrap(errs.ErrConflict, "already_purchased")
	ErrSessionAttached   = errs.Wrap(errs.ErrIntegrityViolation, "checkout_session_already_attached")
	ErrNotParticipant    = errs.Wrap(errs.ErrAuthorizationDenied, "not_order_participant")
)
