package domain

import "github.com/smallbiznis/shelfpay/pkg/errs"

var (
	ErrProductNotFound  = errs.Wrap(errs.ErrNotFound, "product_not_found")
	ErrUserNotFound     = errs.Wrap(errs.ErrNotFound, "user_not_found")
	ErrSellerNotPayable = errs.Wrap(errs.ErrNotFound, "seller_not_payable")
	ErrAccountNotLinked = errs.Wrap(errs.ErrNotFound, "account_not_linked")
)
