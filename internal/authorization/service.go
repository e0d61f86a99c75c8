package authorization

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/shelfpay/pkg/errs"
)

var (
	ErrForbidden     = errs.Wrap(errs.ErrAuthorizationDenied, "forbidden")
	ErrInvalidActor  = errs.Wrap(errs.ErrAuthentication, "invalid_actor")
	ErrInvalidObject = errs.Wrap(errs.ErrInvalidRequest, "invalid_object")
	ErrInvalidAction = errs.Wrap(errs.ErrInvalidRequest, "invalid_action")
)

type Service interface {
	// Authorize returns nil when the user may perform action on object.
	Authorize(ctx context.Context, userID snowflake.ID, object string, action string) error
}
