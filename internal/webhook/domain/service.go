package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/shelfpay/internal/gateway/domain"
	"github.com/smallbiznis/shelfpay/pkg/db/pagination"
	"github.com/smallbiznis/shelfpay/pkg/errs"
)

var (
	ErrEventNotFound    = errs.Wrap(errs.ErrNotFound, "webhook_event_not_found")
	ErrEventResolved    = errs.Wrap(errs.ErrConflict, "webhook_event_resolved")
	ErrEventInFlight    = errs.Wrap(errs.ErrConflict, "webhook_event_in_flight")
	ErrInvalidPageToken = errs.Wrap(errs.ErrInvalidRequest, "invalid_page_token")
)

// Dispatcher applies a verified event to the ledger.
type Dispatcher interface {
	Dispatch(ctx context.Context, event *gatewaydomain.Event) error
}

type ListUnresolvedRequest struct {
	pagination.Pagination
}

type ListUnresolvedResponse struct {
	pagination.PageInfo
	Events []Event `json:"events"`
	Total  int64   `json:"total"`
}

type Service interface {
	// Receive verifies, deduplicates, and applies one delivery. Duplicates
	// return nil.
	Receive(ctx context.Context, payload []byte, signatureHeader string) error
	// Replay re-runs a stored event that was left unresolved.
	Replay(ctx context.Context, eventID string, operatorID snowflake.ID) (*Event, error)
	ListUnresolved(ctx context.Context, req ListUnresolvedRequest) (ListUnresolvedResponse, error)
}
