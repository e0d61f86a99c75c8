// Package reconcile applies verified gateway events to the local ledger.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/bwmarrin/snowflake"
	gatewaydomain "github.com/smallbiznis/shelfpay/internal/gateway/domain"
	orderdomain "github.com/smallbiznis/shelfpay/internal/order/domain"
	"github.com/smallbiznis/shelfpay/pkg/errs"
)

var ErrMissingOrderMetadata = errs.Wrap(errs.ErrIntegrityViolation, "missing_order_metadata")

// HandlerFunc applies one event. Handlers must be safe to run more than
// once for the same event.
type HandlerFunc func(ctx context.Context, ev *gatewaydomain.Event) error

// Registry routes events by type. Types without a handler go to the
// fallback, which must not mutate the ledger.
type Registry struct {
	handlers map[string]HandlerFunc
	fallback HandlerFunc
}

func NewRegistry(fallback HandlerFunc) *Registry {
	if fallback == nil {
		fallback = func(context.Context, *gatewaydomain.Event) error { return nil }
	}
	return &Registry{handlers: make(map[string]HandlerFunc), fallback: fallback}
}

func (r *Registry) Register(eventType string, h HandlerFunc) {
	if _, exists := r.handlers[eventType]; exists {
		panic(fmt.Sprintf("reconcile: duplicate handler for %s", eventType))
	}
	r.handlers[eventType] = h
}

func (r *Registry) Dispatch(ctx context.Context, ev *gatewaydomain.Event) error {
	if h, ok := r.handlers[ev.Type]; ok {
		return h(ctx, ev)
	}
	return r.fallback(ctx, ev)
}

func (r *Registry) Handles(eventType string) bool {
	_, ok := r.handlers[eventType]
	return ok
}

// Types lists registered event types in order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// IsRetryable reports whether a handler failure may succeed on redelivery:
// the event references an order this node has not committed yet.
func IsRetryable(err error) bool {
	return errors.Is(err, orderdomain.ErrOrderNotFound)
}

func orderIDFromMetadata(metadata map[string]string) (snowflake.ID, error) {
	raw, ok := metadata["order_id"]
	if !ok || raw == "" {
		return 0, fmt.Errorf("%w: order_id absent", ErrMissingOrderMetadata)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: order_id %q is not an id", ErrMissingOrderMetadata, raw)
	}
	return snowflake.ID(id), nil
}
