// Package events publishes ledger changes for downstream consumers.
// The ledger stays the source of truth; a lost event never rolls back a
// committed change.
package events

import (
	"context"
	"sync"
	"time"
)

const (
	TypeOrderCompleted = "order.completed"
	TypeOrderFailed    = "order.failed"
	TypeOrderRefunded  = "order.refunded"
	TypePayoutCreated  = "payout.created"
	TypePayoutCanceled = "payout.canceled"
	TypePayoutPaid     = "payout.paid"
	TypePayoutFailed   = "payout.failed"
)

type Event struct {
	Type       string         `json:"type"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }

// Noop discards every event.
func Noop() Publisher { return noopPublisher{} }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
