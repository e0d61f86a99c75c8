package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Event is the durable record of one gateway delivery, keyed by the
// gateway's event id. A row with Processed=false and Retryable=true waits
// for redelivery; a row with ProcessingError set failed permanently.
type Event struct {
	ID              string         `json:"id" gorm:"primaryKey"`
	EventType       string         `json:"event_type"`
	Payload         datatypes.JSON `json:"-"`
	Processed       bool           `json:"processed"`
	Retryable       bool           `json:"retryable"`
	Attempts        int            `json:"attempts"`
	ProcessingError *string        `json:"processing_error,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

func (Event) TableName() string { return "webhook_events" }

// Resolved reports whether nothing is left to do for the event.
func (e *Event) Resolved() bool {
	return e.Processed && e.ProcessingError == nil
}

type Cursor struct {
	ID        string
	CreatedAt time.Time
}

type ListFilter struct {
	Cursor *Cursor
	Limit  int
}
