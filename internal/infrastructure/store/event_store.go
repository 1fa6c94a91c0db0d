package store

import (
	"encoding/json"
	"time"
)

// Event is a domain event recorded in the outbox alongside the state change
// that produced it.
type Event struct {
	ID            string          `json:"id"`
	Sequence      int64           `json:"sequence"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	Data          json.RawMessage `json:"data"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	PublishedAt   *time.Time      `json:"-"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}
