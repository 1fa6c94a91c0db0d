package store

import (
	"context"
	"time"
)

// Transactor runs fn in a single unit of work. Repository calls made with the
// ctx passed to fn join that unit; if fn returns an error nothing it did is kept.
// Nested calls join the outer unit.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// EventLog appends domain events. Append joins the caller's transaction.
type EventLog interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*Event, error)
	Events(ctx context.Context, aggregateID string) ([]Event, error)
}

// Outbox exposes the events not yet handed to the message broker.
type Outbox interface {
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}
