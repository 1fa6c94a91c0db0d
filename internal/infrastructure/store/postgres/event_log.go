package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/example/gas-agency/internal/infrastructure/store"
)

const eventColumns = `seq, id, aggregate_id, aggregate_type, event_type, data, version, created_at, published_at`

// EventLog stores events in the events table, which doubles as the outbox.
type EventLog struct {
	db  *DB
	now func() time.Time
}

func NewEventLog(db *DB) *EventLog {
	return &EventLog{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Append stores an event. The version is derived from the aggregate's
// latest event, so callers hold a lock on the aggregate row.
func (l *EventLog) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	q := l.db.conn(ctx)

	var currentVersion int
	err = q.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM events WHERE aggregate_id = $1",
		aggregateID,
	).Scan(&currentVersion)
	if err != nil {
		return nil, fmt.Errorf("read event version: %w", err)
	}

	event := store.Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Timestamp:     l.now(),
		Version:       currentVersion + 1,
	}

	err = q.QueryRowContext(ctx,
		`INSERT INTO events (id, aggregate_id, aggregate_type, event_type, data, version, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING seq`,
		event.ID,
		event.AggregateID,
		event.AggregateType,
		event.EventType,
		[]byte(event.Data),
		event.Version,
		event.Timestamp,
	).Scan(&event.Sequence)
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	return &event, nil
}

// Events returns all events for an aggregate in version order.
func (l *EventLog) Events(ctx context.Context, aggregateID string) ([]store.Event, error) {
	rows, err := l.db.conn(ctx).QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE aggregate_id = $1 ORDER BY version ASC`,
		aggregateID,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// Pending returns unpublished events in append order.
func (l *EventLog) Pending(ctx context.Context, limit int) ([]store.Event, error) {
	rows, err := l.db.conn(ctx).QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE published_at IS NULL ORDER BY seq ASC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func (l *EventLog) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := l.db.conn(ctx).ExecContext(ctx,
		`UPDATE events SET published_at = $1 WHERE id = ANY($2::uuid[]) AND published_at IS NULL`,
		at, pq.Array(ids),
	)
	return err
}

func scanEvents(rows *sql.Rows) ([]store.Event, error) {
	defer rows.Close()

	var events []store.Event
	for rows.Next() {
		var (
			e         store.Event
			data      []byte
			published sql.NullTime
		)
		if err := rows.Scan(&e.Sequence, &e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &data, &e.Version, &e.Timestamp, &published); err != nil {
			return nil, err
		}
		e.Data = data
		e.Timestamp = e.Timestamp.UTC()
		e.PublishedAt = timePtr(published)
		events = append(events, e)
	}
	return events, rows.Err()
}

var (
	_ store.EventLog = (*EventLog)(nil)
	_ store.Outbox   = (*EventLog)(nil)
)
