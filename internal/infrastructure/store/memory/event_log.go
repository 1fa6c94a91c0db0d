package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/example/gas-agency/internal/infrastructure/store"
)

// EventLog keeps events in append order and doubles as the outbox.
type EventLog struct {
	db  *DB
	now func() time.Time
}

func NewEventLog(db *DB) *EventLog {
	return &EventLog{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (l *EventLog) Append(ctx context.Context, aggregateID, aggregateType, eventType string, data any) (*store.Event, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var event store.Event
	err = l.db.run(ctx, func(st *state) error {
		version := st.versions[aggregateID] + 1
		event = store.Event{
			ID:            uuid.New().String(),
			Sequence:      int64(len(st.events) + 1),
			AggregateID:   aggregateID,
			AggregateType: aggregateType,
			EventType:     eventType,
			Data:          jsonData,
			Timestamp:     l.now(),
			Version:       version,
		}
		st.versions[aggregateID] = version
		st.events = append(st.events, event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (l *EventLog) Events(ctx context.Context, aggregateID string) ([]store.Event, error) {
	var out []store.Event
	err := l.db.run(ctx, func(st *state) error {
		for _, e := range st.events {
			if e.AggregateID == aggregateID {
				out = append(out, e)
			}
		}
		return nil
	})
	return out, err
}

// All returns every recorded event in append order.
func (l *EventLog) All(ctx context.Context) ([]store.Event, error) {
	var out []store.Event
	err := l.db.run(ctx, func(st *state) error {
		out = append(out, st.events...)
		return nil
	})
	return out, err
}

func (l *EventLog) Pending(ctx context.Context, limit int) ([]store.Event, error) {
	var out []store.Event
	err := l.db.run(ctx, func(st *state) error {
		for _, e := range st.events {
			if e.PublishedAt != nil {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (l *EventLog) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	inTx := l.db.inTx(ctx)
	return l.db.run(ctx, func(st *state) error {
		for i := range st.events {
			if _, ok := want[st.events[i].ID]; ok && st.events[i].PublishedAt == nil {
				published := at
				st.events[i].PublishedAt = &published
				if inTx {
					st.published = append(st.published, i)
				}
			}
		}
		return nil
	})
}

var (
	_ store.EventLog = (*EventLog)(nil)
	_ store.Outbox   = (*EventLog)(nil)
)
