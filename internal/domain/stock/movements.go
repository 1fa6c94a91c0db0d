package stock

import (
	"context"
	"fmt"
	"time"
)

// DateLayout is the calendar-day format used by movement reports.
const DateLayout = "2006-01-02"

// DailyMovements summarises one agency's stock over a calendar day.
// Opening + Provisioned + Restocked + Released - Reserved == Closing.
type DailyMovements struct {
	AgencyID    string `json:"agency_id"`
	Date        string `json:"date"`
	Opening     int    `json:"opening"`
	Provisioned int    `json:"provisioned"`
	Restocked   int    `json:"restocked"`
	Released    int    `json:"released"`
	Reserved    int    `json:"reserved"`
	Closing     int    `json:"closing"`
	Movements   int    `json:"movements"`
}

// movement is the subset shared by every stock event payload.
type movement struct {
	Quantity      int       `json:"quantity"`
	Available     int       `json:"available"`
	ProvisionedAt time.Time `json:"provisioned_at"`
	ReservedAt    time.Time `json:"reserved_at"`
	RestockedAt   time.Time `json:"restocked_at"`
	ReleasedAt    time.Time `json:"released_at"`
}

func (m movement) at() time.Time {
	for _, t := range []time.Time{m.ProvisionedAt, m.ReservedAt, m.RestockedAt, m.ReleasedAt} {
		if !t.IsZero() {
			return t
		}
	}
	return time.Time{}
}

// DailyMovements replays the agency's stock events for the calendar day
// containing day, in day's location. A zero day means today.
func (l *Ledger) DailyMovements(ctx context.Context, agencyID string, day time.Time) (*DailyMovements, error) {
	if _, err := l.repo.Get(ctx, agencyID); err != nil {
		return nil, err
	}
	if day.IsZero() {
		day = l.clock.Now()
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	events, err := l.events.Events(ctx, agencyID)
	if err != nil {
		return nil, fmt.Errorf("load stock events: %w", err)
	}

	report := &DailyMovements{AgencyID: agencyID, Date: start.Format(DateLayout)}
	for _, e := range events {
		var m movement
		if err := e.Decode(&m); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", e.EventType, e.ID, err)
		}
		at := m.at()
		if at.IsZero() {
			at = e.Timestamp
		}
		if !at.Before(end) {
			continue
		}
		if at.Before(start) {
			report.Opening = m.Available
			continue
		}

		switch e.EventType {
		case EventStockProvisioned:
			report.Provisioned += m.Available
		case EventStockRestocked:
			report.Restocked += m.Quantity
		case EventStockReleased:
			report.Released += m.Quantity
		case EventStockReserved:
			report.Reserved += m.Quantity
		default:
			continue
		}
		report.Movements++
	}
	report.Closing = report.Opening + report.Provisioned + report.Restocked + report.Released - report.Reserved
	return report, nil
}
