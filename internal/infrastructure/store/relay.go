package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Publisher hands an event to the message broker.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

// Relay moves events from the outbox to a Publisher in append order.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	batchSize int
	now       func() time.Time
	logger    *slog.Logger
}

func NewRelay(outbox Outbox, publisher Publisher, batchSize int, logger *slog.Logger) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		outbox:    outbox,
		publisher: publisher,
		batchSize: batchSize,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With("component", "outbox-relay"),
	}
}

// Flush publishes one batch of pending events. It stops at the first publish
// failure so later events never overtake an earlier one; everything published
// before the failure is still marked.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	pending, err := r.outbox.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending events: %w", err)
	}

	published := make([]string, 0, len(pending))
	var publishErr error
	for _, e := range pending {
		if err := r.publisher.Publish(ctx, e.AggregateID, e); err != nil {
			publishErr = fmt.Errorf("publish event %s: %w", e.ID, err)
			break
		}
		published = append(published, e.ID)
	}

	if len(published) > 0 {
		if err := r.outbox.MarkPublished(ctx, published, r.now()); err != nil {
			return 0, fmt.Errorf("mark events published: %w", err)
		}
	}
	return len(published), publishErr
}

// Run flushes the outbox every interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
			n, err := r.Flush(ctx)
			if err != nil && ctx.Err() == nil {
				r.logger.Warn("outbox flush failed", "published", n, "error", err)
				continue
			}
			if n > 0 {
				r.logger.Debug("outbox flushed", "published", n)
			}
		}
	}
}
