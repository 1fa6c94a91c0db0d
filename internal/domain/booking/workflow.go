package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/example/gas-agency/internal/clock"
	"github.com/example/gas-agency/internal/domain/stock"
	"github.com/example/gas-agency/internal/infrastructure/store"
)

// StockLedger is the part of the stock service the workflow drives.
type StockLedger interface {
	Get(ctx context.Context, agencyID string) (*stock.Record, error)
	Reserve(ctx context.Context, agencyID string, quantity int) (*stock.Record, error)
	Release(ctx context.Context, agencyID string, quantity int) (*stock.Record, error)
}

// Workflow moves bookings through their lifecycle. Each transition locks the
// booking, touches stock and appends its event in one transaction.
type Workflow struct {
	tx     store.Transactor
	repo   Repository
	ledger StockLedger
	events store.EventLog
	clock  clock.Clock
	logger *slog.Logger
}

func NewWorkflow(tx store.Transactor, repo Repository, ledger StockLedger, events store.EventLog, clk clock.Clock, logger *slog.Logger) *Workflow {
	return &Workflow{
		tx:     tx,
		repo:   repo,
		ledger: ledger,
		events: events,
		clock:  clk,
		logger: logger.With("component", "booking"),
	}
}

// Create records a new booking request. Stock is not touched until approval.
func (w *Workflow) Create(ctx context.Context, accountID, agencyID string, quantity int) (*Booking, error) {
	if !stock.ValidQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}
	agencyID = strings.TrimSpace(agencyID)
	if _, err := w.ledger.Get(ctx, agencyID); err != nil {
		return nil, err
	}

	now := w.clock.Now()
	b := &Booking{
		ID:        uuid.New().String(),
		AccountID: accountID,
		AgencyID:  agencyID,
		Quantity:  quantity,
		Status:    StatusRequested,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := w.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := w.repo.Create(ctx, b); err != nil {
			return err
		}
		_, err := w.events.Append(ctx, b.ID, AggregateType, EventBookingRequested, BookingRequested{
			BookingID:   b.ID,
			AccountID:   b.AccountID,
			AgencyID:    b.AgencyID,
			Quantity:    b.Quantity,
			RequestedAt: now,
		})
		if err != nil {
			return fmt.Errorf("append %s: %w", EventBookingRequested, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("booking requested", "booking_id", b.ID, "agency_id", b.AgencyID, "quantity", b.Quantity)
	return b, nil
}

// Approve reserves stock for a requested booking. When the agency is short the
// booking is rejected instead and the call still succeeds.
func (w *Workflow) Approve(ctx context.Context, id string) (*Booking, error) {
	var result *Booking
	err := w.tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := w.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !b.CanTransitionTo(StatusApproved) {
			return b.transitionError(StatusApproved)
		}

		now := w.clock.Now()
		_, err = w.ledger.Reserve(ctx, b.AgencyID, b.Quantity)
		switch {
		case err == nil:
			b.Status = StatusApproved
			b.Reason = ""
		case errors.Is(err, stock.ErrInsufficientStock):
			b.Status = StatusRejected
			b.Reason = RejectReasonInsufficientStock
		default:
			return err
		}
		b.DecidedAt = &now
		b.UpdatedAt = now

		if err := w.repo.Update(ctx, b); err != nil {
			return err
		}

		var eventType string
		var data any
		if b.Status == StatusApproved {
			eventType = EventBookingApproved
			data = BookingApproved{
				BookingID:  b.ID,
				AccountID:  b.AccountID,
				AgencyID:   b.AgencyID,
				Quantity:   b.Quantity,
				ApprovedAt: now,
			}
		} else {
			eventType = EventBookingRejected
			data = BookingRejected{
				BookingID:  b.ID,
				AccountID:  b.AccountID,
				AgencyID:   b.AgencyID,
				Quantity:   b.Quantity,
				Reason:     b.Reason,
				RejectedAt: now,
			}
		}
		if _, err := w.events.Append(ctx, b.ID, AggregateType, eventType, data); err != nil {
			return fmt.Errorf("append %s: %w", eventType, err)
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("booking decided", "booking_id", result.ID, "status", result.Status)
	return result, nil
}

// Cancel withdraws a requested or approved booking. Approved units go back to
// the agency; if they no longer fit under capacity the cancel fails as a whole.
func (w *Workflow) Cancel(ctx context.Context, id, reason string) (*Booking, error) {
	var result *Booking
	err := w.tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := w.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !b.CanTransitionTo(StatusCancelled) {
			return b.transitionError(StatusCancelled)
		}

		restocked := false
		if b.Status == StatusApproved {
			if _, err := w.ledger.Release(ctx, b.AgencyID, b.Quantity); err != nil {
				return err
			}
			restocked = true
		}

		now := w.clock.Now()
		b.Status = StatusCancelled
		b.Reason = strings.TrimSpace(reason)
		b.UpdatedAt = now
		if err := w.repo.Update(ctx, b); err != nil {
			return err
		}

		_, err = w.events.Append(ctx, b.ID, AggregateType, EventBookingCancelled, BookingCancelled{
			BookingID:   b.ID,
			AccountID:   b.AccountID,
			AgencyID:    b.AgencyID,
			Quantity:    b.Quantity,
			Reason:      b.Reason,
			Restocked:   restocked,
			CancelledAt: now,
		})
		if err != nil {
			return fmt.Errorf("append %s: %w", EventBookingCancelled, err)
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("booking cancelled", "booking_id", result.ID)
	return result, nil
}

// MarkDelivered closes an approved booking.
func (w *Workflow) MarkDelivered(ctx context.Context, id string) (*Booking, error) {
	var result *Booking
	err := w.tx.WithTx(ctx, func(ctx context.Context) error {
		b, err := w.repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !b.CanTransitionTo(StatusDelivered) {
			return b.transitionError(StatusDelivered)
		}

		now := w.clock.Now()
		b.Status = StatusDelivered
		b.UpdatedAt = now
		if err := w.repo.Update(ctx, b); err != nil {
			return err
		}

		_, err = w.events.Append(ctx, b.ID, AggregateType, EventBookingDelivered, BookingDelivered{
			BookingID:   b.ID,
			AccountID:   b.AccountID,
			AgencyID:    b.AgencyID,
			Quantity:    b.Quantity,
			DeliveredAt: now,
		})
		if err != nil {
			return fmt.Errorf("append %s: %w", EventBookingDelivered, err)
		}
		result = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.Info("booking delivered", "booking_id", result.ID)
	return result, nil
}

func (w *Workflow) Get(ctx context.Context, id string) (*Booking, error) {
	return w.repo.Get(ctx, id)
}

func (w *Workflow) ListByAccount(ctx context.Context, accountID string) ([]Booking, error) {
	return w.repo.ListByAccount(ctx, accountID)
}

func (w *Workflow) ListByStatus(ctx context.Context, status Status) ([]Booking, error) {
	return w.repo.ListByStatus(ctx, status)
}
