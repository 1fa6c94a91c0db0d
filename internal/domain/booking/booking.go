// Package booking runs the cylinder booking state machine.
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/example/gas-agency/internal/domain/errs"
)

const AggregateType = "Booking"

// RejectReasonInsufficientStock is recorded when approval finds too few cylinders.
const RejectReasonInsufficientStock = "insufficient stock"

type Status string

const (
	StatusRequested Status = "requested"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusDelivered Status = "delivered"
	StatusCancelled Status = "cancelled"
)

var (
	ErrBookingNotFound   = errs.New(errs.CategoryNotFound, "booking_not_found", "booking not found")
	ErrInvalidQuantity   = errs.New(errs.CategoryWorkflow, "invalid_quantity", "quantity must be positive")
	ErrInvalidTransition = errs.New(errs.CategoryWorkflow, "invalid_transition", "invalid booking status transition")
	ErrInvalidStatus     = errs.New(errs.CategoryWorkflow, "invalid_status", "unknown booking status")
)

// validTransitions defines allowed state transitions
var validTransitions = map[Status][]Status{
	StatusRequested: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:  {StatusDelivered, StatusCancelled},
	StatusRejected:  {}, // terminal state
	StatusDelivered: {}, // terminal state
	StatusCancelled: {}, // terminal state
}

// ParseStatus validates a status received from outside.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := validTransitions[st]; !ok {
		return "", ErrInvalidStatus
	}
	return st, nil
}

func (s Status) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

type Booking struct {
	ID        string     `json:"id"`
	AccountID string     `json:"account_id"`
	AgencyID  string     `json:"agency_id"`
	Quantity  int        `json:"quantity"`
	Status    Status     `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// CanTransitionTo checks if the booking can transition to the target status
func (b *Booking) CanTransitionTo(target Status) bool {
	for _, s := range validTransitions[b.Status] {
		if s == target {
			return true
		}
	}
	return false
}

func (b *Booking) transitionError(target Status) error {
	return fmt.Errorf("%w: cannot transition from %s to %s", ErrInvalidTransition, b.Status, target)
}

// Repository persists bookings. GetForUpdate locks the row until the
// surrounding transaction ends. Lookups report ErrBookingNotFound.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	Get(ctx context.Context, id string) (*Booking, error)
	GetForUpdate(ctx context.Context, id string) (*Booking, error)
	Update(ctx context.Context, b *Booking) error
	ListByAccount(ctx context.Context, accountID string) ([]Booking, error)
	ListByStatus(ctx context.Context, status Status) ([]Booking, error)
}
