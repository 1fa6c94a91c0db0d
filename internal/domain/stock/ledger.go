// Package stock tracks the cylinders each agency holds.
//
// A Record never leaves 0 <= Available <= Capacity. Reserve and Restock are
// applied by the repository as single conditional updates, so concurrent
// callers cannot drive a record out of bounds.
package stock

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/example/gas-agency/internal/clock"
	"github.com/example/gas-agency/internal/domain/errs"
	"github.com/example/gas-agency/internal/infrastructure/store"
)

const AggregateType = "Stock"

// MaxQuantity bounds every stock count and quantity so it fits the INTEGER
// columns of the relational store.
const MaxQuantity = math.MaxInt32

var (
	ErrAgencyNotFound    = errs.New(errs.CategoryNotFound, "agency_not_found", "agency not found")
	ErrAgencyExists      = errs.New(errs.CategoryStock, "agency_exists", "agency already has a stock record")
	ErrInvalidAgency     = errs.New(errs.CategoryStock, "invalid_agency", "agency id is required")
	ErrInsufficientStock = errs.New(errs.CategoryStock, "insufficient_stock", "insufficient stock")
	ErrCapacityExceeded  = errs.New(errs.CategoryStock, "capacity_exceeded", "restock would exceed capacity")
	ErrInvalidCapacity   = errs.New(errs.CategoryStock, "invalid_capacity", "capacity must be positive and at least the available count")
	ErrInvalidQuantity   = errs.New(errs.CategoryStock, "invalid_stock_quantity", "quantity must be positive")
)

type Record struct {
	AgencyID  string    `json:"agency_id"`
	Name      string    `json:"name"`
	Available int       `json:"available"`
	Capacity  int       `json:"capacity"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate reports whether the record respects its bounds.
func (r *Record) Validate() error {
	if strings.TrimSpace(r.AgencyID) == "" {
		return ErrInvalidAgency
	}
	if r.Capacity <= 0 || r.Capacity > MaxQuantity || r.Available > r.Capacity {
		return ErrInvalidCapacity
	}
	if r.Available < 0 {
		return ErrInvalidQuantity
	}
	return nil
}

// ValidQuantity reports whether q is a positive count the ledger can store.
func ValidQuantity(q int) bool {
	return q > 0 && q <= MaxQuantity
}

// Repository persists stock records. Reserve and Restock must be atomic with
// respect to every other call on the same agency and must report
// ErrAgencyNotFound, ErrInsufficientStock or ErrCapacityExceeded without
// changing anything.
type Repository interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, agencyID string) (*Record, error)
	List(ctx context.Context) ([]Record, error)
	Reserve(ctx context.Context, agencyID string, quantity int, at time.Time) (*Record, error)
	Restock(ctx context.Context, agencyID string, quantity int, at time.Time) (*Record, error)
}

// Ledger is the stock service. Mutations append an event in the same
// transaction as the counter change.
type Ledger struct {
	tx     store.Transactor
	repo   Repository
	events store.EventLog
	clock  clock.Clock
	logger *slog.Logger
}

func NewLedger(tx store.Transactor, repo Repository, events store.EventLog, clk clock.Clock, logger *slog.Logger) *Ledger {
	return &Ledger{
		tx:     tx,
		repo:   repo,
		events: events,
		clock:  clk,
		logger: logger.With("component", "stock"),
	}
}

type ProvisionInput struct {
	AgencyID  string
	Name      string
	Capacity  int
	Available int
}

// Provision creates the stock record for a new agency.
func (l *Ledger) Provision(ctx context.Context, in ProvisionInput) (*Record, error) {
	now := l.clock.Now()
	rec := &Record{
		AgencyID:  strings.TrimSpace(in.AgencyID),
		Name:      strings.TrimSpace(in.Name),
		Available: in.Available,
		Capacity:  in.Capacity,
		Version:   1,
		UpdatedAt: now,
	}
	if rec.Name == "" {
		rec.Name = rec.AgencyID
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := l.repo.Create(ctx, rec); err != nil {
			return err
		}
		_, err := l.events.Append(ctx, rec.AgencyID, AggregateType, EventStockProvisioned, StockProvisioned{
			AgencyID:      rec.AgencyID,
			Name:          rec.Name,
			Capacity:      rec.Capacity,
			Available:     rec.Available,
			ProvisionedAt: now,
		})
		if err != nil {
			return fmt.Errorf("append %s: %w", EventStockProvisioned, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("stock provisioned", "agency_id", rec.AgencyID, "capacity", rec.Capacity, "available", rec.Available)
	return rec, nil
}

func (l *Ledger) Get(ctx context.Context, agencyID string) (*Record, error) {
	return l.repo.Get(ctx, agencyID)
}

// GetAvailable returns the number of cylinders the agency can still hand out.
func (l *Ledger) GetAvailable(ctx context.Context, agencyID string) (int, error) {
	rec, err := l.repo.Get(ctx, agencyID)
	if err != nil {
		return 0, err
	}
	return rec.Available, nil
}

func (l *Ledger) List(ctx context.Context) ([]Record, error) {
	return l.repo.List(ctx)
}

// Reserve takes quantity units out of the agency's available stock. It joins
// the caller's transaction when there is one.
func (l *Ledger) Reserve(ctx context.Context, agencyID string, quantity int) (*Record, error) {
	if !ValidQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}

	var rec *Record
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		now := l.clock.Now()
		r, err := l.repo.Reserve(ctx, agencyID, quantity, now)
		if err != nil {
			return err
		}
		_, err = l.events.Append(ctx, agencyID, AggregateType, EventStockReserved, StockReserved{
			AgencyID:   agencyID,
			Quantity:   quantity,
			Available:  r.Available,
			ReservedAt: now,
		})
		if err != nil {
			return fmt.Errorf("append %s: %w", EventStockReserved, err)
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("stock reserved", "agency_id", agencyID, "quantity", quantity, "available", rec.Available)
	return rec, nil
}

// Restock returns quantity units to the agency, refusing to pass capacity.
func (l *Ledger) Restock(ctx context.Context, agencyID string, quantity int) (*Record, error) {
	return l.putBack(ctx, agencyID, quantity, EventStockRestocked)
}

// Release is Restock for units handed back by a cancelled booking. It appends
// StockReleased instead of StockRestocked.
func (l *Ledger) Release(ctx context.Context, agencyID string, quantity int) (*Record, error) {
	return l.putBack(ctx, agencyID, quantity, EventStockReleased)
}

func (l *Ledger) putBack(ctx context.Context, agencyID string, quantity int, eventType string) (*Record, error) {
	if !ValidQuantity(quantity) {
		return nil, ErrInvalidQuantity
	}

	var rec *Record
	err := l.tx.WithTx(ctx, func(ctx context.Context) error {
		now := l.clock.Now()
		r, err := l.repo.Restock(ctx, agencyID, quantity, now)
		if err != nil {
			return err
		}
		var data any = StockRestocked{
			AgencyID:    agencyID,
			Quantity:    quantity,
			Available:   r.Available,
			RestockedAt: now,
		}
		if eventType == EventStockReleased {
			data = StockReleased{
				AgencyID:   agencyID,
				Quantity:   quantity,
				Available:  r.Available,
				ReleasedAt: now,
			}
		}
		if _, err := l.events.Append(ctx, agencyID, AggregateType, eventType, data); err != nil {
			return fmt.Errorf("append %s: %w", eventType, err)
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("stock returned", "agency_id", agencyID, "event", eventType, "quantity", quantity, "available", rec.Available)
	return rec, nil
}
