// Package api exposes the account, stock and booking services over HTTP.
package api

import (
	"context"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"github.com/example/gas-agency/internal/domain/account"
	"github.com/example/gas-agency/internal/domain/booking"
	"github.com/example/gas-agency/internal/domain/stock"
	"github.com/example/gas-agency/internal/infrastructure/cache"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call into. StockCache and
// Idempotency are optional.
type Deps struct {
	Accounts    *account.Service
	Ledger      *stock.Ledger
	Bookings    *booking.Workflow
	StockCache  *cache.StockCache
	Idempotency *cache.IdempotencyStore
	Store       Pinger
	Logger      *slog.Logger
}

type Handlers struct {
	accounts    *account.Service
	ledger      *stock.Ledger
	bookings    *booking.Workflow
	stockCache  *cache.StockCache
	idempotency *cache.IdempotencyStore
	store       Pinger
	validate    *validator.Validate
	logger      *slog.Logger
}

func NewHandlers(deps Deps) *Handlers {
	return &Handlers{
		accounts:    deps.Accounts,
		ledger:      deps.Ledger,
		bookings:    deps.Bookings,
		stockCache:  deps.StockCache,
		idempotency: deps.Idempotency,
		store:       deps.Store,
		validate:    newValidator(),
		logger:      deps.Logger.With("component", "api"),
	}
}
