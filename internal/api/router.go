package api

import (
	"log/slog"
	"net/http"

	"github.com/example/gas-agency/internal/api/middleware"
	"github.com/example/gas-agency/internal/domain/account"
)

// NewRouter wires every route and wraps the mux in the shared middleware
// chain.
func NewRouter(h *Handlers, logger *slog.Logger, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	session := middleware.RequireSession(h.accounts)
	authed := func(fn http.HandlerFunc) http.Handler {
		return session(fn)
	}
	requires := func(c account.Capability, fn http.HandlerFunc) http.Handler {
		return session(middleware.RequireCapability(c)(fn))
	}

	mux.HandleFunc("GET /health", h.Health)

	// Auth
	mux.HandleFunc("POST /api/auth/register", h.Register)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("POST /api/auth/refresh", h.Refresh)
	mux.Handle("POST /api/auth/logout", authed(h.Logout))
	mux.Handle("GET /api/auth/me", authed(h.Me))
	mux.Handle("POST /api/auth/password", authed(h.ChangePassword))

	// Accounts
	mux.Handle("POST /api/accounts/staff", requires(account.CapManageAccounts, h.RegisterStaff))
	mux.Handle("POST /api/accounts/{id}/deactivate", requires(account.CapManageAccounts, h.DeactivateAccount))
	mux.Handle("POST /api/accounts/{id}/activate", requires(account.CapManageAccounts, h.ActivateAccount))

	// Bookings
	mux.Handle("POST /api/bookings", authed(h.CreateBooking))
	mux.Handle("GET /api/bookings", authed(h.ListBookings))
	mux.Handle("GET /api/bookings/{id}", authed(h.GetBooking))
	mux.Handle("POST /api/bookings/{id}/approve", requires(account.CapApproveBooking, h.ApproveBooking))
	mux.Handle("POST /api/bookings/{id}/cancel", authed(h.CancelBooking))
	mux.Handle("POST /api/bookings/{id}/deliver", requires(account.CapDeliverBooking, h.DeliverBooking))

	// Agencies
	mux.Handle("GET /api/agencies", requires(account.CapManageStock, h.ListAgencies))
	mux.Handle("POST /api/agencies", requires(account.CapManageStock, h.ProvisionAgency))
	mux.HandleFunc("GET /api/agencies/{id}/stock", h.GetStock)
	mux.Handle("POST /api/agencies/{id}/restock", requires(account.CapManageStock, h.Restock))
	mux.Handle("GET /api/agencies/{id}/movements", requires(account.CapManageStock, h.StockMovements))

	mux.HandleFunc("/", NotFound)

	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.RequestLogger(logger),
		middleware.Recover(logger),
		middleware.SecurityHeaders,
		middleware.CORS(allowedOrigins),
	)
}
