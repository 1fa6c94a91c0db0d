package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/gas-agency/internal/api/middleware"
	"github.com/example/gas-agency/internal/domain/account"
	"github.com/example/gas-agency/internal/domain/booking"
	"github.com/example/gas-agency/internal/infrastructure/cache"
)

const idempotencyHeader = "Idempotency-Key"

type CreateBookingRequest struct {
	AgencyID string `json:"agency_id" validate:"required,max=64"`
	Quantity int    `json:"quantity"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CreateBooking submits a booking for the caller. A repeated request with
// the same Idempotency-Key returns the booking created by the first one.
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	acc, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}

	var req CreateBookingRequest
	if !h.decode(w, r, &req) {
		return
	}

	key := r.Header.Get(idempotencyHeader)
	if key == "" || h.idempotency == nil {
		h.createBooking(w, r, acc, req)
		return
	}
	if len(key) > 128 {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "Idempotency-Key must be at most 128 characters")
		return
	}

	// Keys are scoped per account so one caller cannot replay another's result.
	key = acc.ID + ":" + key
	stored, claimed, err := h.idempotency.Begin(r.Context(), key)
	switch {
	case errors.Is(err, cache.ErrInProgress):
		writeError(w, http.StatusConflict, codeIdempotencyBusy, err.Error())
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "idempotency lookup failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, codeUnavailable, "idempotency store unavailable")
		return
	case !claimed:
		w.Header().Set("Idempotent-Replayed", "true")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(stored))
		return
	}

	b, err := h.bookings.Create(r.Context(), acc.ID, req.AgencyID, req.Quantity)
	if err != nil {
		if relErr := h.idempotency.Release(r.Context(), key); relErr != nil {
			h.logger.WarnContext(r.Context(), "release idempotency key", "error", relErr)
		}
		h.respondError(w, r, err)
		return
	}

	body, err := json.Marshal(b)
	if err == nil {
		err = h.idempotency.Complete(r.Context(), key, string(body))
	}
	if err != nil {
		h.logger.WarnContext(r.Context(), "store idempotent result", "booking_id", b.ID, "error", err)
	}
	respondJSON(w, http.StatusCreated, b)
}

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request, acc *account.Account, req CreateBookingRequest) {
	b, err := h.bookings.Create(r.Context(), acc.ID, req.AgencyID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, b)
}

// ListBookings returns the caller's bookings, optionally filtered by
// ?status=. Staff passing a status get every booking in that status.
func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	acc, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return
	}

	var (
		status booking.Status
		err    error
	)
	if raw := r.URL.Query().Get("status"); raw != "" {
		if status, err = booking.ParseStatus(raw); err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	var list []booking.Booking
	switch {
	case status != "" && acc.Can(account.CapViewAllBookings):
		list, err = h.bookings.ListByStatus(r.Context(), status)
	default:
		list, err = h.bookings.ListByAccount(r.Context(), acc.ID)
		if err == nil && status != "" {
			list = filterStatus(list, status)
		}
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, list)
}

func filterStatus(list []booking.Booking, status booking.Status) []booking.Booking {
	out := make([]booking.Booking, 0, len(list))
	for _, b := range list {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, ok := h.visibleBooking(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// ApproveBooking reserves stock for a requested booking. A shortage rejects
// the booking instead; both outcomes answer 200 with the booking.
func (h *Handlers) ApproveBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if b.Status == booking.StatusApproved {
		h.invalidateStock(r, b.AgencyID)
	}
	respondJSON(w, http.StatusOK, b)
}

// CancelBooking is open to the booking's owner and to staff.
func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	var req CancelBookingRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	current, ok := h.visibleBooking(w, r)
	if !ok {
		return
	}

	b, err := h.bookings.Cancel(r.Context(), current.ID, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	// The status read above predates the row lock, so it cannot tell whether
	// this cancel returned stock.
	h.invalidateStock(r, b.AgencyID)
	respondJSON(w, http.StatusOK, b)
}

func (h *Handlers) DeliverBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.MarkDelivered(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, b)
}

// visibleBooking loads the booking named in the path if the caller owns it
// or may see every booking.
func (h *Handlers) visibleBooking(w http.ResponseWriter, r *http.Request) (*booking.Booking, bool) {
	acc, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
		return nil, false
	}

	b, err := h.bookings.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return nil, false
	}
	if b.AccountID != acc.ID && !acc.Can(account.CapViewAllBookings) {
		writeError(w, http.StatusForbidden, codeForbidden, "forbidden")
		return nil, false
	}
	return b, true
}
