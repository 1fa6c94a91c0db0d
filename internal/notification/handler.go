package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/gas-agency/internal/domain/account"
	"github.com/example/gas-agency/internal/domain/booking"
	"github.com/example/gas-agency/internal/email"
	"github.com/example/gas-agency/internal/infrastructure/store"
)

// Mailer delivers booking update emails.
type Mailer interface {
	SendBookingUpdate(to string, u email.BookingUpdate) error
}

// AccountLookup resolves the recipient of a notification.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (*account.Account, error)
}

var notifiedStatus = map[string]booking.Status{
	booking.EventBookingApproved:  booking.StatusApproved,
	booking.EventBookingRejected:  booking.StatusRejected,
	booking.EventBookingCancelled: booking.StatusCancelled,
	booking.EventBookingDelivered: booking.StatusDelivered,
}

// bookingPayload holds the fields every booking decision event carries.
type bookingPayload struct {
	BookingID string `json:"booking_id"`
	AccountID string `json:"account_id"`
	AgencyID  string `json:"agency_id"`
	Quantity  int    `json:"quantity"`
	Reason    string `json:"reason"`
}

// Handler processes events for sending notifications
type Handler struct {
	mailer   Mailer
	accounts AccountLookup
	logger   *slog.Logger
}

// NewHandler creates a new notification handler
func NewHandler(mailer Mailer, accounts AccountLookup, logger *slog.Logger) *Handler {
	return &Handler{
		mailer:   mailer,
		accounts: accounts,
		logger:   logger.With("component", "notifier"),
	}
}

// HandleEvent processes an event from Kafka
func (h *Handler) HandleEvent(ctx context.Context, key, value []byte) error {
	var event store.Event
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	status, ok := notifiedStatus[event.EventType]
	if !ok {
		return nil
	}
	return h.handleBookingDecision(ctx, event, status)
}

func (h *Handler) handleBookingDecision(ctx context.Context, event store.Event, status booking.Status) error {
	var p bookingPayload
	if err := event.Decode(&p); err != nil {
		return fmt.Errorf("unmarshal %s: %w", event.EventType, err)
	}

	acc, err := h.accounts.GetByID(ctx, p.AccountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			h.logger.Warn("account not found for booking", "booking_id", p.BookingID, "account_id", p.AccountID)
			return nil
		}
		return fmt.Errorf("load account %s: %w", p.AccountID, err)
	}
	if acc.Email == "" {
		h.logger.Debug("no email on file, skipping", "booking_id", p.BookingID, "account_id", acc.ID)
		return nil
	}

	update := email.BookingUpdate{
		BookingID:   p.BookingID,
		DisplayName: acc.DisplayName,
		AgencyID:    p.AgencyID,
		Quantity:    p.Quantity,
		Status:      string(status),
		Reason:      p.Reason,
	}
	if err := h.mailer.SendBookingUpdate(acc.Email, update); err != nil {
		return fmt.Errorf("send booking update for %s: %w", p.BookingID, err)
	}

	h.logger.Info("booking update sent", "booking_id", p.BookingID, "status", status)
	return nil
}
