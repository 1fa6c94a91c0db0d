package booking

import "time"

const (
	EventBookingRequested = "BookingRequested"
	EventBookingApproved  = "BookingApproved"
	EventBookingRejected  = "BookingRejected"
	EventBookingCancelled = "BookingCancelled"
	EventBookingDelivered = "BookingDelivered"
)

type BookingRequested struct {
	BookingID   string    `json:"booking_id"`
	AccountID   string    `json:"account_id"`
	AgencyID    string    `json:"agency_id"`
	Quantity    int       `json:"quantity"`
	RequestedAt time.Time `json:"requested_at"`
}

type BookingApproved struct {
	BookingID  string    `json:"booking_id"`
	AccountID  string    `json:"account_id"`
	AgencyID   string    `json:"agency_id"`
	Quantity   int       `json:"quantity"`
	ApprovedAt time.Time `json:"approved_at"`
}

type BookingRejected struct {
	BookingID  string    `json:"booking_id"`
	AccountID  string    `json:"account_id"`
	AgencyID   string    `json:"agency_id"`
	Quantity   int       `json:"quantity"`
	Reason     string    `json:"reason"`
	RejectedAt time.Time `json:"rejected_at"`
}

type BookingCancelled struct {
	BookingID   string    `json:"booking_id"`
	AccountID   string    `json:"account_id"`
	AgencyID    string    `json:"agency_id"`
	Quantity    int       `json:"quantity"`
	Reason      string    `json:"reason,omitempty"`
	Restocked   bool      `json:"restocked"`
	CancelledAt time.Time `json:"cancelled_at"`
}

type BookingDelivered struct {
	BookingID   string    `json:"booking_id"`
	AccountID   string    `json:"account_id"`
	AgencyID    string    `json:"agency_id"`
	Quantity    int       `json:"quantity"`
	DeliveredAt time.Time `json:"delivered_at"`
}
