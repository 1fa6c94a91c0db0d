package account

import "time"

const (
	EventAccountRegistered      = "AccountRegistered"
	EventAccountPasswordChanged = "AccountPasswordChanged"
	EventAccountDeactivated     = "AccountDeactivated"
	EventAccountActivated       = "AccountActivated"
)

// AccountRegistered is emitted when a new account is created. The credential
// hash never leaves the accounts table.
type AccountRegistered struct {
	AccountID   string    `json:"account_id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email,omitempty"`
	Role        Role      `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type AccountPasswordChanged struct {
	AccountID string    `json:"account_id"`
	ChangedAt time.Time `json:"changed_at"`
}

type AccountDeactivated struct {
	AccountID       string    `json:"account_id"`
	RevokedSessions int       `json:"revoked_sessions"`
	DeactivatedAt   time.Time `json:"deactivated_at"`
}

type AccountActivated struct {
	AccountID   string    `json:"account_id"`
	ActivatedAt time.Time `json:"activated_at"`
}
