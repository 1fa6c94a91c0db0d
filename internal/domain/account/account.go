// Package account owns identities, their credentials and login sessions.
package account

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/example/gas-agency/internal/domain/errs"
)

const AggregateType = "Account"

var (
	ErrDuplicateIdentity  = errs.New(errs.CategoryIdentity, "duplicate_identity", "username is already registered")
	ErrInvalidCredential  = errs.New(errs.CategoryIdentity, "invalid_credential", "invalid username or password")
	ErrWeakCredential     = errs.New(errs.CategoryIdentity, "weak_credential", "password must be between 8 and 72 bytes")
	ErrInvalidUsername    = errs.New(errs.CategoryIdentity, "invalid_username", "username must be 3-50 characters of letters, digits, '.', '_' or '-'")
	ErrSessionExpired     = errs.New(errs.CategoryIdentity, "session_expired", "session has expired")
	ErrSessionNotFound    = errs.New(errs.CategoryIdentity, "session_not_found", "session not found")
	ErrAccountDeactivated = errs.New(errs.CategoryIdentity, "account_deactivated", "account is deactivated")
	ErrAccountNotFound    = errs.New(errs.CategoryNotFound, "account_not_found", "account not found")
)

type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
)

// Capability names an action guarded by role.
type Capability string

const (
	CapApproveBooking  Capability = "approve_booking"
	CapDeliverBooking  Capability = "deliver_booking"
	CapManageStock     Capability = "manage_stock"
	CapViewAllBookings Capability = "view_all_bookings"
	CapManageAccounts  Capability = "manage_accounts"
)

var roleCapabilities = map[Role][]Capability{
	RoleStaff: {
		CapApproveBooking,
		CapDeliverBooking,
		CapManageStock,
		CapViewAllBookings,
		CapManageAccounts,
	},
	RoleCustomer: {},
}

type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Can reports whether the account's role grants c. Deactivated accounts hold
// no capabilities.
func (a *Account) Can(c Capability) bool {
	if !a.IsActive {
		return false
	}
	for _, granted := range roleCapabilities[a.Role] {
		if granted == c {
			return true
		}
	}
	return false
}

// Session is a stored login. Only the hash of its refresh token is kept.
type Session struct {
	ID               string    `json:"id"`
	AccountID        string    `json:"account_id"`
	RefreshTokenHash string    `json:"-"`
	IPAddress        string    `json:"ip_address,omitempty"`
	UserAgent        string    `json:"user_agent,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}

func (s *Session) ExpiredAt(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

var usernamePattern = regexp.MustCompile(`^[a-z0-9._-]{3,50}$`)

// NormalizeUsername returns the canonical form of a login identifier.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

// Repository persists accounts. Create reports ErrDuplicateIdentity when the
// username is taken; lookups report ErrAccountNotFound.
type Repository interface {
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error
	SetActive(ctx context.Context, id string, active bool, at time.Time) error
}

// SessionRepository persists sessions. Get and Delete report
// ErrSessionNotFound when no such session exists.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByAccount(ctx context.Context, accountID string) (int, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
