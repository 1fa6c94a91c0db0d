package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/gas-agency/internal/auth"
	"github.com/example/gas-agency/internal/clock"
	"github.com/example/gas-agency/internal/infrastructure/store"
)

type RegisterInput struct {
	Username    string
	DisplayName string
	Email       string
	Password    string
}

// ClientInfo describes where a login came from.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// IssuedSession is what a successful login or refresh hands back to the caller.
type IssuedSession struct {
	Session          Session
	Account          Account
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type Service struct {
	tx       store.Transactor
	accounts Repository
	sessions SessionRepository
	events   store.EventLog
	tokens   *auth.JWTService
	clock    clock.Clock
	logger   *slog.Logger
}

func NewService(
	tx store.Transactor,
	accounts Repository,
	sessions SessionRepository,
	events store.EventLog,
	tokens *auth.JWTService,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	return &Service{
		tx:       tx,
		accounts: accounts,
		sessions: sessions,
		events:   events,
		tokens:   tokens,
		clock:    clk,
		logger:   logger.With("component", "account"),
	}
}

// Register creates a customer account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Account, error) {
	return s.register(ctx, in, RoleCustomer)
}

// RegisterStaff creates an account allowed to run the booking queue and stock.
func (s *Service) RegisterStaff(ctx context.Context, in RegisterInput) (*Account, error) {
	return s.register(ctx, in, RoleStaff)
}

func (s *Service) register(ctx context.Context, in RegisterInput, role Role) (*Account, error) {
	username := NormalizeUsername(in.Username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	hash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	acc := &Account{
		ID:           uuid.New().String(),
		Username:     username,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if acc.DisplayName == "" {
		acc.DisplayName = username
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, acc); err != nil {
			return err
		}
		_, err := s.events.Append(ctx, acc.ID, AggregateType, EventAccountRegistered, AccountRegistered{
			AccountID:   acc.ID,
			Username:    acc.Username,
			DisplayName: acc.DisplayName,
			Email:       acc.Email,
			Role:        acc.Role,
			CreatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("append %s: %w", EventAccountRegistered, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("account registered", "account_id", acc.ID, "role", acc.Role)
	return acc, nil
}

// EnsureStaff registers a staff account under username unless one already
// exists. Used to bootstrap the first operator.
func (s *Service) EnsureStaff(ctx context.Context, username, password string) (*Account, error) {
	existing, err := s.accounts.GetByUsername(ctx, NormalizeUsername(username))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	acc, err := s.RegisterStaff(ctx, RegisterInput{Username: username, Password: password})
	if errors.Is(err, ErrDuplicateIdentity) {
		return s.accounts.GetByUsername(ctx, NormalizeUsername(username))
	}
	return acc, err
}

// Authenticate checks a username and password and opens a session. Unknown
// usernames and wrong passwords fail identically.
func (s *Service) Authenticate(ctx context.Context, username, password string, client ClientInfo) (*IssuedSession, error) {
	acc, err := s.accounts.GetByUsername(ctx, NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			auth.CheckDummyPassword(password)
			return nil, ErrInvalidCredential
		}
		return nil, fmt.Errorf("load account: %w", err)
	}

	if !auth.CheckPassword(password, acc.PasswordHash) {
		return nil, ErrInvalidCredential
	}
	if !acc.IsActive {
		return nil, ErrAccountDeactivated
	}

	issued, err := s.issueSession(ctx, acc, client, "")
	if err != nil {
		return nil, err
	}

	s.logger.Info("account logged in", "account_id", acc.ID, "session_id", issued.Session.ID)
	return issued, nil
}

// ValidateSession resolves an access token to the active account it was
// issued for.
func (s *Service) ValidateSession(ctx context.Context, accessToken string) (*Account, error) {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return nil, tokenError(err)
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID())
	if err != nil {
		return nil, err
	}
	if sess.AccountID != claims.AccountID {
		return nil, ErrSessionNotFound
	}
	if sess.ExpiredAt(s.clock.Now()) {
		if err := s.sessions.Delete(ctx, sess.ID); err != nil {
			s.logger.Warn("failed to evict expired session", "session_id", sess.ID, "error", err)
		}
		return nil, ErrSessionExpired
	}

	acc, err := s.accounts.GetByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !acc.IsActive {
		return nil, ErrSessionNotFound
	}
	return acc, nil
}

// Refresh exchanges a refresh token for a new session. The old session is
// removed in the same transaction, so a refresh token works once.
func (s *Service) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (*IssuedSession, error) {
	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, tokenError(err)
	}

	sess, err := s.sessions.Get(ctx, claims.SessionID())
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(sess.RefreshTokenHash), []byte(auth.HashToken(refreshToken))) != 1 {
		return nil, ErrSessionNotFound
	}
	if sess.ExpiredAt(s.clock.Now()) {
		if err := s.sessions.Delete(ctx, sess.ID); err != nil {
			s.logger.Warn("failed to evict expired session", "session_id", sess.ID, "error", err)
		}
		return nil, ErrSessionExpired
	}

	acc, err := s.accounts.GetByID(ctx, sess.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load account: %w", err)
	}
	if !acc.IsActive {
		return nil, ErrSessionNotFound
	}

	return s.issueSession(ctx, acc, client, sess.ID)
}

// Logout ends the session an access token belongs to. Ending an already
// ended session is not an error.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil {
		return tokenError(err)
	}
	if err := s.sessions.Delete(ctx, claims.SessionID()); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	s.logger.Info("account logged out", "account_id", claims.AccountID, "session_id", claims.SessionID())
	return nil
}

// ChangePassword replaces the credential and ends every session of the account.
func (s *Service) ChangePassword(ctx context.Context, accountID, current, next string) error {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(current, acc.PasswordHash) {
		return ErrInvalidCredential
	}

	hash, err := hashPassword(next)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.UpdatePassword(ctx, acc.ID, hash, now); err != nil {
			return err
		}
		if _, err := s.sessions.DeleteByAccount(ctx, acc.ID); err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		_, err := s.events.Append(ctx, acc.ID, AggregateType, EventAccountPasswordChanged, AccountPasswordChanged{
			AccountID: acc.ID,
			ChangedAt: now,
		})
		if err != nil {
			return fmt.Errorf("append %s: %w", EventAccountPasswordChanged, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("password changed", "account_id", acc.ID)
	return nil
}

// Deactivate blocks further logins and ends every open session.
func (s *Service) Deactivate(ctx context.Context, accountID string) (*Account, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !acc.IsActive {
		return acc, nil
	}

	now := s.clock.Now()
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.SetActive(ctx, acc.ID, false, now); err != nil {
			return err
		}
		revoked, err := s.sessions.DeleteByAccount(ctx, acc.ID)
		if err != nil {
			return fmt.Errorf("revoke sessions: %w", err)
		}
		_, err = s.events.Append(ctx, acc.ID, AggregateType, EventAccountDeactivated, AccountDeactivated{
			AccountID:       acc.ID,
			RevokedSessions: revoked,
			DeactivatedAt:   now,
		})
		if err != nil {
			return fmt.Errorf("append %s: %w", EventAccountDeactivated, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	acc.IsActive = false
	acc.UpdatedAt = now
	s.logger.Info("account deactivated", "account_id", acc.ID)
	return acc, nil
}

func (s *Service) Activate(ctx context.Context, accountID string) (*Account, error) {
	acc, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acc.IsActive {
		return acc, nil
	}

	now := s.clock.Now()
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.SetActive(ctx, acc.ID, true, now); err != nil {
			return err
		}
		_, err := s.events.Append(ctx, acc.ID, AggregateType, EventAccountActivated, AccountActivated{
			AccountID:   acc.ID,
			ActivatedAt: now,
		})
		if err != nil {
			return fmt.Errorf("append %s: %w", EventAccountActivated, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	acc.IsActive = true
	acc.UpdatedAt = now
	s.logger.Info("account activated", "account_id", acc.ID)
	return acc, nil
}

func (s *Service) Get(ctx context.Context, accountID string) (*Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

// PurgeExpiredSessions deletes every session past its expiry.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("purge expired sessions: %w", err)
	}
	return n, nil
}

// RunSessionCleanup purges expired sessions every interval until ctx is done.
func (s *Service) RunSessionCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("session cleanup started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("session cleanup stopped")
			return
		case <-ticker.C:
			n, err := s.PurgeExpiredSessions(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("session cleanup failed", "error", err)
				}
				continue
			}
			if n > 0 {
				s.logger.Info("expired sessions purged", "count", n)
			}
		}
	}
}

func (s *Service) issueSession(ctx context.Context, acc *Account, client ClientInfo, replaces string) (*IssuedSession, error) {
	sessionID := uuid.New().String()

	access, accessExp, err := s.tokens.GenerateAccessToken(sessionID, acc.ID, string(acc.Role))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, refreshExp, err := s.tokens.GenerateRefreshToken(sessionID, acc.ID)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	sess := Session{
		ID:               sessionID,
		AccountID:        acc.ID,
		RefreshTokenHash: auth.HashToken(refresh),
		IPAddress:        client.IPAddress,
		UserAgent:        client.UserAgent,
		ExpiresAt:        refreshExp,
		CreatedAt:        s.clock.Now(),
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if replaces != "" {
			if err := s.sessions.Delete(ctx, replaces); err != nil {
				return err
			}
		}
		if err := s.sessions.Create(ctx, &sess); err != nil {
			return fmt.Errorf("store session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &IssuedSession{
		Session:          sess,
		Account:          *acc,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func hashPassword(password string) (string, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
			return "", ErrWeakCredential
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func tokenError(err error) error {
	if errors.Is(err, auth.ErrExpiredToken) {
		return ErrSessionExpired
	}
	return ErrSessionNotFound
}
