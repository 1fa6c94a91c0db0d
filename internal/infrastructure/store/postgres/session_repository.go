package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/gas-agency/internal/domain/account"
)

type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *account.Session) error {
	_, err := r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO sessions (id, account_id, refresh_token_hash, ip_address, user_agent, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.AccountID, s.RefreshTokenHash, s.IPAddress, s.UserAgent, s.ExpiresAt, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*account.Session, error) {
	var s account.Session
	err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT id, account_id, refresh_token_hash, ip_address, user_agent, expires_at, created_at
		 FROM sessions WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.AccountID, &s.RefreshTokenHash, &s.IPAddress, &s.UserAgent, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
			return nil, account.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	s.ExpiresAt = s.ExpiresAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	return &s, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return expectOne(res, err, account.ErrSessionNotFound)
}

func (r *SessionRepository) DeleteByAccount(ctx context.Context, accountID string) (int, error) {
	res, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM sessions WHERE account_id = $1`, accountID)
	return affected(res, err)
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := r.db.conn(ctx).ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	return affected(res, err)
}

func affected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

var _ account.SessionRepository = (*SessionRepository)(nil)
