package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/gas-agency/internal/domain/account"
)

const accountColumns = `id, username, display_name, email, password_hash, role, is_active, created_at, updated_at`

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	_, err := r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Username, a.DisplayName, a.Email, a.PasswordHash, string(a.Role), a.IsActive, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrDuplicateIdentity
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	return scanAccount(row)
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	res, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, at,
	)
	return expectOne(res, err, account.ErrAccountNotFound)
}

func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	res, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE accounts SET is_active = $2, updated_at = $3 WHERE id = $1`,
		id, active, at,
	)
	return expectOne(res, err, account.ErrAccountNotFound)
}

func scanAccount(row rowScanner) (*account.Account, error) {
	var (
		a    account.Account
		role string
	)
	err := row.Scan(&a.ID, &a.Username, &a.DisplayName, &a.Email, &a.PasswordHash, &role, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
			return nil, account.ErrAccountNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	a.Role = account.Role(role)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

// expectOne turns an update that matched no row into notFound.
func expectOne(res sql.Result, err error, notFound error) error {
	if err != nil {
		if isInvalidUUID(err) {
			return notFound
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

var _ account.Repository = (*AccountRepository)(nil)
