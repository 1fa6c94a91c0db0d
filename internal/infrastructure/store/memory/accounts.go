package memory

import (
	"context"
	"time"

	"github.com/example/gas-agency/internal/domain/account"
)

type AccountRepository struct {
	db *DB
}

func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	return r.db.run(ctx, func(st *state) error {
		if _, taken := st.usernames[a.Username]; taken {
			return account.ErrDuplicateIdentity
		}
		st.accounts[a.ID] = *a
		st.usernames[a.Username] = a.ID
		return nil
	})
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*account.Account, error) {
	var out account.Account
	err := r.db.run(ctx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return account.ErrAccountNotFound
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	var out account.Account
	err := r.db.run(ctx, func(st *state) error {
		id, ok := st.usernames[username]
		if !ok {
			return account.ErrAccountNotFound
		}
		out = st.accounts[id]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string, at time.Time) error {
	return r.db.run(ctx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return account.ErrAccountNotFound
		}
		a.PasswordHash = passwordHash
		a.UpdatedAt = at
		st.accounts[id] = a
		return nil
	})
}

func (r *AccountRepository) SetActive(ctx context.Context, id string, active bool, at time.Time) error {
	return r.db.run(ctx, func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return account.ErrAccountNotFound
		}
		a.IsActive = active
		a.UpdatedAt = at
		st.accounts[id] = a
		return nil
	})
}

var _ account.Repository = (*AccountRepository)(nil)
