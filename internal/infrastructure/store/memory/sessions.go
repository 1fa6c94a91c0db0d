package memory

import (
	"context"
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
	return r.db.run(ctx, func(st *state) error {
		st.sessions[s.ID] = *s
		return nil
	})
}

func (r *SessionRepository) Get(ctx context.Context, id string) (*account.Session, error) {
	var out account.Session
	err := r.db.run(ctx, func(st *state) error {
		s, ok := st.sessions[id]
		if !ok {
			return account.ErrSessionNotFound
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	return r.db.run(ctx, func(st *state) error {
		if _, ok := st.sessions[id]; !ok {
			return account.ErrSessionNotFound
		}
		delete(st.sessions, id)
		return nil
	})
}

func (r *SessionRepository) DeleteByAccount(ctx context.Context, accountID string) (int, error) {
	n := 0
	err := r.db.run(ctx, func(st *state) error {
		for id, s := range st.sessions {
			if s.AccountID == accountID {
				delete(st.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	n := 0
	err := r.db.run(ctx, func(st *state) error {
		for id, s := range st.sessions {
			if s.ExpiredAt(now) {
				delete(st.sessions, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

var _ account.SessionRepository = (*SessionRepository)(nil)
