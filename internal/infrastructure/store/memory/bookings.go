package memory

import (
	"context"

	"github.com/example/gas-agency/internal/domain/booking"
)

type BookingRepository struct {
	db *DB
}

func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, b *booking.Booking) error {
	return r.db.run(ctx, func(st *state) error {
		st.bookings[b.ID] = *b
		st.bookingSeq = append(st.bookingSeq, b.ID)
		return nil
	})
}

func (r *BookingRepository) Get(ctx context.Context, id string) (*booking.Booking, error) {
	var out booking.Booking
	err := r.db.run(ctx, func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return booking.ErrBookingNotFound
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetForUpdate is Get: inside a transaction the store lock is already held.
func (r *BookingRepository) GetForUpdate(ctx context.Context, id string) (*booking.Booking, error) {
	return r.Get(ctx, id)
}

func (r *BookingRepository) Update(ctx context.Context, b *booking.Booking) error {
	return r.db.run(ctx, func(st *state) error {
		if _, ok := st.bookings[b.ID]; !ok {
			return booking.ErrBookingNotFound
		}
		st.bookings[b.ID] = *b
		return nil
	})
}

// ListByAccount returns the account's bookings, newest first.
func (r *BookingRepository) ListByAccount(ctx context.Context, accountID string) ([]booking.Booking, error) {
	return r.list(ctx, func(b booking.Booking) bool { return b.AccountID == accountID }, true)
}

// ListByStatus returns bookings in status, oldest first.
func (r *BookingRepository) ListByStatus(ctx context.Context, status booking.Status) ([]booking.Booking, error) {
	return r.list(ctx, func(b booking.Booking) bool { return b.Status == status }, false)
}

func (r *BookingRepository) list(ctx context.Context, match func(booking.Booking) bool, newestFirst bool) ([]booking.Booking, error) {
	out := []booking.Booking{}
	err := r.db.run(ctx, func(st *state) error {
		for _, id := range st.bookingSeq {
			if b := st.bookings[id]; match(b) {
				out = append(out, b)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if newestFirst {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
