package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/example/gas-agency/internal/domain/booking"
)

const bookingColumns = `id, account_id, agency_id, quantity, status, reason, created_at, decided_at, updated_at`

type BookingRepository struct {
	db *DB
}

func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{db: db}
}

func (r *BookingRepository) Create(ctx context.Context, b *booking.Booking) error {
	_, err := r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO bookings (`+bookingColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.ID, b.AccountID, b.AgencyID, b.Quantity, string(b.Status), b.Reason, b.CreatedAt, nullTime(b.DecidedAt), b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *BookingRepository) Get(ctx context.Context, id string) (*booking.Booking, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

// GetForUpdate locks the booking row until the surrounding transaction ends.
func (r *BookingRepository) GetForUpdate(ctx context.Context, id string) (*booking.Booking, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
	return scanBooking(row)
}

func (r *BookingRepository) Update(ctx context.Context, b *booking.Booking) error {
	res, err := r.db.conn(ctx).ExecContext(ctx,
		`UPDATE bookings SET status = $2, reason = $3, decided_at = $4, updated_at = $5 WHERE id = $1`,
		b.ID, string(b.Status), b.Reason, nullTime(b.DecidedAt), b.UpdatedAt,
	)
	return expectOne(res, err, booking.ErrBookingNotFound)
}

func (r *BookingRepository) ListByAccount(ctx context.Context, accountID string) ([]booking.Booking, error) {
	return r.list(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE account_id = $1 ORDER BY created_at DESC, id`,
		accountID,
	)
}

func (r *BookingRepository) ListByStatus(ctx context.Context, status booking.Status) ([]booking.Booking, error) {
	return r.list(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE status = $1 ORDER BY created_at ASC, id`,
		string(status),
	)
}

func (r *BookingRepository) list(ctx context.Context, query string, arg any) ([]booking.Booking, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		if isInvalidUUID(err) {
			return []booking.Booking{}, nil
		}
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	out := []booking.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBooking(row rowScanner) (*booking.Booking, error) {
	var (
		b       booking.Booking
		status  string
		decided sql.NullTime
	)
	err := row.Scan(&b.ID, &b.AccountID, &b.AgencyID, &b.Quantity, &status, &b.Reason, &b.CreatedAt, &decided, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || isInvalidUUID(err) {
			return nil, booking.ErrBookingNotFound
		}
		return nil, fmt.Errorf("scan booking: %w", err)
	}
	b.Status = booking.Status(status)
	b.DecidedAt = timePtr(decided)
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return &b, nil
}

var _ booking.Repository = (*BookingRepository)(nil)
