package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/example/gas-agency/internal/domain/stock"
)

const stockColumns = `agency_id, name, available, capacity, version, updated_at`

// StockRepository applies reservations as single conditional updates, so
// the bounds hold no matter how many callers race on one agency.
type StockRepository struct {
	db *DB
}

func NewStockRepository(db *DB) *StockRepository {
	return &StockRepository{db: db}
}

func (r *StockRepository) Create(ctx context.Context, rec *stock.Record) error {
	_, err := r.db.conn(ctx).ExecContext(ctx,
		`INSERT INTO stock_records (`+stockColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.AgencyID, rec.Name, rec.Available, rec.Capacity, rec.Version, rec.UpdatedAt,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return stock.ErrAgencyExists
		case isCheckViolation(err):
			return stock.ErrInvalidCapacity
		}
		return fmt.Errorf("insert stock record: %w", err)
	}
	return nil
}

func (r *StockRepository) Get(ctx context.Context, agencyID string) (*stock.Record, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx, `SELECT `+stockColumns+` FROM stock_records WHERE agency_id = $1`, agencyID)
	return scanStock(row)
}

func (r *StockRepository) List(ctx context.Context) ([]stock.Record, error) {
	rows, err := r.db.conn(ctx).QueryContext(ctx, `SELECT `+stockColumns+` FROM stock_records ORDER BY agency_id`)
	if err != nil {
		return nil, fmt.Errorf("list stock records: %w", err)
	}
	defer rows.Close()

	out := []stock.Record{}
	for rows.Next() {
		rec, err := scanStock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (r *StockRepository) Reserve(ctx context.Context, agencyID string, quantity int, at time.Time) (*stock.Record, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx,
		`UPDATE stock_records
		 SET available = available - $2, version = version + 1, updated_at = $3
		 WHERE agency_id = $1 AND available >= $2
		 RETURNING `+stockColumns,
		agencyID, quantity, at,
	)
	return r.afterUpdate(ctx, agencyID, row, stock.ErrInsufficientStock)
}

func (r *StockRepository) Restock(ctx context.Context, agencyID string, quantity int, at time.Time) (*stock.Record, error) {
	row := r.db.conn(ctx).QueryRowContext(ctx,
		`UPDATE stock_records
		 SET available = available + $2, version = version + 1, updated_at = $3
		 WHERE agency_id = $1 AND capacity - available >= $2
		 RETURNING `+stockColumns,
		agencyID, quantity, at,
	)
	return r.afterUpdate(ctx, agencyID, row, stock.ErrCapacityExceeded)
}

// afterUpdate scans the updated row. When the conditional update matched
// nothing it tells a missing agency apart from a violated bound.
func (r *StockRepository) afterUpdate(ctx context.Context, agencyID string, row *sql.Row, boundErr error) (*stock.Record, error) {
	rec, err := scanStock(row)
	if !errors.Is(err, stock.ErrAgencyNotFound) {
		return rec, err
	}

	var exists bool
	if err := r.db.conn(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM stock_records WHERE agency_id = $1)`, agencyID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("check agency: %w", err)
	}
	if exists {
		return nil, boundErr
	}
	return nil, stock.ErrAgencyNotFound
}

func scanStock(row rowScanner) (*stock.Record, error) {
	var rec stock.Record
	err := row.Scan(&rec.AgencyID, &rec.Name, &rec.Available, &rec.Capacity, &rec.Version, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, stock.ErrAgencyNotFound
		}
		return nil, fmt.Errorf("scan stock record: %w", err)
	}
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return &rec, nil
}

var _ stock.Repository = (*StockRepository)(nil)
