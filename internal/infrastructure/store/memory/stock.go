package memory

import (
	"context"
	"sort"
	"time"

	"github.com/example/gas-agency/internal/domain/stock"
)

type StockRepository struct {
	db *DB
}

func NewStockRepository(db *DB) *StockRepository {
	return &StockRepository{db: db}
}

func (r *StockRepository) Create(ctx context.Context, rec *stock.Record) error {
	return r.db.run(ctx, func(st *state) error {
		if _, exists := st.stock[rec.AgencyID]; exists {
			return stock.ErrAgencyExists
		}
		st.stock[rec.AgencyID] = *rec
		return nil
	})
}

func (r *StockRepository) Get(ctx context.Context, agencyID string) (*stock.Record, error) {
	var out stock.Record
	err := r.db.run(ctx, func(st *state) error {
		rec, ok := st.stock[agencyID]
		if !ok {
			return stock.ErrAgencyNotFound
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *StockRepository) List(ctx context.Context) ([]stock.Record, error) {
	out := []stock.Record{}
	err := r.db.run(ctx, func(st *state) error {
		for _, rec := range st.stock {
			out = append(out, rec)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].AgencyID < out[j].AgencyID })
	return out, err
}

func (r *StockRepository) Reserve(ctx context.Context, agencyID string, quantity int, at time.Time) (*stock.Record, error) {
	return r.adjust(ctx, agencyID, at, func(rec *stock.Record) error {
		if rec.Available < quantity {
			return stock.ErrInsufficientStock
		}
		rec.Available -= quantity
		return nil
	})
}

func (r *StockRepository) Restock(ctx context.Context, agencyID string, quantity int, at time.Time) (*stock.Record, error) {
	return r.adjust(ctx, agencyID, at, func(rec *stock.Record) error {
		// Compare headroom; Available + quantity may overflow.
		if rec.Capacity-rec.Available < quantity {
			return stock.ErrCapacityExceeded
		}
		rec.Available += quantity
		return nil
	})
}

func (r *StockRepository) adjust(ctx context.Context, agencyID string, at time.Time, apply func(rec *stock.Record) error) (*stock.Record, error) {
	var out stock.Record
	err := r.db.run(ctx, func(st *state) error {
		rec, ok := st.stock[agencyID]
		if !ok {
			return stock.ErrAgencyNotFound
		}
		if err := apply(&rec); err != nil {
			return err
		}
		rec.Version++
		rec.UpdatedAt = at
		st.stock[agencyID] = rec
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

var _ stock.Repository = (*StockRepository)(nil)
