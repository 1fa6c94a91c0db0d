// Package memory is a process-local store backend. Every operation is
// serialized on one mutex and a failed transaction is rolled back by restoring
// a snapshot, so it honours the same all-or-nothing contract as Postgres.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/example/gas-agency/internal/domain/account"
	"github.com/example/gas-agency/internal/domain/booking"
	"github.com/example/gas-agency/internal/domain/stock"
	"github.com/example/gas-agency/internal/infrastructure/store"
)

type txKey struct{}

type state struct {
	accounts   map[string]account.Account
	usernames  map[string]string
	sessions   map[string]account.Session
	stock      map[string]stock.Record
	bookings   map[string]booking.Booking
	bookingSeq []string
	events     []store.Event
	versions   map[string]int

	// published lists the event indexes marked published by the open
	// transaction.
	published []int
}

// snapshot captures what a rollback restores. The event log is append-only
// apart from publish marks, so only its length is kept.
type snapshot struct {
	st         *state
	eventCount int
}

func (s *state) snapshot() snapshot {
	return snapshot{
		st: &state{
			accounts:   maps.Clone(s.accounts),
			usernames:  maps.Clone(s.usernames),
			sessions:   maps.Clone(s.sessions),
			stock:      maps.Clone(s.stock),
			bookings:   maps.Clone(s.bookings),
			bookingSeq: append([]string(nil), s.bookingSeq...),
			versions:   maps.Clone(s.versions),
		},
		eventCount: len(s.events),
	}
}

func (db *DB) restore(snap snapshot) {
	events := db.st.events
	for _, i := range db.st.published {
		if i < snap.eventCount {
			events[i].PublishedAt = nil
		}
	}
	clear(events[snap.eventCount:])
	snap.st.events = events[:snap.eventCount]
	db.st = snap.st
}

// DB holds all in-memory tables and implements store.Transactor.
type DB struct {
	mu sync.Mutex
	st *state
}

func New() *DB {
	return &DB{st: &state{
		accounts:  make(map[string]account.Account),
		usernames: make(map[string]string),
		sessions:  make(map[string]account.Session),
		stock:     make(map[string]stock.Record),
		bookings:  make(map[string]booking.Booking),
		versions:  make(map[string]int),
	}}
}

// WithTx runs fn holding the store lock. If fn fails every change it made is
// discarded. Calls nested inside fn join the outer transaction.
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.inTx(ctx) {
		return fn(ctx)
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.st.snapshot()
	defer func() { db.st.published = nil }()
	if err := fn(context.WithValue(ctx, txKey{}, db)); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// Ping reports whether the store can serve requests. An in-memory store is
// always up unless ctx is done.
func (db *DB) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (db *DB) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*DB)
	return owner == db
}

// run executes fn against the current state, taking the lock unless the
// caller's transaction already holds it.
func (db *DB) run(ctx context.Context, fn func(st *state) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if db.inTx(ctx) {
		return fn(db.st)
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(db.st)
}

var _ store.Transactor = (*DB)(nil)
