// Package ledger implements the marketplace state machine: service and token
// balances, seller listings and the global listed-service counter.
//
// Every mutating operation is serialized by the instance mutex and staged in
// a transaction. Preconditions are checked before anything is written; when
// one fails, or the configured Store rejects the changeset, the ledger is
// left exactly as it was.
package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Store persists committed changesets. Apply must write the whole changeset
// or nothing. Load returns nil when nothing has been persisted yet.
type Store interface {
	Load(ctx context.Context) (*Snapshot, error)
	Apply(ctx context.Context, cs *Changeset) error
}

type Ledger struct {
	mu    sync.Mutex
	state *Snapshot
	store Store
}

type Option func(*Ledger)

// WithStore makes every commit write through to s before it becomes visible.
func WithStore(s Store) Option {
	return func(l *Ledger) { l.store = s }
}

// New creates an empty ledger.
func New(cfg Config, opts ...Option) (*Ledger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return build(NewSnapshot(cfg), opts), nil
}

// Restore rebuilds a ledger from a snapshot after verifying it.
func Restore(snap *Snapshot, opts ...Option) (*Ledger, error) {
	if snap == nil {
		return nil, fmt.Errorf("restore: nil snapshot")
	}
	if err := snap.Config.Validate(); err != nil {
		return nil, fmt.Errorf("restore config: %w", err)
	}
	if err := CheckInvariants(snap); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	return build(snap.Clone(), opts), nil
}

// Open loads the ledger persisted in store, or starts an empty one with cfg
// when the store has no state. A persisted owner always wins over cfg.
func Open(ctx context.Context, cfg Config, store Store) (*Ledger, error) {
	snap, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load ledger: %w", err)
	}
	if snap == nil {
		return New(cfg, WithStore(store))
	}
	return Restore(snap, WithStore(store))
}

func build(state *Snapshot, opts []Option) *Ledger {
	l := &Ledger{state: state}
	for _, o := range opts {
		o(l)
	}
	return l
}

// execute runs fn as one atomic transition on behalf of caller.
func (l *Ledger) execute(ctx context.Context, op Op, caller AccountID, fn func(tx *txn) error) (*Changeset, error) {
	if caller == "" {
		return nil, ErrUnauthorized
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx := newTxn(l.state)
	if err := fn(tx); err != nil {
		return nil, err
	}

	cs := tx.changeset(l.state.Seq+1, op, caller)
	if cs.Seq == 1 && cs.Config == nil {
		// The first changeset carries the configuration so a store that
		// starts empty can be reopened without it.
		c := tx.config()
		cs.Config = &c
	}
	if l.store != nil {
		if err := l.store.Apply(ctx, cs); err != nil {
			return nil, fmt.Errorf("persist %s: %w", op, err)
		}
	}
	l.state.Apply(cs)
	return cs, nil
}

func (l *Ledger) read(fn func(s *Snapshot)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fn(l.state)
}

func (l *Ledger) Config() (c Config) {
	l.read(func(s *Snapshot) { c = s.Config })
	return c
}

func (l *Ledger) Owner() AccountID { return l.Config().Owner }

func (l *Ledger) UnitCost() int64 { return l.Config().UnitCost }

func (l *Ledger) FeeRate() int64 { return l.Config().FeeRate }

func (l *Ledger) RefundRate() int64 { return l.Config().RefundRate }

// ServiceBalance returns 0 for unknown accounts.
func (l *Ledger) ServiceBalance(a AccountID) (v int64) {
	l.read(func(s *Snapshot) { v = s.Services[a] })
	return v
}

// TokenBalance returns 0 for unknown accounts.
func (l *Ledger) TokenBalance(a AccountID) (v int64) {
	l.read(func(s *Snapshot) { v = s.Tokens[a] })
	return v
}

// Listing returns the zero Listing when a has nothing listed.
func (l *Ledger) Listing(a AccountID) (v Listing) {
	l.read(func(s *Snapshot) { v = s.Listings[a] })
	return v
}

// Listed returns the global listed-service counter.
func (l *Ledger) Listed() (v int64) {
	l.read(func(s *Snapshot) { v = s.Listed })
	return v
}

func (l *Ledger) Seq() (v uint64) {
	l.read(func(s *Snapshot) { v = s.Seq })
	return v
}

// Snapshot returns a deep copy of the current state.
func (l *Ledger) Snapshot() (c *Snapshot) {
	l.read(func(s *Snapshot) { c = s.Clone() })
	return c
}
