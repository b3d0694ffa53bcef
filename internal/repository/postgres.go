package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"svcmarket/internal/ledger"
)

// PostgresStore keeps ledger state in the market_config, balances and
// listings tables. Each changeset is one transaction guarded by the seq
// column, so two ledgers sharing a database cannot interleave writes.
type PostgresStore struct {
	dbPool *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{dbPool: db}
}

var _ ledger.Store = (*PostgresStore)(nil)

func (s *PostgresStore) Load(ctx context.Context) (*ledger.Snapshot, error) {
	var (
		cfg    ledger.Config
		owner  string
		listed int64
		seq    int64
	)
	err := s.dbPool.QueryRow(ctx, `
		SELECT owner, unit_cost, fee_rate, refund_rate, service_cap, listing_cap, listed, seq
		FROM market_config WHERE id = 1`).
		Scan(&owner, &cfg.UnitCost, &cfg.FeeRate, &cfg.RefundRate, &cfg.ServiceCap, &cfg.ListingCap, &listed, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Owner = ledger.AccountID(owner)

	snap := ledger.NewSnapshot(cfg)
	snap.Listed = listed
	snap.Seq = uint64(seq)

	rows, err := s.dbPool.Query(ctx, `SELECT account_id, services, tokens FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	for rows.Next() {
		var (
			id               string
			services, tokens int64
		)
		if err := rows.Scan(&id, &services, &tokens); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		if services != 0 {
			snap.Services[ledger.AccountID(id)] = services
		}
		if tokens != 0 {
			snap.Tokens[ledger.AccountID(id)] = tokens
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}

	rows, err = s.dbPool.Query(ctx, `SELECT account_id, quantity, cost FROM listings`)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  string
			lst ledger.Listing
		)
		if err := rows.Scan(&id, &lst.Quantity, &lst.Cost); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		snap.Listings[ledger.AccountID(id)] = lst
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}

	return snap, nil
}

func (s *PostgresStore) Apply(ctx context.Context, cs *ledger.Changeset) error {
	tx, err := s.dbPool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if c := cs.Config; c != nil {
		// owner is only written by the first insert
		_, err := tx.Exec(ctx, `
			INSERT INTO market_config (id, owner, unit_cost, fee_rate, refund_rate, service_cap, listing_cap)
			VALUES (1, $1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				unit_cost = EXCLUDED.unit_cost,
				fee_rate = EXCLUDED.fee_rate,
				refund_rate = EXCLUDED.refund_rate,
				service_cap = EXCLUDED.service_cap,
				listing_cap = EXCLUDED.listing_cap,
				updated_at = now()`,
			string(c.Owner), c.UnitCost, c.FeeRate, c.RefundRate, c.ServiceCap, c.ListingCap)
		if err != nil {
			return fmt.Errorf("write config: %w", err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE market_config SET seq = $1, listed = COALESCE($2, listed)
		WHERE id = 1 AND seq = $3`,
		int64(cs.Seq), cs.Listed, int64(cs.Seq)-1)
	if err != nil {
		return fmt.Errorf("advance seq: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("apply seq %d: %w", cs.Seq, ErrSeqConflict)
	}

	batch := &pgx.Batch{}
	for id, v := range cs.Services {
		batch.Queue(`
			INSERT INTO balances (account_id, services) VALUES ($1, $2)
			ON CONFLICT (account_id) DO UPDATE SET services = EXCLUDED.services`, string(id), v)
	}
	for id, v := range cs.Tokens {
		batch.Queue(`
			INSERT INTO balances (account_id, tokens) VALUES ($1, $2)
			ON CONFLICT (account_id) DO UPDATE SET tokens = EXCLUDED.tokens`, string(id), v)
	}
	for id, lst := range cs.Listings {
		if lst.Empty() {
			batch.Queue(`DELETE FROM listings WHERE account_id = $1`, string(id))
			continue
		}
		batch.Queue(`
			INSERT INTO listings (account_id, quantity, cost) VALUES ($1, $2, $3)
			ON CONFLICT (account_id) DO UPDATE SET quantity = EXCLUDED.quantity, cost = EXCLUDED.cost`,
			string(id), lst.Quantity, lst.Cost)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
