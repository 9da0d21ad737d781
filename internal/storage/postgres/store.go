package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chainstate/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS journal_entries (
	id BIGSERIAL PRIMARY KEY,
	chain_id BIGINT NOT NULL,
	kind TEXT NOT NULL,
	ref TEXT NOT NULL,
	status TEXT NOT NULL,
	tx_hash TEXT,
	method TEXT,
	address TEXT,
	error TEXT,
	recorded_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS transaction_state (
	chain_id BIGINT NOT NULL,
	tx_id BIGINT NOT NULL,
	status TEXT NOT NULL,
	tx_hash TEXT,
	error TEXT,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, tx_id)
);`

// Store provides Postgres persistence for the lifecycle journal.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore opens a connection pool for dsn.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close closes the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the journal tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// PutEntries appends journal entries and keeps the latest status of every
// transaction in transaction_state.
func (s *Store) PutEntries(ctx context.Context, entries []model.JournalEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	queued := 0
	for _, e := range entries {
		recordedAt, err := time.Parse(time.RFC3339Nano, e.RecordedAt)
		if err != nil {
			return fmt.Errorf("parse recorded_at %q: %w", e.RecordedAt, err)
		}
		batch.Queue(`
			INSERT INTO journal_entries (
				chain_id, kind, ref, status, tx_hash, method, address, error, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			int64(e.ChainID),
			e.Kind,
			e.Ref,
			e.Status,
			nullable(e.TxHash),
			nullable(e.Method),
			nullable(e.Address),
			nullable(e.Error),
			recordedAt,
		)
		queued++

		if e.Kind != model.EntryTransaction {
			continue
		}
		batch.Queue(`
			INSERT INTO transaction_state (chain_id, tx_id, status, tx_hash, error, updated_at)
			VALUES ($1, $2::bigint, $3, $4, $5, $6)
			ON CONFLICT (chain_id, tx_id)
			DO UPDATE SET
				status = EXCLUDED.status,
				tx_hash = COALESCE(EXCLUDED.tx_hash, transaction_state.tx_hash),
				error = EXCLUDED.error,
				updated_at = EXCLUDED.updated_at
		`,
			int64(e.ChainID),
			e.Ref,
			e.Status,
			nullable(e.TxHash),
			nullable(e.Error),
			recordedAt,
		)
		queued++
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < queued; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
