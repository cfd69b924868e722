package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps a pgxpool.Pool and provides transaction support. It is the entry
// point for all relational persistence (tree summaries, trajectory records).
type DB struct {
	Pool *pgxpool.Pool
}

type Config struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// New creates a new DB instance with the given configuration.
func New(ctx context.Context, cfg Config) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}

	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func (db *DB) Close() {
	db.Pool.Close()
}

// WithTx executes fn within a database transaction, rolling back on error
// and committing on success.
func (db *DB) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Ensure applies the minimal DDL the store layer depends on. Hand-written
// rather than goose/sqlc migrations (neither toolchain runs in this build),
// but idempotent so it is safe to call on every boot.
func (db *DB) Ensure(ctx context.Context) error {
	_, err := db.Pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("ensuring schema: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS reasoning_trees (
	tree_id          BIGINT PRIMARY KEY,
	topic_id         TEXT NOT NULL,
	root_node_id     TEXT,
	node_count       INT NOT NULL DEFAULT 0,
	depth            INT NOT NULL DEFAULT 0,
	integrated_query JSONB,
	stats            JSONB,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS trajectory_records (
	trajectory_id BIGINT PRIMARY KEY,
	document_id   TEXT NOT NULL,
	tree_id       BIGINT REFERENCES reasoning_trees(tree_id),
	status        TEXT NOT NULL,
	steps         JSONB NOT NULL,
	opened_at     TIMESTAMPTZ NOT NULL,
	closed_at     TIMESTAMPTZ,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_trajectory_records_tree_id ON trajectory_records(tree_id);
`
