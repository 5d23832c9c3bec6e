// Package storage provides the PostgreSQL-backed persistence layer for the
// event-to-intelligence pipeline: the Blocker Store (C2) and the entity
// stores the Conflict, Feature, and Health Engines read and write through.
package storage

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/go-faster/errors"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a pooled connection to the pipeline's relational store. It is
// shared by all engine runs and the webhook ingestor (§5 "bounded DB
// connection pool").
type DB struct {
	*sqlx.DB
	pool *pgxpool.Pool
}

// Open connects to Postgres via the pgx driver, registered through
// pgx/v5/stdlib so sqlx's ergonomics (NamedExec, scanning into structs via
// `db` tags) work exactly the way the rest of the pack uses sqlx+pgx.
func Open(ctx context.Context, dsn string, poolSize int) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse dsn")
	}
	if poolSize > 0 {
		cfg.MaxConns = int32(poolSize)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open pool")
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	sx := sqlx.NewDb(sqlDB, "pgx")

	return &DB{DB: sx, pool: pool}, nil
}

// Migrate applies the embedded schema. It is idempotent: every statement is
// `CREATE ... IF NOT EXISTS`, so re-running it on every process start is safe.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, schemaSQL); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

// Close releases the pool.
func (d *DB) Close() error {
	if d.pool != nil {
		d.pool.Close()
	}
	return d.DB.Close()
}
