// Package postgres provides the PostgreSQL persistence adapters.
//
// It implements the domain store ports with idempotent batched upserts,
// keeps raw payloads alongside canonical listings, and serves the query
// API from read-only transactions.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}
