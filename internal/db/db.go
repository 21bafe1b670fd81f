// Package db defines the minimal database access interface shared by all
// stores. Both *pgxpool.Pool and *pgxpool.Conn satisfy DBTX, so stores can be
// backed by the shared pool or a dedicated connection interchangeably.
package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx operations stores depend on.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
