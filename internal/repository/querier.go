package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool and pgx.Tx that a dispatch callback
// needs to write under the caller's open transaction. ClaimDue passes its
// transaction through as a Querier so the overlap-instance increment and
// queue push commit atomically with the claim, on the same connection that
// already holds the row's FOR UPDATE lock — a second connection writing the
// same row through the pool would block on that lock until the claiming
// transaction commits, which can't happen until dispatch returns.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
