package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type contextKey string

const (
	// ClinicIDKey carries the resolved clinic scope for the request.
	ClinicIDKey contextKey = "clinic_id"
	// ConnKey carries a request- or transaction-scoped Queryable. When set,
	// repositories route all statements through it instead of the pool, which
	// is how the merge unit of work runs every store inside one pgx.Tx.
	ConnKey contextKey = "db_conn"
)

// Queryable is the subset of pgx operations repositories need. It is
// satisfied by *pgxpool.Pool, *pgxpool.Conn, and pgx.Tx.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// WithConn returns a context whose repositories execute against q.
func WithConn(ctx context.Context, q Queryable) context.Context {
	return context.WithValue(ctx, ConnKey, q)
}

// ConnFromContext retrieves the scoped Queryable from context, or nil.
func ConnFromContext(ctx context.Context) Queryable {
	q, _ := ctx.Value(ConnKey).(Queryable)
	return q
}

// WithClinic returns a context scoped to the given clinic.
func WithClinic(ctx context.Context, clinicID string) context.Context {
	return context.WithValue(ctx, ClinicIDKey, clinicID)
}

// ClinicFromContext retrieves the clinic ID from context.
func ClinicFromContext(ctx context.Context) string {
	cid, _ := ctx.Value(ClinicIDKey).(string)
	return cid
}
