package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolRunner executes units of work with a tenant schema active on a
// single pooled connection. It checks out one connection for the whole
// call so that SetSearchPath and every query the work issues share one
// session; no operation spans a pool-cycled connection.
type PoolRunner struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPoolRunner returns a PoolRunner over the given pool.
func NewPoolRunner(pool *pgxpool.Pool, log *slog.Logger) *PoolRunner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &PoolRunner{pool: pool, log: log}
}

// RunInSchema acquires a connection, activates the named schema on it, and
// runs fn with the connection available via ConnFromContext. The connection
// is released back to the pool only after the previous schema has been
// restored; if the restore fails the connection is hijacked and closed
// instead of released, so a tenant-bound session can never be handed to
// another request.
func (r *PoolRunner) RunInSchema(ctx context.Context, name string, fn func(context.Context) error) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	scope := NewScope(NewManager(conn, r.log), r.log)

	workErr := scope.RunInSchema(ctx, name, func(ctx context.Context) error {
		return fn(withConn(ctx, conn))
	})

	if scope.Poisoned() {
		// Indeterminate search_path: destroy the session rather than
		// returning it to the pool.
		_ = conn.Hijack().Close(context.WithoutCancel(ctx))
	} else {
		conn.Release()
	}

	return workErr
}

type connContextKey struct{}

func withConn(ctx context.Context, conn *pgxpool.Conn) context.Context {
	return context.WithValue(ctx, connContextKey{}, conn)
}

// ConnFromContext returns the schema-bound connection for the current unit
// of work. Queries against tenant data must go through this connection;
// any other connection resolves unqualified table names against a
// different session's search_path.
func ConnFromContext(ctx context.Context) (*pgxpool.Conn, bool) {
	conn, ok := ctx.Value(connContextKey{}).(*pgxpool.Conn)
	return conn, ok
}
