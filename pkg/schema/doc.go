// Package schema manages PostgreSQL schema-per-tenant isolation.
//
// Each tenant's data lives in its own schema named with the reserved
// "tenant_" prefix; shared records stay in the public schema. The package
// provides three cooperating pieces:
//
//   - Manager: raw catalog operations (create, drop, list, exists) and
//     session search_path control, bound to a Querier.
//   - Scope: a scoped-acquisition wrapper that activates a schema for one
//     unit of work and restores the previous schema on every exit path.
//   - PoolRunner: connection-affine execution over a pgx pool; one
//     connection is checked out per unit of work so the active schema and
//     all queries share a session.
//
// # Usage
//
//	runner := schema.NewPoolRunner(pool, log)
//	err := runner.RunInSchema(ctx, "acme_corp", func(ctx context.Context) error {
//		conn, _ := schema.ConnFromContext(ctx)
//		// unqualified table names now resolve against tenant_acme_corp
//		_, err := conn.Exec(ctx, `INSERT INTO contacts (name) VALUES ($1)`, "Jane")
//		return err
//	})
//
// # Safety
//
// Schema names are validated against a safe identifier charset before any
// DDL string is built; values failing validation are rejected with
// ErrInvalidSchemaName. A failed search_path restore poisons the scope and
// the owning connection is closed instead of being returned to the pool.
package schema
