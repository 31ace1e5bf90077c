// Package tenant resolves inbound requests to tenants and routes each
// request into its tenant's database schema for the duration of handling.
//
// # Architecture
//
// The package is built around four cooperating pieces:
//
//  1. Resolvers - map request signals (headers, host, caller identity) to a
//     tenant through a fixed-precedence chain
//  2. Providers - load tenant and membership records from a data source
//  3. Cache - keeps resolved tenants out of the hot lookup path
//  4. Middleware - orchestrates identification, validation, and schema
//     activation around the rest of the request handling
//
// # Identification chain
//
// The default chain consults, in order: the X-Tenant-ID header (as tenant
// ID, then as schema name), the X-Tenant-Schema header, an exact host
// match against the tenant's external domain, the leftmost host label
// against schema names, and finally the authenticated caller's most recent
// active membership. The first match wins; a match that later fails
// validation (inactive tenant, missing membership) is rejected, not
// re-resolved.
//
// # Usage
//
//	runner := schema.NewPoolRunner(pool, log)
//	mw := tenant.Middleware(repo, runner,
//		tenant.WithSkipPaths([]string{"/health", "/tenants", "/auth"}),
//		tenant.WithUserID(auth.UserIDFromContext),
//		tenant.WithCacheTTL(10*time.Minute),
//	)
//	router.Use(mw)
//
//	func handler(w http.ResponseWriter, r *http.Request) {
//		t := tenant.MustFromContext(r.Context())
//		conn, _ := schema.ConnFromContext(r.Context())
//		// queries on conn run against t's schema
//	}
//
// # Rejections
//
// Requests that cannot be routed are rejected with a structured JSON body
// carrying a machine-checkable reason code (tenant_unresolved,
// tenant_inactive, tenant_forbidden, unauthenticated, catalog_failure).
// Rejection always happens before any schema switch.
package tenant
