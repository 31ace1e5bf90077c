// Package tenants provisions and deprovisions tenants: the tenant record
// in the public schema, the physical tenant schema, the per-tenant table
// set, and the owner membership move together as one registration.
//
// The Repository doubles as the tenant.Provider the request router
// resolves against. The HTTP surface is meant to be mounted under an
// exempt path prefix so provisioning always runs in the public schema.
package tenants
