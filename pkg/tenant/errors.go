package tenant

import "errors"

var (
	// ErrTenantNotFound is returned when a tenant cannot be found.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrInactiveTenant is returned when a resolved tenant is disabled.
	ErrInactiveTenant = errors.New("tenant is inactive")

	// ErrNoMembership is returned when the authenticated caller has no
	// active membership in the resolved tenant.
	ErrNoMembership = errors.New("no active membership in tenant")

	// ErrUnauthenticated is returned when the tenant requires an
	// authenticated caller and none is present.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrNoTenantInContext is returned when no tenant is found in context.
	ErrNoTenantInContext = errors.New("no tenant in context")

	// ErrMembershipExists is returned when the user is already a member of
	// the tenant.
	ErrMembershipExists = errors.New("membership already exists")

	// ErrTenantCapacity is returned when adding a member would exceed the
	// tenant's member limit.
	ErrTenantCapacity = errors.New("tenant member limit reached")
)
