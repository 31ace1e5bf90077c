package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Tenant represents a tenant in the system with the information needed for
// request routing and provisioning. The record itself lives in the public
// schema; its business data lives in the schema named by SchemaName.
type Tenant struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	SchemaName string    `json:"schema_name"`
	Domain     string    `json:"domain,omitempty"`
	Active     bool      `json:"active"`
	MaxMembers int       `json:"max_members"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Role is a ranked membership role within a tenant.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleAdmin   Role = "admin"
	RoleManager Role = "manager"
	RoleMember  Role = "member"
	RoleGuest   Role = "guest"
)

var roleRank = map[Role]int{
	RoleOwner:   5,
	RoleAdmin:   4,
	RoleManager: 3,
	RoleMember:  2,
	RoleGuest:   1,
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r ranks equal to or above other.
// Unknown roles rank below every known role.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}

// Membership links a global user identity to a tenant. At most one
// membership exists per (user, tenant) pair, enforced by a uniqueness
// constraint so concurrent creation races cannot double-insert.
type Membership struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Role      Role      `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider loads tenant information from a data source. Tenant lookups
// return ErrTenantNotFound when no record matches; the resolution chain
// relies on that to fall through to the next identification method.
// FindMembership returns ErrNoMembership when the pair is not linked.
type Provider interface {
	// FindByID retrieves a tenant by its unique identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// FindBySchemaName retrieves a tenant by its schema name.
	FindBySchemaName(ctx context.Context, name string) (*Tenant, error)

	// FindByDomain retrieves a tenant whose external domain exactly
	// matches host.
	FindByDomain(ctx context.Context, host string) (*Tenant, error)

	// FindByNewestMembership retrieves the tenant of the user's most
	// recently created active membership.
	FindByNewestMembership(ctx context.Context, userID uuid.UUID) (*Tenant, error)

	// FindMembership retrieves the membership linking the user to the
	// tenant, active or not.
	FindMembership(ctx context.Context, userID, tenantID uuid.UUID) (*Membership, error)
}

// UserIDFunc extracts the authenticated caller's identity from the request
// context. The second return value reports whether a caller is present;
// how identity gets into the context is the auth layer's concern.
type UserIDFunc func(ctx context.Context) (uuid.UUID, bool)

// SchemaRunner executes fn with the given tenant schema active for the
// whole call. Implementations guarantee that activation happens before fn
// runs and that the previously active schema is restored on every exit
// path (see pkg/schema.PoolRunner).
type SchemaRunner interface {
	RunInSchema(ctx context.Context, schemaName string, fn func(context.Context) error) error
}
