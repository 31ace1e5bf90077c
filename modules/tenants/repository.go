package tenants

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/syntroph/crm/pkg/pg"
	"github.com/syntroph/crm/pkg/schema"
	"github.com/syntroph/crm/pkg/tenant"
)

// Repository persists tenant and membership records in the public schema.
// It is the concrete tenant.Provider backing request resolution; run it on
// the pool, never on a schema-bound connection.
type Repository struct {
	db schema.Querier
}

// NewRepository returns a Repository over db.
func NewRepository(db schema.Querier) *Repository {
	return &Repository{db: db}
}

const tenantColumns = `id, name, schema_name, COALESCE(domain, ''), active, max_members, created_at, updated_at`

func (r *Repository) scanTenant(row interface{ Scan(dest ...any) error }) (*tenant.Tenant, error) {
	var t tenant.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.SchemaName, &t.Domain, &t.Active, &t.MaxMembers, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("scan tenant: %w", err)
	}
	return &t, nil
}

// CreateTenant inserts a tenant record. A schema name or domain collision
// surfaces as a duplicate key error for the caller to classify.
func (r *Repository) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tenants (id, name, schema_name, domain, active, max_members)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		t.ID, t.Name, t.SchemaName, t.Domain, t.Active, t.MaxMembers,
	)
	if err != nil {
		return fmt.Errorf("insert tenant %q: %w", t.SchemaName, err)
	}
	return nil
}

// DeleteTenant removes the tenant record and, via cascade, its memberships.
func (r *Repository) DeleteTenant(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tenant %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return tenant.ErrTenantNotFound
	}
	return nil
}

// ListTenants returns every tenant record ordered by schema name.
func (r *Repository) ListTenants(ctx context.Context) ([]*tenant.Tenant, error) {
	rows, err := r.db.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY schema_name`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []*tenant.Tenant
	for rows.Next() {
		t, err := r.scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	return out, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return r.scanTenant(r.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id))
}

func (r *Repository) FindBySchemaName(ctx context.Context, name string) (*tenant.Tenant, error) {
	return r.scanTenant(r.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE schema_name = $1`, name))
}

func (r *Repository) FindByDomain(ctx context.Context, host string) (*tenant.Tenant, error) {
	return r.scanTenant(r.db.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE domain = $1`, host))
}

func (r *Repository) FindByNewestMembership(ctx context.Context, userID uuid.UUID) (*tenant.Tenant, error) {
	return r.scanTenant(r.db.QueryRow(ctx,
		`SELECT t.id, t.name, t.schema_name, COALESCE(t.domain, ''), t.active, t.max_members, t.created_at, t.updated_at
		 FROM tenants t
		 JOIN tenant_memberships m ON m.tenant_id = t.id
		 WHERE m.user_id = $1 AND m.active AND t.active
		 ORDER BY m.created_at DESC
		 LIMIT 1`, userID))
}

func (r *Repository) FindMembership(ctx context.Context, userID, tenantID uuid.UUID) (*tenant.Membership, error) {
	var m tenant.Membership
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, tenant_id, role, active, created_at
		 FROM tenant_memberships WHERE user_id = $1 AND tenant_id = $2`,
		userID, tenantID,
	).Scan(&m.ID, &m.UserID, &m.TenantID, &m.Role, &m.Active, &m.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, tenant.ErrNoMembership
		}
		return nil, fmt.Errorf("find membership: %w", err)
	}
	return &m, nil
}

// CreateMembership links a user to a tenant. The unique constraint on
// (user_id, tenant_id) turns concurrent double-inserts into
// tenant.ErrMembershipExists.
func (r *Repository) CreateMembership(ctx context.Context, m *tenant.Membership) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO tenant_memberships (id, user_id, tenant_id, role, active)
		 VALUES ($1, $2, $3, $4, $5)`,
		m.ID, m.UserID, m.TenantID, m.Role, m.Active,
	)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return tenant.ErrMembershipExists
		}
		return fmt.Errorf("insert membership: %w", err)
	}
	return nil
}

// CountActiveMemberships returns the number of active members in a tenant.
func (r *Repository) CountActiveMemberships(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM tenant_memberships WHERE tenant_id = $1 AND active`,
		tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count memberships: %w", err)
	}
	return n, nil
}
