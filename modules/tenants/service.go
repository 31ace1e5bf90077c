package tenants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/syntroph/crm/pkg/logger"
	"github.com/syntroph/crm/pkg/pg"
	"github.com/syntroph/crm/pkg/schema"
	"github.com/syntroph/crm/pkg/tenant"
)

var (
	// ErrSchemaNameTaken is returned on registration when the schema name
	// is already claimed, either by a tenant record or by a physical
	// schema left behind in the catalog.
	ErrSchemaNameTaken = errors.New("schema name already taken")

	// ErrInvalidRole is returned when adding a member with an unknown role.
	ErrInvalidRole = errors.New("invalid membership role")
)

// Store is the repository surface the provisioning service needs.
type Store interface {
	CreateTenant(ctx context.Context, t *tenant.Tenant) error
	DeleteTenant(ctx context.Context, id uuid.UUID) error
	ListTenants(ctx context.Context) ([]*tenant.Tenant, error)
	FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
	CreateMembership(ctx context.Context, m *tenant.Membership) error
	CountActiveMemberships(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// Catalog is the schema catalog surface the service needs, satisfied by
// schema.Manager bound to the pool.
type Catalog interface {
	Create(ctx context.Context, name string) (bool, error)
	Drop(ctx context.Context, name string, cascade bool) (bool, error)
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]string, error)
}

// Bootstrapper provisions the per-tenant tables inside a fresh schema.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, schemaName string) error
}

// Service provisions and deprovisions tenants: the tenant record, the
// physical schema, the per-tenant tables, and the owner membership move
// together.
type Service struct {
	store     Store
	catalog   Catalog
	bootstrap Bootstrapper
	log       *slog.Logger
}

// NewService returns a provisioning Service.
func NewService(store Store, catalog Catalog, bootstrap Bootstrapper, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{store: store, catalog: catalog, bootstrap: bootstrap, log: log}
}

// RegisterParams carries a new tenant registration.
type RegisterParams struct {
	Name       string
	SchemaName string
	Domain     string
	MaxMembers int
	OwnerID    uuid.UUID
}

// Register provisions a new tenant: record, schema, tables, owner
// membership. The schema name must be free both as a record and as a
// physical schema; any collision yields ErrSchemaNameTaken. On a partial
// failure the already-created pieces are rolled back so registration never
// leaves a record without a schema or a schema without tables.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*tenant.Tenant, error) {
	if !schema.ValidSchemaName(p.SchemaName) {
		return nil, fmt.Errorf("%w: %q", schema.ErrInvalidSchemaName, p.SchemaName)
	}

	// A schema left behind by an earlier partial deregistration must not
	// be silently adopted by a new tenant.
	exists, err := s.catalog.Exists(ctx, p.SchemaName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %q", ErrSchemaNameTaken, p.SchemaName)
	}

	now := time.Now()
	t := &tenant.Tenant{
		ID:         uuid.New(),
		Name:       p.Name,
		SchemaName: p.SchemaName,
		Domain:     p.Domain,
		Active:     true,
		MaxMembers: p.MaxMembers,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.store.CreateTenant(ctx, t); err != nil {
		if pg.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %q", ErrSchemaNameTaken, p.SchemaName)
		}
		return nil, err
	}

	created, err := s.catalog.Create(ctx, p.SchemaName)
	if err != nil {
		s.rollbackRecord(ctx, t)
		return nil, err
	}
	if !created {
		// Lost a race for the physical schema after winning the row.
		s.rollbackRecord(ctx, t)
		return nil, fmt.Errorf("%w: %q", ErrSchemaNameTaken, p.SchemaName)
	}

	if err := s.bootstrap.Bootstrap(ctx, p.SchemaName); err != nil {
		s.rollbackSchema(ctx, p.SchemaName)
		s.rollbackRecord(ctx, t)
		return nil, err
	}

	owner := &tenant.Membership{
		ID:       uuid.New(),
		UserID:   p.OwnerID,
		TenantID: t.ID,
		Role:     tenant.RoleOwner,
		Active:   true,
	}
	if err := s.store.CreateMembership(ctx, owner); err != nil {
		s.rollbackSchema(ctx, p.SchemaName)
		s.rollbackRecord(ctx, t)
		return nil, err
	}

	s.log.InfoContext(ctx, "tenant registered",
		logger.TenantID(t.ID), logger.Schema(t.SchemaName))
	return t, nil
}

func (s *Service) rollbackRecord(ctx context.Context, t *tenant.Tenant) {
	if err := s.store.DeleteTenant(context.WithoutCancel(ctx), t.ID); err != nil {
		s.log.ErrorContext(ctx, "failed to roll back tenant record",
			logger.TenantID(t.ID), logger.Error(err))
	}
}

func (s *Service) rollbackSchema(ctx context.Context, name string) {
	if _, err := s.catalog.Drop(context.WithoutCancel(ctx), name, true); err != nil {
		s.log.ErrorContext(ctx, "failed to roll back tenant schema",
			logger.Schema(name), logger.Error(err))
	}
}

// Deregister removes the tenant's schema with all contained data, then the
// tenant record. Irreversible.
func (s *Service) Deregister(ctx context.Context, id uuid.UUID) error {
	t, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.catalog.Drop(ctx, t.SchemaName, true); err != nil {
		return err
	}
	if err := s.store.DeleteTenant(ctx, id); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "tenant deregistered",
		logger.TenantID(t.ID), logger.Schema(t.SchemaName))
	return nil
}

// List returns all tenant records.
func (s *Service) List(ctx context.Context) ([]*tenant.Tenant, error) {
	return s.store.ListTenants(ctx)
}

// Orphans returns schema names that exist in the catalog without a tenant
// record, typically left behind by a deregistration that failed between
// the schema drop and the record delete going the other way.
func (s *Service) Orphans(ctx context.Context) ([]string, error) {
	schemas, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	recorded, err := s.recordedSchemaNames(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []string
	for _, name := range schemas {
		if !slices.Contains(recorded, name) {
			orphans = append(orphans, name)
		}
	}
	return orphans, nil
}

// Missing returns schema names that have a tenant record but no physical
// schema. Requests routed to such tenants fail activation until the schema
// is re-created.
func (s *Service) Missing(ctx context.Context) ([]string, error) {
	schemas, err := s.catalog.List(ctx)
	if err != nil {
		return nil, err
	}
	recorded, err := s.recordedSchemaNames(ctx)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range recorded {
		if !slices.Contains(schemas, name) {
			missing = append(missing, name)
		}
	}
	return missing, nil
}

func (s *Service) recordedSchemaNames(ctx context.Context) ([]string, error) {
	all, err := s.store.ListTenants(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for _, t := range all {
		names = append(names, t.SchemaName)
	}
	return names, nil
}

// AddMember links a user to a tenant with the given role, enforcing the
// tenant's member limit. A limit of zero means unlimited.
func (s *Service) AddMember(ctx context.Context, tenantID, userID uuid.UUID, role tenant.Role) (*tenant.Membership, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	t, err := s.store.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if t.MaxMembers > 0 {
		count, err := s.store.CountActiveMemberships(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if count >= t.MaxMembers {
			return nil, fmt.Errorf("%w: limit %d", tenant.ErrTenantCapacity, t.MaxMembers)
		}
	}

	m := &tenant.Membership{
		ID:       uuid.New(),
		UserID:   userID,
		TenantID: tenantID,
		Role:     role,
		Active:   true,
	}
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}
