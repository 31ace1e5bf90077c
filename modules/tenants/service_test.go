package tenants_test

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntroph/crm/modules/tenants"
	"github.com/syntroph/crm/pkg/schema"
	"github.com/syntroph/crm/pkg/tenant"
)

// fakeStore keeps tenant records in memory and mimics the unique
// constraint on schema_name.
type fakeStore struct {
	mu          sync.Mutex
	tenants     []*tenant.Tenant
	memberships []*tenant.Membership

	createTenantErr     error
	createMembershipErr error
}

func (s *fakeStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createTenantErr != nil {
		return s.createTenantErr
	}
	for _, existing := range s.tenants {
		if existing.SchemaName == t.SchemaName {
			return &pgconn.PgError{Code: "23505", ConstraintName: "tenants_schema_name_key"}
		}
	}
	s.tenants = append(s.tenants, t)
	return nil
}

func (s *fakeStore) DeleteTenant(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, t := range s.tenants {
		if t.ID == id {
			s.tenants = slices.Delete(s.tenants, i, i+1)
			return nil
		}
	}
	return tenant.ErrTenantNotFound
}

func (s *fakeStore) ListTenants(context.Context) ([]*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tenants), nil
}

func (s *fakeStore) FindByID(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (s *fakeStore) CreateMembership(_ context.Context, m *tenant.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createMembershipErr != nil {
		return s.createMembershipErr
	}
	for _, existing := range s.memberships {
		if existing.UserID == m.UserID && existing.TenantID == m.TenantID {
			return tenant.ErrMembershipExists
		}
	}
	s.memberships = append(s.memberships, m)
	return nil
}

func (s *fakeStore) CountActiveMemberships(_ context.Context, tenantID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.memberships {
		if m.TenantID == tenantID && m.Active {
			n++
		}
	}
	return n, nil
}

// fakeCatalog mimics the schema catalog with a name set.
type fakeCatalog struct {
	mu      sync.Mutex
	schemas []string
	drops   []string

	createErr error
}

func (c *fakeCatalog) Create(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return false, c.createErr
	}
	if slices.Contains(c.schemas, name) {
		return false, nil
	}
	c.schemas = append(c.schemas, name)
	return true, nil
}

func (c *fakeCatalog) Drop(_ context.Context, name string, cascade bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drops = append(c.drops, name)
	i := slices.Index(c.schemas, name)
	if i < 0 {
		return false, nil
	}
	c.schemas = slices.Delete(c.schemas, i, i+1)
	return true, nil
}

func (c *fakeCatalog) Exists(_ context.Context, name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Contains(c.schemas, name), nil
}

func (c *fakeCatalog) List(context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := slices.Clone(c.schemas)
	slices.Sort(out)
	return out, nil
}

type fakeBootstrap struct {
	mu      sync.Mutex
	schemas []string
	err     error
}

func (b *fakeBootstrap) Bootstrap(_ context.Context, name string) error {
	if b.err != nil {
		return b.err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.schemas = append(b.schemas, name)
	return nil
}

func newService(store *fakeStore, catalog *fakeCatalog, bootstrap *fakeBootstrap) *tenants.Service {
	return tenants.NewService(store, catalog, bootstrap, nil)
}

func register(t *testing.T, svc *tenants.Service, schemaName string) *tenant.Tenant {
	t.Helper()
	tn, err := svc.Register(context.Background(), tenants.RegisterParams{
		Name:       schemaName,
		SchemaName: schemaName,
		MaxMembers: 5,
		OwnerID:    uuid.New(),
	})
	require.NoError(t, err)
	return tn
}

func TestServiceRegister(t *testing.T) {
	t.Parallel()

	t.Run("provisions record, schema, tables, and owner", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		catalog := &fakeCatalog{}
		bootstrap := &fakeBootstrap{}
		svc := newService(store, catalog, bootstrap)

		ownerID := uuid.New()
		tn, err := svc.Register(context.Background(), tenants.RegisterParams{
			Name:       "Acme Corp",
			SchemaName: "acme",
			Domain:     "crm.acme.io",
			MaxMembers: 10,
			OwnerID:    ownerID,
		})
		require.NoError(t, err)

		assert.True(t, tn.Active)
		assert.Equal(t, "acme", tn.SchemaName)
		assert.Contains(t, catalog.schemas, "acme")
		assert.Equal(t, []string{"acme"}, bootstrap.schemas)

		require.Len(t, store.memberships, 1)
		owner := store.memberships[0]
		assert.Equal(t, ownerID, owner.UserID)
		assert.Equal(t, tenant.RoleOwner, owner.Role)
		assert.True(t, owner.Active)
	})

	t.Run("rejects invalid schema name before touching anything", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		catalog := &fakeCatalog{}
		svc := newService(store, catalog, &fakeBootstrap{})

		_, err := svc.Register(context.Background(), tenants.RegisterParams{
			SchemaName: "Drop Table; --",
			OwnerID:    uuid.New(),
		})
		assert.ErrorIs(t, err, schema.ErrInvalidSchemaName)
		assert.Empty(t, store.tenants)
		assert.Empty(t, catalog.schemas)
	})

	t.Run("duplicate record yields conflict", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		catalog := &fakeCatalog{}
		svc := newService(store, catalog, &fakeBootstrap{})

		first := register(t, svc, "acme")
		// The first registration's schema must survive a failed retry of
		// the same name.
		catalog.mu.Lock()
		catalog.schemas = nil
		catalog.mu.Unlock()

		_, err := svc.Register(context.Background(), tenants.RegisterParams{
			SchemaName: "acme",
			OwnerID:    uuid.New(),
		})
		assert.ErrorIs(t, err, tenants.ErrSchemaNameTaken)

		got, findErr := store.FindByID(context.Background(), first.ID)
		require.NoError(t, findErr)
		assert.Equal(t, first.ID, got.ID)
	})

	t.Run("pre-existing physical schema yields conflict without a record", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		catalog := &fakeCatalog{schemas: []string{"leftover"}}
		svc := newService(store, catalog, &fakeBootstrap{})

		_, err := svc.Register(context.Background(), tenants.RegisterParams{
			SchemaName: "leftover",
			OwnerID:    uuid.New(),
		})
		assert.ErrorIs(t, err, tenants.ErrSchemaNameTaken)
		assert.Empty(t, store.tenants)
	})

	t.Run("bootstrap failure rolls back schema and record", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		catalog := &fakeCatalog{}
		bootstrap := &fakeBootstrap{err: assert.AnError}
		svc := newService(store, catalog, bootstrap)

		_, err := svc.Register(context.Background(), tenants.RegisterParams{
			SchemaName: "acme",
			OwnerID:    uuid.New(),
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Empty(t, store.tenants)
		assert.NotContains(t, catalog.schemas, "acme")
		assert.Contains(t, catalog.drops, "acme")
	})

	t.Run("schema creation failure rolls back record", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		catalog := &fakeCatalog{createErr: assert.AnError}
		svc := newService(store, catalog, &fakeBootstrap{})

		_, err := svc.Register(context.Background(), tenants.RegisterParams{
			SchemaName: "acme",
			OwnerID:    uuid.New(),
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Empty(t, store.tenants)
	})
}

func TestServiceDeregister(t *testing.T) {
	t.Parallel()

	t.Run("drops schema then deletes record", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		catalog := &fakeCatalog{}
		svc := newService(store, catalog, &fakeBootstrap{})

		tn := register(t, svc, "acme")
		require.NoError(t, svc.Deregister(context.Background(), tn.ID))

		assert.Empty(t, store.tenants)
		assert.NotContains(t, catalog.schemas, "acme")
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()

		svc := newService(&fakeStore{}, &fakeCatalog{}, &fakeBootstrap{})
		err := svc.Deregister(context.Background(), uuid.New())
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})
}

func TestServiceReconciliation(t *testing.T) {
	t.Parallel()

	store := &fakeStore{}
	catalog := &fakeCatalog{}
	svc := newService(store, catalog, &fakeBootstrap{})

	register(t, svc, "acme")
	register(t, svc, "techstart")

	// A schema without a record, and a record without a schema.
	catalog.mu.Lock()
	catalog.schemas = append(catalog.schemas, "ghost")
	catalog.schemas = slices.DeleteFunc(catalog.schemas, func(s string) bool { return s == "techstart" })
	catalog.mu.Unlock()

	orphans, err := svc.Orphans(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, orphans)

	missing, err := svc.Missing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"techstart"}, missing)
}

func TestServiceAddMember(t *testing.T) {
	t.Parallel()

	t.Run("adds active member with role", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		svc := newService(store, &fakeCatalog{}, &fakeBootstrap{})
		tn := register(t, svc, "acme")

		m, err := svc.AddMember(context.Background(), tn.ID, uuid.New(), tenant.RoleManager)
		require.NoError(t, err)
		assert.Equal(t, tenant.RoleManager, m.Role)
		assert.True(t, m.Active)
	})

	t.Run("rejects unknown role", func(t *testing.T) {
		t.Parallel()

		svc := newService(&fakeStore{}, &fakeCatalog{}, &fakeBootstrap{})
		_, err := svc.AddMember(context.Background(), uuid.New(), uuid.New(), tenant.Role("superuser"))
		assert.ErrorIs(t, err, tenants.ErrInvalidRole)
	})

	t.Run("enforces member limit", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		svc := newService(store, &fakeCatalog{}, &fakeBootstrap{})

		tn, err := svc.Register(context.Background(), tenants.RegisterParams{
			Name:       "tiny",
			SchemaName: "tiny",
			MaxMembers: 2,
			OwnerID:    uuid.New(),
		})
		require.NoError(t, err)

		_, err = svc.AddMember(context.Background(), tn.ID, uuid.New(), tenant.RoleMember)
		require.NoError(t, err)

		_, err = svc.AddMember(context.Background(), tn.ID, uuid.New(), tenant.RoleMember)
		assert.ErrorIs(t, err, tenant.ErrTenantCapacity)
	})

	t.Run("duplicate membership yields conflict", func(t *testing.T) {
		t.Parallel()

		store := &fakeStore{}
		svc := newService(store, &fakeCatalog{}, &fakeBootstrap{})
		tn := register(t, svc, "acme")

		userID := uuid.New()
		_, err := svc.AddMember(context.Background(), tn.ID, userID, tenant.RoleMember)
		require.NoError(t, err)

		_, err = svc.AddMember(context.Background(), tn.ID, userID, tenant.RoleMember)
		assert.ErrorIs(t, err, tenant.ErrMembershipExists)
	})
}
