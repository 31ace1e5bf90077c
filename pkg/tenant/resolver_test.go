package tenant_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntroph/crm/pkg/tenant"
)

func TestTokenHeaderResolver(t *testing.T) {
	t.Parallel()

	t.Run("resolves by tenant id", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("acme", "", true)
		p := &fakeProvider{tenants: []*tenant.Tenant{acme}}
		resolver := tenant.TokenHeaderResolver(p, tenant.HeaderTenantID)

		req := httptest.NewRequest("GET", "http://api.example.com/contacts", nil)
		req.Header.Set(tenant.HeaderTenantID, acme.ID.String())

		got, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, acme, got)
	})

	t.Run("falls back to schema name when id misses", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("acme", "", true)
		p := &fakeProvider{tenants: []*tenant.Tenant{acme}}
		resolver := tenant.TokenHeaderResolver(p, tenant.HeaderTenantID)

		// A valid UUID that matches no tenant reinterprets as schema name.
		req := httptest.NewRequest("GET", "http://api.example.com/contacts", nil)
		req.Header.Set(tenant.HeaderTenantID, uuid.NewString())

		got, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Nil(t, got)

		req.Header.Set(tenant.HeaderTenantID, "acme")
		got, err = resolver.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, acme, got)
	})

	t.Run("no header falls through without lookups", func(t *testing.T) {
		t.Parallel()

		p := &fakeProvider{}
		resolver := tenant.TokenHeaderResolver(p, tenant.HeaderTenantID)

		got, err := resolver.Resolve(httptest.NewRequest("GET", "http://api.example.com/", nil))
		require.NoError(t, err)
		assert.Nil(t, got)
		assert.Empty(t, p.calls)
	})

	t.Run("provider failure aborts", func(t *testing.T) {
		t.Parallel()

		p := &fakeProvider{err: assert.AnError}
		resolver := tenant.TokenHeaderResolver(p, tenant.HeaderTenantID)

		req := httptest.NewRequest("GET", "http://api.example.com/", nil)
		req.Header.Set(tenant.HeaderTenantID, "acme")

		_, err := resolver.Resolve(req)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestSchemaHeaderResolver(t *testing.T) {
	t.Parallel()

	acme := newTenant("acme_corp", "", true)
	p := &fakeProvider{tenants: []*tenant.Tenant{acme}}
	resolver := tenant.SchemaHeaderResolver(p, tenant.HeaderTenantSchema)

	req := httptest.NewRequest("GET", "http://api.example.com/contacts", nil)
	req.Header.Set(tenant.HeaderTenantSchema, "acme_corp")

	got, err := resolver.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, acme, got)

	req.Header.Set(tenant.HeaderTenantSchema, "ghost")
	got, err = resolver.Resolve(req)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestDomainResolver(t *testing.T) {
	t.Parallel()

	acme := newTenant("acme", "crm.acme.io", true)
	p := &fakeProvider{tenants: []*tenant.Tenant{acme}}
	resolver := tenant.DomainResolver(p)

	t.Run("exact host match", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("GET", "http://crm.acme.io/contacts", nil)
		req.Host = "crm.acme.io"

		got, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, acme, got)
	})

	t.Run("port is stripped", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("GET", "http://crm.acme.io:8443/contacts", nil)
		req.Host = "crm.acme.io:8443"

		got, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, acme, got)
	})
}

func TestSubdomainResolver(t *testing.T) {
	t.Parallel()

	acme := newTenant("acme", "", true)
	p := &fakeProvider{tenants: []*tenant.Tenant{acme}}
	resolver := tenant.SubdomainResolver(p)

	t.Run("leftmost label matches schema name", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("GET", "http://acme.example.com/contacts", nil)
		req.Host = "acme.example.com"

		got, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, acme, got)
	})

	t.Run("bare host falls through", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("GET", "http://localhost/contacts", nil)
		req.Host = "localhost"

		got, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("www never identifies a tenant", func(t *testing.T) {
		t.Parallel()

		req := httptest.NewRequest("GET", "http://www.example.com/contacts", nil)
		req.Host = "www.example.com"

		got, err := resolver.Resolve(req)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestMembershipResolver(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	older := newTenant("older", "", true)
	newer := newTenant("newer", "", true)
	p := &fakeProvider{
		tenants: []*tenant.Tenant{older, newer},
		memberships: []*tenant.Membership{
			{ID: uuid.New(), UserID: userID, TenantID: older.ID, Role: tenant.RoleOwner, Active: true, CreatedAt: time.Now().Add(-time.Hour)},
			{ID: uuid.New(), UserID: userID, TenantID: newer.ID, Role: tenant.RoleMember, Active: true, CreatedAt: time.Now()},
		},
	}

	t.Run("picks most recently joined active tenant", func(t *testing.T) {
		t.Parallel()

		resolver := tenant.MembershipResolver(p, staticUserID(userID))
		got, err := resolver.Resolve(httptest.NewRequest("GET", "http://api.example.com/", nil))
		require.NoError(t, err)
		assert.Equal(t, newer, got)
	})

	t.Run("unauthenticated caller falls through", func(t *testing.T) {
		t.Parallel()

		resolver := tenant.MembershipResolver(p, noUserID())
		got, err := resolver.Resolve(httptest.NewRequest("GET", "http://api.example.com/", nil))
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestDefaultChainPrecedence(t *testing.T) {
	t.Parallel()

	t.Run("schema header resolves acme_corp", func(t *testing.T) {
		t.Parallel()

		acme := newTenant("acme_corp", "", true)
		p := &fakeProvider{tenants: []*tenant.Tenant{acme}}
		chain := tenant.NewDefaultChain(p, nil)

		req := httptest.NewRequest("GET", "http://app.example.com/contacts", nil)
		req.Header.Set(tenant.HeaderTenantSchema, "acme_corp")

		got, err := chain.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, acme, got)
	})

	t.Run("domain match wins over subdomain heuristic", func(t *testing.T) {
		t.Parallel()

		// One tenant owns the full domain, a different one owns the
		// schema name matching the subdomain label. The domain step
		// runs first, so it wins.
		domainOwner := newTenant("domain_owner", "acme.example.com", true)
		subdomainOwner := newTenant("acme", "", true)
		p := &fakeProvider{tenants: []*tenant.Tenant{domainOwner, subdomainOwner}}
		chain := tenant.NewDefaultChain(p, nil)

		req := httptest.NewRequest("GET", "http://acme.example.com/contacts", nil)
		req.Host = "acme.example.com"

		got, err := chain.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, domainOwner, got)
	})

	t.Run("token header wins over every other signal", func(t *testing.T) {
		t.Parallel()

		byHeader := newTenant("byheader", "", true)
		byDomain := newTenant("bydomain", "acme.example.com", true)
		p := &fakeProvider{tenants: []*tenant.Tenant{byHeader, byDomain}}
		chain := tenant.NewDefaultChain(p, nil)

		req := httptest.NewRequest("GET", "http://acme.example.com/contacts", nil)
		req.Host = "acme.example.com"
		req.Header.Set(tenant.HeaderTenantID, byHeader.ID.String())

		got, err := chain.Resolve(req)
		require.NoError(t, err)
		assert.Equal(t, byHeader, got)

		// Later steps were never consulted.
		assert.NotContains(t, p.calls, "domain:acme.example.com")
	})

	t.Run("all steps miss yields unresolved, not an error", func(t *testing.T) {
		t.Parallel()

		p := &fakeProvider{}
		chain := tenant.NewDefaultChain(p, noUserID())

		req := httptest.NewRequest("GET", "http://unknown.example.com/contacts", nil)
		req.Host = "unknown.example.com"

		got, err := chain.Resolve(req)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
