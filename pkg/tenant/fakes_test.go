package tenant_test

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/syntroph/crm/pkg/tenant"
)

// fakeProvider serves tenants from memory and records every lookup so
// tests can assert on chain precedence.
type fakeProvider struct {
	mu          sync.Mutex
	tenants     []*tenant.Tenant
	memberships []*tenant.Membership
	calls       []string
	err         error
}

func (p *fakeProvider) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakeProvider) FindByID(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	p.record("id:" + id.String())
	if p.err != nil {
		return nil, p.err
	}
	for _, t := range p.tenants {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (p *fakeProvider) FindBySchemaName(_ context.Context, name string) (*tenant.Tenant, error) {
	p.record("schema:" + name)
	if p.err != nil {
		return nil, p.err
	}
	for _, t := range p.tenants {
		if t.SchemaName == name {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (p *fakeProvider) FindByDomain(_ context.Context, host string) (*tenant.Tenant, error) {
	p.record("domain:" + host)
	if p.err != nil {
		return nil, p.err
	}
	for _, t := range p.tenants {
		if t.Domain == host {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (p *fakeProvider) FindByNewestMembership(_ context.Context, userID uuid.UUID) (*tenant.Tenant, error) {
	p.record("membership:" + userID.String())
	if p.err != nil {
		return nil, p.err
	}
	var newest *tenant.Membership
	for _, m := range p.memberships {
		if m.UserID == userID && m.Active {
			if newest == nil || m.CreatedAt.After(newest.CreatedAt) {
				newest = m
			}
		}
	}
	if newest == nil {
		return nil, tenant.ErrTenantNotFound
	}
	for _, t := range p.tenants {
		if t.ID == newest.TenantID {
			return t, nil
		}
	}
	return nil, tenant.ErrTenantNotFound
}

func (p *fakeProvider) FindMembership(_ context.Context, userID, tenantID uuid.UUID) (*tenant.Membership, error) {
	p.record("find-membership")
	if p.err != nil {
		return nil, p.err
	}
	for _, m := range p.memberships {
		if m.UserID == userID && m.TenantID == tenantID {
			return m, nil
		}
	}
	return nil, tenant.ErrNoMembership
}

// fakeRunner records schema activations and exposes the active schema to
// the wrapped work through a context value, mimicking a connection-bound
// scope without a database.
type fakeRunner struct {
	mu      sync.Mutex
	schemas []string
	err     error
}

type activeSchemaKey struct{}

func activeSchema(ctx context.Context) string {
	s, _ := ctx.Value(activeSchemaKey{}).(string)
	return s
}

func (f *fakeRunner) RunInSchema(ctx context.Context, name string, fn func(context.Context) error) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	f.schemas = append(f.schemas, name)
	f.mu.Unlock()
	return fn(context.WithValue(ctx, activeSchemaKey{}, name))
}

func (f *fakeRunner) activations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.schemas...)
}

func newTenant(schemaName, domain string, active bool) *tenant.Tenant {
	return &tenant.Tenant{
		ID:         uuid.New(),
		Name:       schemaName,
		SchemaName: schemaName,
		Domain:     domain,
		Active:     active,
		MaxMembers: 5,
		CreatedAt:  time.Now(),
	}
}

func staticUserID(id uuid.UUID) tenant.UserIDFunc {
	return func(context.Context) (uuid.UUID, bool) {
		return id, true
	}
}

func noUserID() tenant.UserIDFunc {
	return func(context.Context) (uuid.UUID, bool) {
		return uuid.UUID{}, false
	}
}

func newRequest(path string, headers map[string]string) *http.Request {
	r, _ := http.NewRequest(http.MethodGet, "http://app.example.com"+path, nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}
