package tenant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CachedProvider wraps a Provider with a Cache for the tenant lookups the
// resolution chain performs. Membership lookups are never cached: they
// decide authorization and must always be fresh.
type CachedProvider struct {
	next  Provider
	cache Cache
	ttl   time.Duration
}

// NewCachedProvider returns a Provider that consults the cache before next.
func NewCachedProvider(next Provider, cache Cache, ttl time.Duration) *CachedProvider {
	if cache == nil {
		cache = NewNoOpCache()
	}
	return &CachedProvider{next: next, cache: cache, ttl: ttl}
}

func (p *CachedProvider) FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	return p.lookup(ctx, "id:"+id.String(), func() (*Tenant, error) {
		return p.next.FindByID(ctx, id)
	})
}

func (p *CachedProvider) FindBySchemaName(ctx context.Context, name string) (*Tenant, error) {
	return p.lookup(ctx, "schema:"+name, func() (*Tenant, error) {
		return p.next.FindBySchemaName(ctx, name)
	})
}

func (p *CachedProvider) FindByDomain(ctx context.Context, host string) (*Tenant, error) {
	return p.lookup(ctx, "domain:"+host, func() (*Tenant, error) {
		return p.next.FindByDomain(ctx, host)
	})
}

func (p *CachedProvider) FindByNewestMembership(ctx context.Context, userID uuid.UUID) (*Tenant, error) {
	return p.next.FindByNewestMembership(ctx, userID)
}

func (p *CachedProvider) FindMembership(ctx context.Context, userID, tenantID uuid.UUID) (*Membership, error) {
	return p.next.FindMembership(ctx, userID, tenantID)
}

// Invalidate removes every cached key for the tenant. Call it after
// deactivating or deregistering a tenant so stale entries cannot route
// requests into a dropped schema.
func (p *CachedProvider) Invalidate(ctx context.Context, t *Tenant) {
	if t == nil {
		return
	}
	p.cache.Delete(ctx, "id:"+t.ID.String())
	p.cache.Delete(ctx, "schema:"+t.SchemaName)
	if t.Domain != "" {
		p.cache.Delete(ctx, "domain:"+t.Domain)
	}
}

func (p *CachedProvider) lookup(ctx context.Context, key string, load func() (*Tenant, error)) (*Tenant, error) {
	if t, ok := p.cache.Get(ctx, key); ok {
		return t, nil
	}

	t, err := load()
	if err != nil {
		return nil, err
	}

	p.cache.Set(ctx, key, t, p.ttl)
	return t, nil
}
