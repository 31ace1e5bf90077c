package tenant

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Default identification headers.
const (
	// HeaderTenantID carries an opaque tenant identity token: a tenant ID,
	// or a schema name as a fallback interpretation.
	HeaderTenantID = "X-Tenant-ID"

	// HeaderTenantSchema carries a tenant schema name.
	HeaderTenantSchema = "X-Tenant-Schema"
)

// Resolver maps an inbound request to a tenant. A nil tenant with a nil
// error means no identification signal matched ("unresolved"); rejecting
// unresolved requests is the router's job, not the resolver's.
type Resolver interface {
	Resolve(r *http.Request) (*Tenant, error)
}

// ResolverFunc is an adapter to allow ordinary functions as Resolvers.
type ResolverFunc func(r *http.Request) (*Tenant, error)

// Resolve calls the function.
func (f ResolverFunc) Resolve(r *http.Request) (*Tenant, error) {
	return f(r)
}

// ChainResolver tries each resolver in order; the first resolved tenant
// wins and later resolvers are never consulted. A resolver that finds no
// match falls through without error. Lookup failures other than a miss
// abort the chain.
type ChainResolver struct {
	resolvers []Resolver
}

// NewChainResolver creates a resolver chain.
func NewChainResolver(resolvers ...Resolver) *ChainResolver {
	return &ChainResolver{resolvers: resolvers}
}

// Resolve runs the chain.
func (c *ChainResolver) Resolve(r *http.Request) (*Tenant, error) {
	for _, resolver := range c.resolvers {
		t, err := resolver.Resolve(r)
		if err != nil {
			return nil, err
		}
		if t != nil {
			return t, nil
		}
	}
	return nil, nil
}

// NewDefaultChain builds the standard identification chain, in fixed
// precedence order:
//
//  1. X-Tenant-ID header, as tenant ID first, then as schema name
//  2. X-Tenant-Schema header
//  3. exact host match against the tenant's domain
//  4. leftmost host label match against the tenant's schema name
//  5. the authenticated caller's most recent active membership
//
// userID may be nil, which disables the membership fallback.
func NewDefaultChain(p Provider, userID UserIDFunc) *ChainResolver {
	resolvers := []Resolver{
		TokenHeaderResolver(p, HeaderTenantID),
		SchemaHeaderResolver(p, HeaderTenantSchema),
		DomainResolver(p),
		SubdomainResolver(p),
	}
	if userID != nil {
		resolvers = append(resolvers, MembershipResolver(p, userID))
	}
	return NewChainResolver(resolvers...)
}

// TokenHeaderResolver resolves the opaque token header. The value is first
// interpreted as a tenant ID; when that lookup misses (or the value is not
// a valid ID) the same value is reinterpreted as a schema name.
func TokenHeaderResolver(p Provider, header string) ResolverFunc {
	return func(r *http.Request) (*Tenant, error) {
		value := r.Header.Get(header)
		if value == "" {
			return nil, nil
		}

		if id, err := uuid.Parse(value); err == nil {
			t, err := p.FindByID(r.Context(), id)
			if err == nil {
				return t, nil
			}
			if !errors.Is(err, ErrTenantNotFound) {
				return nil, err
			}
		}

		t, err := p.FindBySchemaName(r.Context(), value)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return t, nil
	}
}

// SchemaHeaderResolver resolves the schema-name header by exact match.
func SchemaHeaderResolver(p Provider, header string) ResolverFunc {
	return func(r *http.Request) (*Tenant, error) {
		value := r.Header.Get(header)
		if value == "" {
			return nil, nil
		}

		t, err := p.FindBySchemaName(r.Context(), value)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return t, nil
	}
}

// DomainResolver resolves the request host against tenants' external domains.
func DomainResolver(p Provider) ResolverFunc {
	return func(r *http.Request) (*Tenant, error) {
		host := hostWithoutPort(r.Host)
		if host == "" {
			return nil, nil
		}

		t, err := p.FindByDomain(r.Context(), host)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return t, nil
	}
}

// SubdomainResolver matches the leftmost host label against tenant schema
// names, e.g. "acme" from "acme.example.com". Bare hosts without a dot and
// the www label never identify a tenant.
func SubdomainResolver(p Provider) ResolverFunc {
	return func(r *http.Request) (*Tenant, error) {
		host := hostWithoutPort(r.Host)
		label, _, found := strings.Cut(host, ".")
		if !found || label == "" || label == "www" {
			return nil, nil
		}

		t, err := p.FindBySchemaName(r.Context(), label)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return t, nil
	}
}

// MembershipResolver falls back to the authenticated caller's most recently
// joined active tenant. Requests without a caller fall through.
func MembershipResolver(p Provider, userID UserIDFunc) ResolverFunc {
	return func(r *http.Request) (*Tenant, error) {
		id, ok := userID(r.Context())
		if !ok {
			return nil, nil
		}

		t, err := p.FindByNewestMembership(r.Context(), id)
		if err != nil {
			if errors.Is(err, ErrTenantNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return t, nil
	}
}

func hostWithoutPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return host
}
