package tenant

import (
	"log/slog"
	"net/http"
	"time"
)

// ErrorHandler handles errors that occur during tenant routing.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

// config holds middleware configuration.
type config struct {
	resolver     Resolver
	cache        Cache
	cacheTTL     time.Duration
	errorHandler ErrorHandler
	skipPaths    []string
	requireAuth  bool
	userID       UserIDFunc
	logger       *slog.Logger
	debugHeaders bool
}

// Option configures the middleware.
type Option func(*config)

// WithResolver replaces the default identification chain.
func WithResolver(r Resolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

// WithCache sets a custom cache implementation.
func WithCache(cache Cache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

// WithCacheTTL sets how long resolved tenants stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *config) {
		if ttl > 0 {
			c.cacheTTL = ttl
		}
	}
}

// WithErrorHandler sets a custom rejection/error handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *config) {
		c.errorHandler = handler
	}
}

// WithSkipPaths sets path prefixes that bypass tenant resolution entirely
// and run in the public schema (health checks, registration, auth, static
// assets).
func WithSkipPaths(paths []string) Option {
	return func(c *config) {
		c.skipPaths = paths
	}
}

// WithUserID registers the extractor for the authenticated caller's
// identity. When set, callers must hold an active membership in the
// resolved tenant, and the membership fallback joins the identification
// chain.
func WithUserID(fn UserIDFunc) Option {
	return func(c *config) {
		c.userID = fn
	}
}

// WithRequireAuth rejects requests without an authenticated caller on
// non-exempt paths.
func WithRequireAuth(require bool) Option {
	return func(c *config) {
		c.requireAuth = require
	}
}

// WithLogger sets a custom logger for the middleware.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithDebugHeaders annotates responses with the resolved tenant, caller,
// and role. The headers are suppressed in production regardless of this
// option; enable only for development environments.
func WithDebugHeaders() Option {
	return func(c *config) {
		c.debugHeaders = true
	}
}
