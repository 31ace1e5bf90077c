package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syntroph/crm/pkg/environment"
	"github.com/syntroph/crm/pkg/logger"
)

// Rejection reason codes returned to clients. Machine-checkable: clients
// and tests match on the code, not the message.
const (
	ReasonUnresolved      = "tenant_unresolved"
	ReasonInactive        = "tenant_inactive"
	ReasonForbidden       = "tenant_forbidden"
	ReasonUnauthenticated = "unauthenticated"
	ReasonCatalogFailure  = "catalog_failure"
)

// Debug annotation headers, emitted only when debug headers are enabled
// and the environment is not production.
const (
	headerCurrentTenant = "X-Current-Tenant"
	headerCurrentUser   = "X-Current-User"
	headerUserRole      = "X-User-Role"
)

// Middleware routes every request to its tenant's schema. The request
// walks a fixed progression: identification (resolver chain), validation
// (tenant active, caller membership), then activation (the rest of the
// request handling runs inside runner.RunInSchema). Rejections happen
// before any schema switch; a rejected request never touches
// tenant-scoped state.
//
// Paths matching a configured skip prefix bypass resolution entirely and
// run in the public schema.
func Middleware(provider Provider, runner SchemaRunner, opts ...Option) func(http.Handler) http.Handler {
	cfg := &config{
		cache:        NewInMemoryCache(),
		cacheTTL:     5 * time.Minute,
		errorHandler: DefaultErrorHandler,
		logger:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	cached := NewCachedProvider(provider, cfg.cache, cfg.cacheTTL)
	resolver := cfg.resolver
	if resolver == nil {
		resolver = NewDefaultChain(cached, cfg.userID)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, skip := range cfg.skipPaths {
				if strings.HasPrefix(r.URL.Path, skip) {
					next.ServeHTTP(w, r)
					return
				}
			}

			t, err := resolver.Resolve(r)
			if err != nil {
				cfg.logger.ErrorContext(r.Context(), "tenant resolution failed", logger.Error(err))
				cfg.errorHandler(w, r, err)
				return
			}
			if t == nil {
				cfg.errorHandler(w, r, ErrTenantNotFound)
				return
			}
			if !t.Active {
				cfg.logger.WarnContext(r.Context(), "inactive tenant rejected", logger.Schema(t.SchemaName))
				cfg.errorHandler(w, r, ErrInactiveTenant)
				return
			}

			var (
				callerID   uuid.UUID
				authed     bool
				membership *Membership
			)
			if cfg.userID != nil {
				callerID, authed = cfg.userID(r.Context())
			}
			switch {
			case authed:
				m, err := cached.FindMembership(r.Context(), callerID, t.ID)
				if err != nil {
					if errors.Is(err, ErrNoMembership) {
						cfg.logger.WarnContext(r.Context(), "caller has no membership in tenant",
							logger.UserID(callerID), logger.Schema(t.SchemaName))
						cfg.errorHandler(w, r, ErrNoMembership)
						return
					}
					cfg.errorHandler(w, r, err)
					return
				}
				if !m.Active {
					cfg.errorHandler(w, r, ErrNoMembership)
					return
				}
				membership = m
			case cfg.requireAuth:
				cfg.errorHandler(w, r, ErrUnauthenticated)
				return
			}

			if cfg.debugHeaders && !environment.IsProduction(r.Context()) {
				w.Header().Set(headerCurrentTenant, t.SchemaName)
				if authed {
					w.Header().Set(headerCurrentUser, callerID.String())
				}
				if membership != nil {
					w.Header().Set(headerUserRole, string(membership.Role))
				}
			}

			ctx := WithTenant(r.Context(), t)
			if membership != nil {
				ctx = WithMembership(ctx, membership)
			}

			// The schema switch and every query the handler issues share
			// one connection for the duration of the call; the runner
			// restores the public schema on every exit path.
			err = runner.RunInSchema(ctx, t.SchemaName, func(ctx context.Context) error {
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			})
			if err != nil {
				// Activation failed before the handler ran, so the
				// response has not been written yet.
				cfg.logger.ErrorContext(r.Context(), "schema activation failed",
					logger.Schema(t.SchemaName), logger.Error(err))
				cfg.errorHandler(w, r, err)
			}
		})
	}
}

// RequireTenant ensures a tenant is present in the context. Mount it on
// routes that must never run without tenant scope.
func RequireTenant(errorHandler ErrorHandler) func(http.Handler) http.Handler {
	if errorHandler == nil {
		errorHandler = DefaultErrorHandler
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, ok := FromContext(r.Context())
			if !ok || t == nil {
				errorHandler(w, r, ErrNoTenantInContext)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// DefaultErrorHandler writes structured JSON rejections with
// machine-checkable reason codes.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	code := ReasonCatalogFailure
	message := "unable to access tenant data"

	switch {
	case errors.Is(err, ErrTenantNotFound):
		status = http.StatusBadRequest
		code = ReasonUnresolved
		message = "provide a valid tenant domain, X-Tenant-ID, or X-Tenant-Schema header"
	case errors.Is(err, ErrInactiveTenant):
		status = http.StatusForbidden
		code = ReasonInactive
		message = "this tenant account is currently inactive"
	case errors.Is(err, ErrNoMembership), errors.Is(err, ErrNoTenantInContext):
		status = http.StatusForbidden
		code = ReasonForbidden
		message = "you do not have access to this tenant"
	case errors.Is(err, ErrUnauthenticated):
		status = http.StatusUnauthorized
		code = ReasonUnauthenticated
		message = "you must be logged in to access this tenant"
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   code,
		"message": message,
	})
}
