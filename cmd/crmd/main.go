package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/syntroph/crm/modules/tenants"
	"github.com/syntroph/crm/pkg/config"
	"github.com/syntroph/crm/pkg/environment"
	"github.com/syntroph/crm/pkg/httpserver"
	"github.com/syntroph/crm/pkg/logger"
	"github.com/syntroph/crm/pkg/pg"
	"github.com/syntroph/crm/pkg/redis"
	"github.com/syntroph/crm/pkg/requestid"
	"github.com/syntroph/crm/pkg/schema"
	"github.com/syntroph/crm/pkg/tenant"
)

const serviceName = "crmd"

type appConfig struct {
	Env string `env:"APP_ENV" envDefault:"development"`

	// UserIDHeader names the header a trusted gateway uses to forward the
	// authenticated caller's user ID.
	UserIDHeader string `env:"AUTH_USER_ID_HEADER" envDefault:"X-User-ID"`

	TenantCacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`
	DebugHeaders   bool          `env:"TENANT_DEBUG_HEADERS" envDefault:"false"`
	RedisCache     bool          `env:"TENANT_REDIS_CACHE" envDefault:"false"`
}

func main() {
	var (
		appCfg   appConfig
		pgCfg    pg.Config
		redisCfg redis.Config
		srvCfg   httpserver.Config
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&srvCfg)

	log := logger.New(
		logger.WithEnvironment(appCfg.Env, serviceName),
		logger.WithContextExtractors(
			requestid.LoggerExtractor(),
			tenant.LoggerExtractor(),
		),
	)
	logger.SetAsDefault(log)

	ctx := environment.WithContext(context.Background(), appCfg.Env)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		log.ErrorContext(ctx, "database connection failed", logger.Error(err))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		log.ErrorContext(ctx, "migrations failed", logger.Error(err))
		os.Exit(1)
	}

	repo := tenants.NewRepository(pool)
	catalog := schema.NewManager(pool, log)
	runner := schema.NewPoolRunner(pool, log)
	tables := tenants.NewTableSet(runner, log)
	svc := tenants.NewService(repo, catalog, tables, log)

	readiness := []func(context.Context) error{pg.Healthcheck(pool)}

	tenantOpts := []tenant.Option{
		tenant.WithSkipPaths([]string{"/health", "/ready", "/tenants", "/auth", "/static"}),
		tenant.WithUserID(userIDFromContext),
		tenant.WithCacheTTL(appCfg.TenantCacheTTL),
		tenant.WithLogger(log),
	}
	if appCfg.DebugHeaders {
		tenantOpts = append(tenantOpts, tenant.WithDebugHeaders())
	}
	if appCfg.RedisCache {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			log.ErrorContext(ctx, "redis connection failed", logger.Error(err))
			os.Exit(1)
		}
		defer client.Close()
		readiness = append(readiness, redis.Healthcheck(client))
		tenantOpts = append(tenantOpts, tenant.WithCache(tenant.NewRedisCache(client)))
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(withEnvironment(appCfg.Env))
	r.Use(withUserID(appCfg.UserIDHeader))

	r.Get("/health", httpserver.HealthCheckHandler(ctx, log))
	r.Get("/ready", httpserver.HealthCheckHandler(ctx, log, readiness...))
	r.Mount("/tenants", tenants.NewHandler(svc, log).Router())

	r.Route("/api", func(api chi.Router) {
		api.Use(tenant.Middleware(repo, runner, tenantOpts...))
		api.Use(tenant.RequireTenant(nil))
		api.Get("/me", whoami)
		api.Get("/contacts", listContacts(log))
	})

	srv := httpserver.NewFromConfig(srvCfg, httpserver.WithLogger(log))
	if err := srv.Run(ctx, r); err != nil {
		log.ErrorContext(ctx, "server stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

// withEnvironment stamps the configured environment into every request
// context so environment-gated behavior (debug headers) sees it.
func withEnvironment(env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(environment.WithContext(r.Context(), env)))
		})
	}
}

type userIDKey struct{}

// withUserID trusts the gateway-forwarded user ID header. Anything that is
// not a UUID is treated as an unauthenticated request.
func withUserID(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id, err := uuid.Parse(r.Header.Get(header)); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), userIDKey{}, id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func userIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey{}).(uuid.UUID)
	return id, ok
}

// whoami reports the routing decision for the current request.
func whoami(w http.ResponseWriter, r *http.Request) {
	t := tenant.MustFromContext(r.Context())

	body := map[string]any{"tenant": t}
	if m, ok := tenant.MembershipFromContext(r.Context()); ok {
		body["membership"] = m
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(body)
}

type contact struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
}

// listContacts queries the contacts table through the schema-bound
// connection; the unqualified table name resolves inside the tenant's
// schema.
func listContacts(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, ok := schema.ConnFromContext(r.Context())
		if !ok {
			http.Error(w, "no tenant scope", http.StatusInternalServerError)
			return
		}

		rows, err := conn.Query(r.Context(),
			`SELECT id, first_name, last_name, email, phone FROM contacts ORDER BY last_name, first_name`)
		if err != nil {
			log.ErrorContext(r.Context(), "contacts query failed", logger.Error(err))
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		contacts := []contact{}
		for rows.Next() {
			var c contact
			if err := rows.Scan(&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone); err != nil {
				log.ErrorContext(r.Context(), "contacts scan failed", logger.Error(err))
				http.Error(w, "query failed", http.StatusInternalServerError)
				return
			}
			contacts = append(contacts, c)
		}
		if err := rows.Err(); err != nil {
			log.ErrorContext(r.Context(), "contacts query failed", logger.Error(err))
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(contacts)
	}
}
