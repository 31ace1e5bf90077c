package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/syntroph/crm/pkg/logger"
	"github.com/syntroph/crm/pkg/pg"
)

// Manager performs raw schema catalog operations against a single Querier.
// When session-scoped state matters (SetSearchPath, CurrentSchema) the
// Querier must be a single connection, not a pool: search_path is a
// property of one session and a pool would route the statements to
// arbitrary connections.
type Manager struct {
	db  Querier
	log *slog.Logger
}

// NewManager returns a Manager bound to the given Querier.
func NewManager(db Querier, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Manager{db: db, log: log}
}

// Create creates the tenant schema for name. Returns false without error
// when the schema already exists; re-provisioning an existing tenant is a
// normal outcome at this layer. Callers that must treat a pre-existing
// schema as a naming collision (initial signup) check the returned flag.
func (m *Manager) Create(ctx context.Context, name string) (bool, error) {
	if !ValidSchemaName(name) {
		return false, fmt.Errorf("%w: %q", ErrInvalidSchemaName, name)
	}

	exists, err := m.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	if exists {
		m.log.WarnContext(ctx, "schema already exists", logger.Schema(name))
		return false, nil
	}

	if _, err := m.db.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, Qualify(name))); err != nil {
		return false, fmt.Errorf("create schema %q: %w", name, err)
	}

	m.log.InfoContext(ctx, "schema created", logger.Schema(name))
	return true, nil
}

// Drop removes the tenant schema for name. With cascade all contained
// objects are removed unconditionally; without cascade a non-empty schema
// yields ErrSchemaNotEmpty. Dropping an absent schema returns false.
// This operation is irreversible.
func (m *Manager) Drop(ctx context.Context, name string, cascade bool) (bool, error) {
	if !ValidSchemaName(name) {
		return false, fmt.Errorf("%w: %q", ErrInvalidSchemaName, name)
	}

	exists, err := m.Exists(ctx, name)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}

	clause := "RESTRICT"
	if cascade {
		clause = "CASCADE"
	}

	if _, err := m.db.Exec(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %q %s`, Qualify(name), clause)); err != nil {
		if pg.IsDependentObjectsError(err) {
			return false, fmt.Errorf("%w: %q", ErrSchemaNotEmpty, name)
		}
		return false, fmt.Errorf("drop schema %q: %w", name, err)
	}

	m.log.InfoContext(ctx, "schema dropped", logger.Schema(name))
	return true, nil
}

// Exists reports whether the tenant schema for name is present in the catalog.
func (m *Manager) Exists(ctx context.Context, name string) (bool, error) {
	if !ValidSchemaName(name) {
		return false, fmt.Errorf("%w: %q", ErrInvalidSchemaName, name)
	}

	var exists bool
	err := m.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.schemata WHERE schema_name = $1)`,
		Qualify(name),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check schema %q: %w", name, err)
	}
	return exists, nil
}

// List returns all tenant schema names, reserved prefix stripped, in
// lexicographic order. Each call queries the catalog fresh.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	rows, err := m.db.Query(ctx,
		`SELECT schema_name FROM information_schema.schemata WHERE schema_name LIKE $1 ORDER BY schema_name`,
		Prefix+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("list schemas: %w", err)
		}
		names = append(names, strings.TrimPrefix(s, Prefix))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list schemas: %w", err)
	}
	return names, nil
}

// SetSearchPath activates the tenant schema for name on the session,
// keeping the public schema visible as a fallback for shared reference
// data. SetSearchPath(ctx, PublicSchema) resets to the public schema only.
// A failure here is fatal for the enclosing unit of work.
func (m *Manager) SetSearchPath(ctx context.Context, name string) error {
	var stmt string
	if name == PublicSchema {
		stmt = `SET search_path TO public`
	} else {
		if !ValidSchemaName(name) {
			return fmt.Errorf("%w: %q", ErrInvalidSchemaName, name)
		}
		stmt = fmt.Sprintf(`SET search_path TO %q, public`, Qualify(name))
	}

	if _, err := m.db.Exec(ctx, stmt); err != nil {
		return errors.Join(ErrSearchPathNotSet, err)
	}

	m.log.DebugContext(ctx, "search_path set", logger.Schema(name))
	return nil
}

// CurrentSchema returns the tenant schema name the session currently
// resolves against, prefix stripped. When the search_path does not begin
// with a tenant schema it returns PublicSchema.
func (m *Manager) CurrentSchema(ctx context.Context) (string, error) {
	var raw string
	if err := m.db.QueryRow(ctx, `SHOW search_path`).Scan(&raw); err != nil {
		return "", fmt.Errorf("read search_path: %w", err)
	}
	return parseSearchPath(raw), nil
}

// parseSearchPath extracts the active tenant schema from a raw search_path
// value such as `"tenant_acme", public`.
func parseSearchPath(raw string) string {
	first, _, _ := strings.Cut(raw, ",")
	first = strings.Trim(strings.TrimSpace(first), `"`)
	if name, ok := strings.CutPrefix(first, Prefix); ok {
		return name
	}
	return PublicSchema
}
