package schema

import (
	"context"
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	// Prefix is prepended to every tenant schema's physical name, keeping
	// tenant schemas distinguishable from system and shared schemas.
	Prefix = "tenant_"

	// PublicSchema is the always-visible shared schema holding tenant and
	// membership records.
	PublicSchema = "public"

	// maxIdentifierLen is the PostgreSQL identifier length limit in bytes.
	maxIdentifierLen = 63
)

var (
	// ErrInvalidSchemaName is returned when a schema name contains
	// characters outside the safe identifier charset or exceeds the
	// identifier length limit. Names failing this check never reach DDL.
	ErrInvalidSchemaName = errors.New("invalid schema name")

	// ErrSearchPathNotSet is returned when the session search_path could
	// not be set. The enclosing unit of work must not proceed.
	ErrSearchPathNotSet = errors.New("failed to set search_path")

	// ErrSchemaNotEmpty is returned when dropping a non-empty schema
	// without cascade.
	ErrSchemaNotEmpty = errors.New("schema is not empty")
)

// schemaNameRe restricts schema names to lowercase alphanumerics and
// underscores, starting with a letter. Identifiers passing this check are
// safe to interpolate into quoted DDL.
var schemaNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidSchemaName reports whether name is a safe tenant schema identifier.
// The limit accounts for the reserved prefix so the physical name stays
// within PostgreSQL's identifier length.
func ValidSchemaName(name string) bool {
	if name == "" || len(Prefix)+len(name) > maxIdentifierLen {
		return false
	}
	return schemaNameRe.MatchString(name)
}

// Qualify returns the physical schema identifier for a tenant schema name.
// PublicSchema passes through unchanged.
func Qualify(name string) string {
	if name == PublicSchema {
		return PublicSchema
	}
	return Prefix + name
}

// Querier is the minimal query surface the catalog operations need.
// *pgxpool.Pool, *pgxpool.Conn, *pgx.Conn, and pgx.Tx all satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
