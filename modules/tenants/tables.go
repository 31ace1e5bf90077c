package tenants

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syntroph/crm/pkg/logger"
	"github.com/syntroph/crm/pkg/schema"
)

// tenantDDL creates the per-tenant table set. The statements deliberately
// use unqualified names: they resolve against the schema active on the
// executing connection, so the same DDL provisions every tenant.
var tenantDDL = []string{
	`CREATE TABLE IF NOT EXISTS organizations (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL,
		website TEXT,
		industry TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		organization_id UUID REFERENCES organizations(id) ON DELETE SET NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT,
		phone TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS contacts_email_idx ON contacts (email)`,
	`CREATE TABLE IF NOT EXISTS deals (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		organization_id UUID REFERENCES organizations(id) ON DELETE CASCADE,
		contact_id UUID REFERENCES contacts(id) ON DELETE SET NULL,
		title TEXT NOT NULL,
		stage TEXT NOT NULL DEFAULT 'lead',
		amount NUMERIC(14, 2),
		closes_at DATE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS deals_stage_idx ON deals (stage)`,
}

// TableSet provisions the per-tenant table set inside a tenant schema.
type TableSet struct {
	runner *schema.PoolRunner
	log    *slog.Logger
}

// NewTableSet returns a TableSet executing through runner.
func NewTableSet(runner *schema.PoolRunner, log *slog.Logger) *TableSet {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &TableSet{runner: runner, log: log}
}

// Bootstrap creates the tenant tables inside the named schema. The DDL runs
// on a connection with the schema active, so the tables land in that schema
// and nowhere else.
func (ts *TableSet) Bootstrap(ctx context.Context, schemaName string) error {
	return ts.runner.RunInSchema(ctx, schemaName, func(ctx context.Context) error {
		conn, ok := schema.ConnFromContext(ctx)
		if !ok {
			return fmt.Errorf("bootstrap %q: no schema-bound connection", schemaName)
		}
		for _, stmt := range tenantDDL {
			if _, err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("bootstrap %q: %w", schemaName, err)
			}
		}
		ts.log.InfoContext(ctx, "tenant tables created", logger.Schema(schemaName))
		return nil
	})
}
