package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syntroph/crm/pkg/logger"
)

// PathStore is the subset of Manager that Scope needs.
type PathStore interface {
	CurrentSchema(ctx context.Context) (string, error)
	SetSearchPath(ctx context.Context, name string) error
}

// Scope guarantees exception-safe schema switching: the previously active
// schema is restored on every exit path, including error returns, panics,
// and context cancellation. A Scope holds no state beyond the transient
// previous value of a single RunInSchema call, so re-entrant use always
// unwinds to the immediate caller's schema rather than a global default.
type Scope struct {
	store    PathStore
	log      *slog.Logger
	poisoned bool
}

// NewScope returns a Scope over the given store. The store must be bound
// to a single connection for the scope's guarantees to hold.
func NewScope(store PathStore, log *slog.Logger) *Scope {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Scope{store: store, log: log}
}

// RunInSchema activates the named schema, executes fn, and restores the
// previously active schema afterwards. If activation fails, fn never runs
// and no restore is attempted since nothing changed. A restore failure is
// logged and recorded via Poisoned but never masks fn's result: the unit
// of work's outcome stays authoritative.
func (s *Scope) RunInSchema(ctx context.Context, name string, fn func(context.Context) error) error {
	prev, err := s.store.CurrentSchema(ctx)
	if err != nil {
		return fmt.Errorf("read active schema: %w", err)
	}

	if err := s.store.SetSearchPath(ctx, name); err != nil {
		return err
	}

	defer func() {
		// The restore must run even when the request context is already
		// cancelled, otherwise the session stays tenant-bound.
		restoreCtx := context.WithoutCancel(ctx)
		if rerr := s.store.SetSearchPath(restoreCtx, prev); rerr != nil {
			s.poisoned = true
			s.log.ErrorContext(restoreCtx, "failed to restore search_path, connection must be discarded",
				logger.Schema(prev), logger.Error(rerr))
		}
	}()

	return fn(ctx)
}

// Poisoned reports whether a restore failed, leaving the underlying session
// in an indeterminate schema state. A poisoned scope's connection must be
// destroyed, never returned to a pool for reuse.
func (s *Scope) Poisoned() bool {
	return s.poisoned
}
