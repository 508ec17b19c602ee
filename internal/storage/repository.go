// Package storage contains the storage-agnostic contracts used by database
// sinks. Backends register a factory and a DDL dialect at init time; callers
// open a Repository by kind through New and never import a backend directly.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Config selects a backend and the table it writes to.
type Config struct {
	// Kind is the registered backend name: postgres, mssql, mysql or sqlite.
	Kind string
	DSN  string
	// Table may be schema-qualified ("dbo.Case_mapped").
	Table string
}

// Repository is the minimal write surface of a backend.
type Repository interface {
	// Begin opens a write transaction against the configured table.
	Begin(ctx context.Context) (Tx, error)
	// Exec runs a statement, typically DDL.
	Exec(ctx context.Context, sql string) error
	Close()
}

// Tx is an open write transaction. Rows copied through it become visible on
// Commit and are discarded on Rollback. Rollback after Commit is a no-op.
type Tx interface {
	// CopyFrom appends rows (aligned to columns) to the configured table and
	// returns the number of rows written.
	CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s (registered: %s)", cfg.Kind, strings.Join(ListKinds(), ","))
	}
	return f(ctx, cfg)
}

// ListKinds returns a sorted snapshot of registered kinds.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
