package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DDL renders the backend-specific statements a sink needs. Every output
// column is created as the backend's text type: the pipeline only produces
// strings.
type DDL interface {
	// CreateTable returns a statement creating table when it is missing.
	CreateTable(table string, columns []string) string
	// Truncate returns a statement removing all rows from table.
	Truncate(table string) string
}

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDL{}
)

// RegisterDDL registers (or replaces) the dialect for kind. It is typically
// called from backend packages' init functions next to Register.
func RegisterDDL(kind string, d DDL) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = d
}

func dialect(kind string) (DDL, error) {
	ddlMu.RLock()
	d, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no DDL registered for storage.kind=%q", kind)
	}
	return d, nil
}

// EnsureTable creates cfg.Table with one text column per name unless it
// already exists.
func EnsureTable(ctx context.Context, cfg Config, repo Repository, columns []string) error {
	d, err := dialect(cfg.Kind)
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return fmt.Errorf("ensure table %s: no columns", cfg.Table)
	}
	if err := repo.Exec(ctx, d.CreateTable(cfg.Table, columns)); err != nil {
		return fmt.Errorf("ensure table %s: %w", cfg.Table, err)
	}
	return nil
}

// Truncate removes all rows from cfg.Table.
func Truncate(ctx context.Context, cfg Config, repo Repository) error {
	d, err := dialect(cfg.Kind)
	if err != nil {
		return err
	}
	if err := repo.Exec(ctx, d.Truncate(cfg.Table)); err != nil {
		return fmt.Errorf("truncate %s: %w", cfg.Table, err)
	}
	return nil
}

// QuoteWith quotes each dot-separated segment of name with quote. It is the
// shared helper behind the backends' identifier quoting.
func QuoteWith(name string, quote func(string) string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

// ColumnList renders "<q(c1)> <typ>, <q(c2)> <typ>, ..." for CREATE TABLE.
func ColumnList(columns []string, quote func(string) string, typ string) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quote(c) + " " + typ
	}
	return strings.Join(defs, ", ")
}
