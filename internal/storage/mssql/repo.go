// Package mssql writes remapped rows to SQL Server with the go-mssqldb bulk
// copy API. All batches of a chunk share one transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"idremap/internal/storage"
)

// Config names the server and the target table ("dbo.Case_mapped").
type Config struct {
	DSN   string
	Table string
}

// Repository is the SQL Server storage.Repository.
type Repository struct {
	db  *sql.DB
	cfg Config
}

// NewRepository checks the DSN, opens the pool and pings it. The returned
// func closes the pool.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql: dsn: %w", err)
	}
	if strings.TrimSpace(cfg.Table) == "" {
		return nil, nil, fmt.Errorf("mssql: table must not be empty")
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mssql: open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &Repository{db: db, cfg: cfg}, func() { _ = db.Close() }, nil
}

// Begin opens a transaction whose CopyFrom runs one bulk copy per batch.
func (r *Repository) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := storage.BeginSQL(ctx, r.db, r.bulkCopy)
	if err != nil {
		return nil, fmt.Errorf("mssql: %w", err)
	}
	return tx, nil
}

// bulkCopy streams rows into the target table through an INSERT BULK
// statement prepared on tx. The trailing argument-less Exec flushes it.
func (r *Repository) bulkCopy(ctx context.Context, tx *sql.Tx, columns []string, rows [][]any) (n int64, err error) {
	stmt, err := tx.PrepareContext(ctx, bulkQuery(r.cfg.Table, columns))
	if err != nil {
		return 0, fmt.Errorf("mssql: prepare bulk copy into %s: %w", r.cfg.Table, err)
	}
	defer func() {
		if cerr := stmt.Close(); cerr != nil && err == nil {
			n, err = 0, fmt.Errorf("mssql: close bulk copy: %w", cerr)
		}
	}()

	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("mssql: row %d has %d values for %d columns", i, len(row), len(columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("mssql: bulk copy row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("mssql: flush bulk copy: %w", err)
	}
	if n, err = res.RowsAffected(); err != nil {
		return 0, fmt.Errorf("mssql: rows affected: %w", err)
	}
	return n, nil
}

// Exec runs sqlText outside any chunk transaction.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	if _, err := r.db.ExecContext(ctx, sqlText); err != nil {
		return fmt.Errorf("mssql: exec: %w", err)
	}
	return nil
}

func bulkQuery(table string, columns []string) string {
	return mssql.CopyIn(table, mssql.BulkOptions{}, columns...)
}

// msIdent brackets one identifier, doubling any ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msLiteral quotes s as an N'...' string literal.
func msLiteral(s string) string { return `N'` + strings.ReplaceAll(s, `'`, `''`) + `'` }
