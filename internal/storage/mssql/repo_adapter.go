package mssql

import (
	"context"
	"fmt"

	"idremap/internal/storage"
)

// newRepository is swapped in tests.
var newRepository = NewRepository

// wrappedRepo ties the pool's close func to storage.Repository.Close.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// ddl renders T-SQL with NVARCHAR(MAX) columns. SQL Server has no
// CREATE TABLE IF NOT EXISTS, so the statement is guarded by OBJECT_ID.
type ddl struct{}

func (ddl) CreateTable(table string, columns []string) string {
	return fmt.Sprintf("IF OBJECT_ID(%s, N'U') IS NULL CREATE TABLE %s (%s)",
		msLiteral(table),
		storage.QuoteWith(table, msIdent),
		storage.ColumnList(columns, msIdent, "NVARCHAR(MAX) NULL"))
}

func (ddl) Truncate(table string) string {
	return "TRUNCATE TABLE " + storage.QuoteWith(table, msIdent)
}

func init() {
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL("mssql", ddl{})
}
