package postgres

import (
	"context"
	"fmt"

	"idremap/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

// wrappedRepo adds the Close method required by storage.Repository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

// Close implements storage.Repository.Close.
func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// ddl renders Postgres statements with TEXT columns.
type ddl struct{}

func (ddl) CreateTable(table string, columns []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		storage.QuoteWith(table, pgIdent), storage.ColumnList(columns, pgIdent, "TEXT"))
}

func (ddl) Truncate(table string) string {
	return "TRUNCATE TABLE " + storage.QuoteWith(table, pgIdent)
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL("postgres", ddl{})
}
