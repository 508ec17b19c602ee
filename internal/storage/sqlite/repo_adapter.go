package sqlite

import (
	"context"
	"fmt"

	"idremap/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

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

// ddl renders SQLite statements. Table names are quoted whole: SQLite has
// no schemas beyond attached databases.
type ddl struct{}

func (ddl) CreateTable(table string, columns []string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		sqlIdent(table), storage.ColumnList(columns, sqlIdent, "TEXT"))
}

func (ddl) Truncate(table string) string { return "DELETE FROM " + sqlIdent(table) }

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{DSN: cfg.DSN, Table: cfg.Table})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
	storage.RegisterDDL("sqlite", ddl{})
}
