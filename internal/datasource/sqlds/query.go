// Package sqlds serves the result of a SQL query as records.Row values, so
// inputs, lookup tables and exclusion sets can come straight from a database.
package sqlds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/go-sql-driver/mysql"  // "mysql"
	_ "github.com/jackc/pgx/v5/stdlib"  // "pgx"
	_ "github.com/microsoft/go-mssqldb" // "sqlserver"
	_ "modernc.org/sqlite"              // "sqlite"

	"idremap/internal/records"
)

// Drivers lists the database/sql driver names this package registers.
var Drivers = []string{"pgx", "sqlserver", "mysql", "sqlite"}

// Reader is a records.Reader over one query result. NULL reads as "".
type Reader struct {
	db     *sql.DB
	ownsDB bool
	rows   *sql.Rows
	schema *records.Schema
	dest   []sql.NullString
	ptrs   []any
	n      int
}

// Open connects with driver/dsn, pings within 5s and runs query.
func Open(ctx context.Context, driver, dsn, query string) (*Reader, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlds: open %s: %w", driver, err)
	}
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlds: ping %s: %w", driver, err)
	}
	r, err := Query(ctx, db, query)
	if err != nil {
		db.Close()
		return nil, err
	}
	r.ownsDB = true
	return r, nil
}

// Query runs query on an existing pool. Close does not close db.
func Query(ctx context.Context, db *sql.DB, query string) (*Reader, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlds: query: %w", err)
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlds: columns: %w", err)
	}
	r := &Reader{
		db:     db,
		rows:   rows,
		schema: records.NewSchema(cols),
		dest:   make([]sql.NullString, len(cols)),
		ptrs:   make([]any, len(cols)),
	}
	for i := range r.dest {
		r.ptrs[i] = &r.dest[i]
	}
	return r, nil
}

func (r *Reader) Schema() *records.Schema { return r.schema }

func (r *Reader) Next() (records.Row, error) {
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return records.Row{}, fmt.Errorf("sqlds: rows: %w", err)
		}
		return records.Row{}, io.EOF
	}
	if err := r.rows.Scan(r.ptrs...); err != nil {
		return records.Row{}, fmt.Errorf("sqlds: scan row %d: %w", r.n+1, err)
	}
	r.n++
	vals := make([]string, len(r.dest))
	for i, d := range r.dest {
		vals[i] = d.String
	}
	return records.Row{Schema: r.schema, Values: vals, Line: r.n}, nil
}

func (r *Reader) Close() error {
	err := r.rows.Close()
	if r.ownsDB {
		err = errors.Join(err, r.db.Close())
	}
	return err
}
