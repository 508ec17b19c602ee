// Package datasource opens the tabular sources a job reads: the input, lookup
// tables and exclusion sets. File kinds go through a byte Source and a
// parser; database kinds run a query. File paths may be http(s) URLs.
package datasource

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"idremap/internal/config"
	"idremap/internal/datasource/file"
	"idremap/internal/datasource/httpds"
	"idremap/internal/datasource/sqlds"
	"idremap/internal/parser/csv"
	"idremap/internal/parser/xlsx"
	"idremap/internal/records"
)

// Source yields the raw bytes of a file-like source.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// DefaultListColumn names the single column of a list source.
const DefaultListColumn = "Id"

// sqlDrivers maps source kinds to database/sql driver names.
var sqlDrivers = map[string]string{
	"postgres": "pgx",
	"mssql":    "sqlserver",
	"mysql":    "mysql",
	"sqlite":   "sqlite",
}

// DriverFor returns the database/sql driver of a database source kind. The
// "driver" option overrides the default.
func DriverFor(spec config.SourceSpec) (string, bool) {
	if d := spec.Options.String("driver", ""); d != "" {
		return d, true
	}
	d, ok := sqlDrivers[config.SourceKind(spec)]
	return d, ok
}

// OpenReader opens spec as a records.Reader. A missing file is reported with
// an error matching os.ErrNotExist; callers decide what Optional means for
// them.
func OpenReader(ctx context.Context, spec config.SourceSpec) (records.Reader, error) {
	kind := config.SourceKind(spec)
	if driver, ok := DriverFor(spec); ok && spec.DSN != "" {
		r, err := sqlds.Open(ctx, driver, config.ExpandDSN(spec.DSN), spec.Query)
		if err != nil {
			return nil, fmt.Errorf("%s source: %w", kind, err)
		}
		return r, nil
	}

	switch kind {
	case "csv", "xlsx", "list":
	default:
		return nil, fmt.Errorf("unsupported source kind %q", kind)
	}
	if strings.TrimSpace(spec.Path) == "" {
		return nil, fmt.Errorf("%s source: empty path", kind)
	}
	return openFile(ctx, FileSource(spec), kind, spec)
}

// FileSource returns the byte source behind a file kind: an HTTP resource
// when the path is an http(s) URL, the local file otherwise. Remote sources
// read the "retries", "timeout_seconds" and "insecure_skip_verify" options.
func FileSource(spec config.SourceSpec) Source {
	if !httpds.IsURL(spec.Path) {
		return file.NewLocal(spec.Path)
	}
	c := httpds.NewClient(httpds.Config{
		MaxRetries:         spec.Options.Int("retries", 3),
		Timeout:            time.Duration(spec.Options.Int("timeout_seconds", 0)) * time.Second,
		InsecureSkipVerify: spec.Options.Bool("insecure_skip_verify", false),
	})
	return httpds.NewRemote(spec.Path, c)
}

func openFile(ctx context.Context, src Source, kind string, spec config.SourceSpec) (records.Reader, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "xlsx":
		r, err := xlsx.NewReader(rc, spec.Path, spec.Options)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "list":
		col := spec.Column
		if col == "" {
			col = DefaultListColumn
		}
		return file.NewListReader(rc, col), nil
	default:
		r, err := csv.NewReader(rc, spec.Path, spec.Options)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
}
