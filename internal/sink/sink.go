// Package sink writes output tables: the migrated records, the flag report
// and the audit reports. A Table receives its header once at open time and
// then whole chunks; a chunk is either written completely or not at all.
package sink

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"idremap/internal/config"
	"idremap/internal/storage"
)

// Table is an open output.
type Table interface {
	// Append writes rows aligned to the header given at open time.
	Append(ctx context.Context, rows [][]string) error
	// Close flushes and releases the output. It is safe to call twice.
	Close() error
	// Name identifies the output in logs and errors (a path or a table).
	Name() string
}

// Vars are the values substituted into path and table templates.
type Vars struct {
	Job   string
	Input string
	Field string
}

// Expand replaces {job}, {input} and {field} in tmpl.
func Expand(tmpl string, v Vars) string {
	return strings.NewReplacer(
		"{job}", v.Job,
		"{input}", v.Input,
		"{field}", v.Field,
	).Replace(tmpl)
}

// InputStem returns the base name of path without its extension, the value
// of {input}.
func InputStem(path string) string {
	path, _, _ = strings.Cut(path, "?")
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// IsDatabase reports whether kind names a storage backend.
func IsDatabase(kind string) bool {
	switch strings.ToLower(kind) {
	case "postgres", "mssql", "mysql", "sqlite":
		return true
	}
	return false
}

// Open opens the sink described by spec for header. Relative CSV paths are
// joined to dir.
func Open(ctx context.Context, log *zap.Logger, spec config.SinkSpec, dir string, v Vars, header []string) (Table, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if IsDatabase(spec.Kind) {
		cfg := storage.Config{
			Kind:  strings.ToLower(spec.Kind),
			DSN:   config.ExpandDSN(spec.DSN),
			Table: Expand(spec.Table, v),
		}
		return OpenStorage(ctx, log, cfg, StorageOptions{
			CreateTable: spec.CreateTable,
			Truncate:    spec.Truncate,
			BatchSize:   spec.BatchSize,
		}, header)
	}
	path := Expand(spec.Path, v)
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	enc, err := ParseEncoding(spec.Encoding)
	if err != nil {
		return nil, err
	}
	return CreateCSV(path, enc, header)
}

var errClosed = errors.New("closed")

func wrapErr(t Table, err error) error {
	return fmt.Errorf("sink %s: %w", t.Name(), err)
}
