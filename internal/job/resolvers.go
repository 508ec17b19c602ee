package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"idremap/internal/config"
	"idremap/internal/datasource"
	"idremap/internal/errs"
	"idremap/internal/lookup"
	"idremap/internal/records"
)

// DefaultLookupWorkers bounds concurrent lookup and exclusion loads.
const DefaultLookupWorkers = 4

// openReaderFn is a test seam over datasource.OpenReader.
var openReaderFn = datasource.OpenReader

// sourceName identifies a source in logs and errors.
func sourceName(s config.SourceSpec) string {
	if s.Path != "" {
		return s.Path
	}
	return config.SourceKind(s) + " query"
}

// openOptional opens spec. A missing optional file yields ok=false and no
// error; every other failure is a configuration error.
func openOptional(ctx context.Context, log *zap.Logger, what string, spec config.SourceSpec) (r records.Reader, ok bool, err error) {
	r, err = openReaderFn(ctx, spec)
	if err == nil {
		return r, true, nil
	}
	if spec.Optional && errors.Is(err, os.ErrNotExist) {
		log.Warn("source: optional file missing, using empty", zap.String("what", what), zap.String("path", spec.Path))
		return nil, false, nil
	}
	if ctx.Err() != nil {
		return nil, false, ctx.Err()
	}
	return nil, false, &errs.ConfigError{Source: sourceName(spec), Msg: "unreadable " + what, Err: err}
}

// LoadLookups builds every lookup table, at most workers at a time. A
// missing key or value column fails the whole load before any input row is
// read.
func LoadLookups(ctx context.Context, log *zap.Logger, specs map[string]config.LookupSpec, workers int) (map[string]*lookup.Table, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if workers <= 0 {
		workers = DefaultLookupWorkers
	}
	names := make([]string, 0, len(specs))
	for n := range specs {
		names = append(names, n)
	}
	sort.Strings(names)

	var mu sync.Mutex
	tables := make(map[string]*lookup.Table, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, name := range names {
		name := name
		spec := specs[name]
		g.Go(func() error {
			t, err := loadTable(gctx, log, name, spec)
			if err != nil {
				return err
			}
			mu.Lock()
			tables[name] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return tables, nil
}

func loadTable(ctx context.Context, log *zap.Logger, name string, spec config.LookupSpec) (*lookup.Table, error) {
	start := time.Now()
	r, ok, err := openOptional(ctx, log, "lookup "+name, spec.Source)
	if err != nil {
		return nil, err
	}
	if !ok {
		return lookup.NewBuilder(name, len(spec.Key), spec.PrefixLen).Table(), nil
	}
	defer r.Close()

	t, st, err := lookup.Build(r, lookup.Spec{
		Name:      name,
		Source:    sourceName(spec.Source),
		Key:       spec.Key,
		Value:     spec.Value,
		PrefixLen: spec.PrefixLen,
	})
	if err != nil {
		return nil, err
	}
	log.Info("lookup: loaded",
		zap.String("name", name),
		zap.String("source", sourceName(spec.Source)),
		zap.String("rows", humanize.Comma(int64(st.Rows))),
		zap.String("keys", humanize.Comma(int64(t.Len()))),
		zap.Int("duplicates", st.Duplicates),
		zap.Int("skipped", st.Skipped),
		zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)),
	)
	return t, nil
}

// Resolvers is the set of named resolvers a job's fields can refer to.
type Resolvers struct {
	tables map[string]*lookup.Table
	specs  map[string]config.ResolverSpec

	values map[string]lookup.Resolver
	rows   map[string]lookup.RowResolver
}

// NewResolvers composes specs over already built tables. Every resolver is
// built eagerly so that configuration errors surface before the run.
func NewResolvers(tables map[string]*lookup.Table, specs map[string]config.ResolverSpec) (*Resolvers, error) {
	rs := &Resolvers{
		tables: tables,
		specs:  specs,
		values: map[string]lookup.Resolver{},
		rows:   map[string]lookup.RowResolver{},
	}
	names := make([]string, 0, len(specs))
	for n := range specs {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if _, err := rs.Lookup(n); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

// BuildResolvers loads the job's lookup tables and composes its resolvers.
func BuildResolvers(ctx context.Context, log *zap.Logger, j *config.Job) (*Resolvers, error) {
	tables, err := LoadLookups(ctx, log, j.Lookups, j.Run.LookupWorkers)
	if err != nil {
		return nil, err
	}
	return NewResolvers(tables, j.Resolvers)
}

// Tables returns the loaded lookup tables by name.
func (rs *Resolvers) Tables() map[string]*lookup.Table { return rs.tables }

// Lookup returns the row resolver registered as name: a lookup table, a
// composed resolver, or one of the built-ins "identity" and
// "constant:<value>".
func (rs *Resolvers) Lookup(name string) (lookup.RowResolver, error) {
	if r, ok := rs.rows[name]; ok {
		return r, nil
	}
	var out lookup.RowResolver
	if spec, ok := rs.specs[name]; ok && len(spec.Fallback) > 0 {
		alts := make([]lookup.Alternative, len(spec.Fallback))
		for i, a := range spec.Fallback {
			v, err := rs.value(a.Resolver, []string{name})
			if err != nil {
				return nil, err
			}
			alts[i] = lookup.Alternative{Resolver: v}
			if len(a.Fields) > 0 {
				alts[i] = lookup.FieldsAlternative(v, a.Fields...)
			}
		}
		out = lookup.NewFallback(alts...)
	} else {
		v, err := rs.value(name, nil)
		if err != nil {
			return nil, err
		}
		out = lookup.OnValue(v)
	}
	rs.rows[name] = out
	return out, nil
}

// value returns name as a value resolver. path holds the composed resolvers
// being built, to report reference cycles.
func (rs *Resolvers) value(name string, path []string) (lookup.Resolver, error) {
	switch {
	case name == config.ResolverIdentity:
		return lookup.Identity{}, nil
	case strings.HasPrefix(name, config.ResolverConstantPrefix):
		return lookup.Constant{Value: strings.TrimPrefix(name, config.ResolverConstantPrefix)}, nil
	}
	if v, ok := rs.values[name]; ok {
		return v, nil
	}
	if t, ok := rs.tables[name]; ok {
		return t, nil
	}
	spec, ok := rs.specs[name]
	if !ok {
		return nil, &errs.ConfigError{Source: "resolvers", Msg: fmt.Sprintf("unknown lookup or resolver %q", name)}
	}
	for _, p := range path {
		if p == name {
			return nil, &errs.ConfigError{Source: "resolvers", Msg: "resolver cycle: " + strings.Join(append(path, name), " -> ")}
		}
	}
	path = append(path, name)

	var v lookup.Resolver
	switch {
	case len(spec.Fallback) > 0:
		return nil, &errs.ConfigError{
			Source: "resolvers." + name,
			Msg:    "a fallback resolver reads the whole row and cannot be a chain hop or fallback alternative",
		}
	case len(spec.Chain) > 0:
		hops := make([]lookup.Resolver, len(spec.Chain))
		for i, h := range spec.Chain {
			r, err := rs.value(h, path)
			if err != nil {
				return nil, err
			}
			hops[i] = r
		}
		v = lookup.NewChain(hops...)
	case len(spec.Values) > 0:
		v = lookup.ValueMap(name, spec.Values)
	case spec.Constant != "":
		v = lookup.Constant{Value: spec.Constant}
	default:
		return nil, &errs.ConfigError{Source: "resolvers." + name, Msg: "resolver needs exactly one of chain, fallback, values or constant"}
	}
	rs.values[name] = v
	return v, nil
}
