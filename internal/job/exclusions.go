package job

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"idremap/internal/config"
	"idremap/internal/datasource"
	"idremap/internal/lookup"
)

// LoadExclusions reads every exclusion set, at most workers at a time.
func LoadExclusions(ctx context.Context, log *zap.Logger, specs map[string]config.ExclusionSpec, workers int) (map[string]*lookup.Set, error) {
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
	sets := make(map[string]*lookup.Set, len(specs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, name := range names {
		name := name
		spec := specs[name]
		g.Go(func() error {
			s, err := loadSet(gctx, log, name, spec)
			if err != nil {
				return err
			}
			mu.Lock()
			sets[name] = s
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}

func loadSet(ctx context.Context, log *zap.Logger, name string, spec config.ExclusionSpec) (*lookup.Set, error) {
	col := spec.Column
	if col == "" {
		col = spec.Source.Column
	}
	if col == "" {
		col = datasource.DefaultListColumn
	}
	src := spec.Source
	if config.SourceKind(src) == "list" && src.Column == "" {
		src.Column = col
	}

	r, ok, err := openOptional(ctx, log, "exclusion set "+name, src)
	if err != nil {
		return nil, err
	}
	if !ok {
		return lookup.NewSet(name, spec.PrefixLen), nil
	}
	defer r.Close()

	s, err := lookup.LoadSet(r, name, sourceName(spec.Source), col, spec.PrefixLen)
	if err != nil {
		return nil, err
	}
	log.Info("exclusion: loaded",
		zap.String("name", name),
		zap.String("source", sourceName(spec.Source)),
		zap.Int("ids", s.Len()),
	)
	return s, nil
}
