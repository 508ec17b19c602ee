// Package job wires a config.Job end to end: it loads the lookup tables and
// exclusion sets, compiles the field policies against the input header, opens
// the sinks, runs the pipeline and writes the audit reports.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"idremap/internal/audit"
	"idremap/internal/config"
	"idremap/internal/errs"
	"idremap/internal/lookup"
	"idremap/internal/metrics"
	"idremap/internal/pipeline"
	"idremap/internal/sink"
	"idremap/internal/transformer"
)

// Output describes one written table.
type Output struct {
	// Role is main, flags, summary, detail or gated.
	Role  string
	Name  string
	Rows  int64
	Bytes int64
}

// Summary describes a run. Result is nil when the run failed before the
// pipeline started.
type Summary struct {
	RunID   string
	Job     string
	Result  *pipeline.Result
	Outputs []Output
	// Unbalanced lists fields whose matched plus unmatched counts differ from
	// their non-blank, non-gated count.
	Unbalanced []string
	Elapsed    time.Duration
}

// openSinkFn is a test seam over sink.Open.
var openSinkFn = sink.Open

// Run executes j. runID labels logs and metrics; a new one is generated
// when empty. The returned Summary is never nil.
func Run(ctx context.Context, log *zap.Logger, j *config.Job, runID string) (*Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	log = log.With(zap.String("job", j.Job), zap.String("run_id", runID))
	sum := &Summary{RunID: runID, Job: j.Job}
	begin := time.Now()
	defer func() { sum.Elapsed = time.Since(begin) }()

	start := time.Now()
	rs, sets, err := loadReferences(ctx, log, j)
	metrics.RecordStep(j.Job, "load_lookups", err, time.Since(start))
	if err != nil {
		return sum, err
	}

	policies, err := BuildPolicies(j.Fields, rs)
	if err != nil {
		return sum, err
	}

	in, err := openReaderFn(ctx, j.Input)
	if err != nil {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		return sum, &errs.ConfigError{Source: sourceName(j.Input), Msg: "unreadable input", Err: err}
	}
	defer in.Close()

	plan, err := transformer.Compile(in.Schema(), policies, transformer.PlanOptions{
		Drop:              j.Drop,
		Rename:            renameMap(j.Rename),
		RecordIDField:     j.Run.RecordIDField,
		RecordIDFallbacks: j.Run.RecordIDFallbacks,
	})
	if err != nil {
		return sum, err
	}

	vars := sink.Vars{Job: j.Job, Input: inputStem(j)}
	sinks, opened, err := openRowSinks(ctx, log, j, plan, vars)
	if err != nil {
		return sum, err
	}

	start = time.Now()
	res, err := pipeline.Run(ctx, log, in, plan, sinks, pipeline.Options{
		Job:         j.Job,
		ChunkSize:   j.Run.ChunkSize,
		Workers:     j.Run.TransformWorkers,
		MaxFaultLog: j.Run.MaxFaultLog,
	})
	sum.Result = res
	if cerr := closeAll(opened, sum); err == nil {
		err = cerr
	}
	metrics.RecordStep(j.Job, "pipeline", err, time.Since(start))
	if err != nil {
		return sum, err
	}

	start = time.Now()
	err = writeReports(ctx, log, j, vars, reporter(j, plan, res.Tally, sets), sum)
	metrics.RecordStep(j.Job, "reports", err, time.Since(start))
	recordOutcomes(j.Job, res.Tally)
	sum.Unbalanced = unbalanced(res.Tally)
	logSummary(log, sum)
	return sum, err
}

// loadReferences builds the resolvers and exclusion sets concurrently.
func loadReferences(ctx context.Context, log *zap.Logger, j *config.Job) (*Resolvers, map[string]*lookup.Set, error) {
	var (
		rs   *Resolvers
		sets map[string]*lookup.Set
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rs, err = BuildResolvers(gctx, log, j)
		return err
	})
	g.Go(func() error {
		var err error
		sets, err = LoadExclusions(gctx, log, j.Exclusions, j.Run.LookupWorkers)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return rs, sets, nil
}

func inputStem(j *config.Job) string {
	if j.Input.Path != "" {
		return sink.InputStem(j.Input.Path)
	}
	return j.Job
}

type openedSink struct {
	role string
	t    sink.Table
}

// openRowSinks opens the main output (skipped on dry runs) and the optional
// flag report.
func openRowSinks(ctx context.Context, log *zap.Logger, j *config.Job, plan *transformer.Plan, v sink.Vars) (pipeline.Sinks, []openedSink, error) {
	var (
		s      pipeline.Sinks
		opened []openedSink
	)
	if !j.Run.DryRun && j.Outputs.Main.Enabled() {
		t, err := openSink(ctx, log, "main", j.Outputs.Main, j.Outputs.Dir, v, plan.Header())
		if err != nil {
			return s, nil, err
		}
		s.Main = t
		opened = append(opened, openedSink{"main", t})
	}
	if j.Outputs.Flags.Enabled() {
		t, err := openSink(ctx, log, "flags", j.Outputs.Flags, j.Outputs.Dir, v, pipeline.FlagHeader(plan))
		if err != nil {
			for _, o := range opened {
				_ = o.t.Close()
			}
			return s, nil, err
		}
		s.Flags = t
		opened = append(opened, openedSink{"flags", t})
	}
	if j.Run.DryRun {
		log.Info("run: dry run, main output skipped")
	}
	return s, opened, nil
}

func openSink(ctx context.Context, log *zap.Logger, role string, spec config.SinkSpec, dir string, v sink.Vars, header []string) (sink.Table, error) {
	t, err := openSinkFn(ctx, log, spec, dir, v, header)
	if err != nil {
		return nil, &errs.WriteError{Sink: role, Chunk: 0, Err: err}
	}
	return t, nil
}

// closeAll closes every sink and records its output. It returns the first
// close error.
func closeAll(opened []openedSink, sum *Summary) error {
	var first error
	for _, o := range opened {
		if err := o.t.Close(); err != nil && first == nil {
			first = &errs.WriteError{Sink: o.t.Name(), Err: err}
		}
		sum.Outputs = append(sum.Outputs, describe(o.role, o.t))
	}
	return first
}

func describe(role string, t sink.Table) Output {
	out := Output{Role: role, Name: t.Name()}
	if r, ok := t.(interface{ Rows() int64 }); ok {
		out.Rows = r.Rows()
	}
	if b, ok := t.(interface{ Bytes() int64 }); ok {
		out.Bytes = b.Bytes()
	}
	return out
}

func reporter(j *config.Job, plan *transformer.Plan, tally *audit.Tally, sets map[string]*lookup.Set) *audit.Reporter {
	r := &audit.Reporter{
		Tally:         tally,
		RecordIDField: plan.RecordIDField(),
		Exclusions:    map[string][]*lookup.Set{},
	}
	seen := map[string]bool{}
	for _, f := range j.Fields {
		for _, name := range f.Exclusions {
			s, ok := sets[name]
			if !ok {
				continue
			}
			r.Exclusions[f.DisplayName()] = append(r.Exclusions[f.DisplayName()], s)
			if !seen[name] {
				seen[name] = true
				r.SetOrder = append(r.SetOrder, name)
			}
		}
	}
	return r
}

// writeReports writes the summary, one detail table per tracked field and
// one gated table per gate-tracked field.
func writeReports(ctx context.Context, log *zap.Logger, j *config.Job, v sink.Vars, r *audit.Reporter, sum *Summary) error {
	var errList []error
	o := j.Outputs
	if o.Summary.Enabled() {
		errList = append(errList, writeTable(ctx, log, "summary", o.Summary, o.Dir, v, r.Summary(), sum))
	}
	if o.Detail.Enabled() {
		for _, t := range r.Details() {
			fv := v
			fv.Field = t.Name
			errList = append(errList, writeTable(ctx, log, "detail", o.Detail, o.Dir, fv, t, sum))
		}
	}
	if o.Gated.Enabled() {
		for _, t := range r.Gated() {
			fv := v
			fv.Field = t.Name
			errList = append(errList, writeTable(ctx, log, "gated", o.Gated, o.Dir, fv, t, sum))
		}
	}
	return errors.Join(errList...)
}

func writeTable(ctx context.Context, log *zap.Logger, role string, spec config.SinkSpec, dir string, v sink.Vars, t audit.Table, sum *Summary) error {
	s, err := openSink(ctx, log, role, spec, dir, v, t.Header)
	if err != nil {
		return err
	}
	if len(t.Rows) > 0 {
		if err := s.Append(ctx, t.Rows); err != nil {
			_ = s.Close()
			return &errs.WriteError{Sink: s.Name(), Chunk: 1, Err: err}
		}
	}
	if err := s.Close(); err != nil {
		return &errs.WriteError{Sink: s.Name(), Err: err}
	}
	sum.Outputs = append(sum.Outputs, describe(role, s))
	return nil
}

func recordOutcomes(job string, tally *audit.Tally) {
	for _, ft := range tally.Fields {
		counts := make(map[string]int64, len(ft.Acc.Outcomes))
		for o, n := range ft.Acc.Outcomes {
			counts[o.String()] = n
		}
		metrics.RecordOutcomes(job, ft.Acc.Field, counts)
	}
}

func unbalanced(tally *audit.Tally) []string {
	var out []string
	for _, ft := range tally.Fields {
		if !ft.Acc.Balanced() {
			out = append(out, ft.Acc.Field)
		}
	}
	return out
}

func logSummary(log *zap.Logger, sum *Summary) {
	res := sum.Result
	for _, ft := range res.Tally.Fields {
		a := ft.Acc
		log.Info("summary: field",
			zap.String("field", a.Field),
			zap.Int64("total", a.Total),
			zap.Int64("non_blank", a.NonBlank),
			zap.Int("unique", a.UniqueNonBlank()),
			zap.Int64("matched", a.Matched),
			zap.Int64("unmatched", a.Unmatched),
			zap.Int64("gated", a.Gated),
			zap.Bool("balanced", a.Balanced()),
		)
	}
	for _, f := range sum.Unbalanced {
		log.Warn("summary: matched + unmatched != non-blank - gated", zap.String("field", f))
	}
	for _, s := range res.FaultSamples {
		log.Warn("summary: row fault", zap.String("fault", s))
	}
	var bytes int64
	for _, o := range sum.Outputs {
		bytes += o.Bytes
		log.Info("summary: output",
			zap.String("role", o.Role),
			zap.String("name", o.Name),
			zap.String("rows", humanize.Comma(o.Rows)),
			zap.String("size", humanize.Bytes(uint64(o.Bytes))),
		)
	}
	log.Info("summary: run",
		zap.String("rows", humanize.Comma(res.Rows)),
		zap.Int("chunks", res.Chunks),
		zap.String("written", humanize.Comma(res.Written)),
		zap.Int64("row_faults", res.RowFaults),
		zap.String("output_size", humanize.Bytes(uint64(bytes))),
		zap.Duration("elapsed", res.Elapsed.Truncate(time.Millisecond)),
	)
}

// String renders a one-line description of the summary for the CLI.
func (s *Summary) String() string {
	if s.Result == nil {
		return fmt.Sprintf("job %s (run %s): not started", s.Job, s.RunID)
	}
	return fmt.Sprintf("job %s (run %s): %s rows in %d chunks, %s written, %d row faults, %d outputs",
		s.Job, s.RunID, humanize.Comma(s.Result.Rows), s.Result.Chunks,
		humanize.Comma(s.Result.Written), s.Result.RowFaults, len(s.Outputs))
}
