// Package pipeline runs a compiled plan over a record stream in fixed-size
// chunks.
//
// Each chunk is read sequentially, transformed by up to Workers goroutines
// working on contiguous row ranges, and written to the sinks in input order.
// Every worker keeps its own audit tally; partial tallies are merged in range
// order, so the audit is identical for any chunk size or worker count.
//
// Concurrency model per chunk:
//
//	Reader (1) → chunk → N transform workers (row ranges, private tallies)
//	          → merge tallies in order → Main / Flags sinks (chunk-atomic)
//
// Memory stays around O(chunk size) plus the audit state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"idremap/internal/audit"
	"idremap/internal/errs"
	"idremap/internal/metrics"
	"idremap/internal/records"
	"idremap/internal/sink"
	"idremap/internal/transformer"
)

// DefaultChunkSize is used when Options.ChunkSize is not positive.
const DefaultChunkSize = 50_000

// Options tunes a run.
type Options struct {
	// Job labels log lines and metrics.
	Job       string
	ChunkSize int
	// Workers bounds the transform goroutines per chunk; 0 means GOMAXPROCS.
	Workers int
	// MaxFaultLog is the number of row fault messages kept for the summary.
	MaxFaultLog int
}

// Sinks are the per-row outputs. A nil sink is skipped: Main is nil on dry
// runs, Flags when no flag report is configured.
type Sinks struct {
	Main  sink.Table
	Flags sink.Table
}

// Result summarizes a finished run.
type Result struct {
	Rows      int64
	Chunks    int
	Written   int64
	RowFaults int64
	// FaultSamples holds the first Options.MaxFaultLog fault messages.
	FaultSamples []string
	Tally        *audit.Tally
	Elapsed      time.Duration
}

// Run drains r through plan. The header row of each sink has already been
// written when the sink was opened. Run returns the first read, resolution
// or write error; the audit in the Result covers the chunks completed before
// it.
func Run(ctx context.Context, log *zap.Logger, r records.Reader, plan *transformer.Plan, sinks Sinks, opt Options) (*Result, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opt.ChunkSize <= 0 {
		opt.ChunkSize = DefaultChunkSize
	}
	if opt.Workers <= 0 {
		opt.Workers = runtime.GOMAXPROCS(0)
	}

	policies := plan.Policies()
	res := &Result{Tally: audit.NewTally(policies)}
	faults := newErrAgg(opt.MaxFaultLog)
	start := time.Now()

	log.Info("pipeline: start",
		zap.Int("chunk_size", opt.ChunkSize),
		zap.Int("workers", opt.Workers),
		zap.Int("fields", len(policies)),
		zap.Bool("main", sinks.Main != nil),
		zap.Bool("flags", sinks.Flags != nil),
	)

	defer func() {
		res.RowFaults, res.FaultSamples = faults.snapshot()
		res.Elapsed = time.Since(start)
	}()

	chunk := make([]records.Row, 0, opt.ChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		chunk = chunk[:0]
		eof, err := readChunk(r, &chunk, opt.ChunkSize)
		if err != nil {
			return res, err
		}
		if len(chunk) > 0 {
			res.Chunks++
			if err := processChunk(ctx, plan, chunk, sinks, opt.Workers, res, faults); err != nil {
				return res, err
			}
			res.Rows += int64(len(chunk))
			if sinks.Main != nil {
				res.Written += int64(len(chunk))
			}
			metrics.RecordChunks(opt.Job, 1)
			metrics.RecordRows(opt.Job, "read", int64(len(chunk)))
			if sinks.Main != nil {
				metrics.RecordRows(opt.Job, "written", int64(len(chunk)))
			}
			logProgress(log, res, len(chunk), start)
		}
		if eof {
			break
		}
	}

	n, _ := faults.snapshot()
	metrics.RecordRows(opt.Job, "row_faults", n)
	log.Info("pipeline: done",
		zap.String("rows", humanize.Comma(res.Rows)),
		zap.Int("chunks", res.Chunks),
		zap.String("written", humanize.Comma(res.Written)),
		zap.Int64("row_faults", n),
		zap.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)),
	)
	return res, nil
}

// readChunk appends up to size rows to chunk. It reports io.EOF as eof=true.
func readChunk(r records.Reader, chunk *[]records.Row, size int) (eof bool, err error) {
	for len(*chunk) < size {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, fmt.Errorf("read: %w", err)
		}
		*chunk = append(*chunk, row)
	}
	return false, nil
}

// part is the output of one worker over a contiguous row range.
type part struct {
	tally  *audit.Tally
	faults []*errs.RowFault
}

// processChunk transforms chunk in parallel, merges the partial audits in
// order and writes the chunk to the sinks.
func processChunk(ctx context.Context, plan *transformer.Plan, chunk []records.Row, sinks Sinks, workers int, res *Result, faults *errAgg) error {
	n := len(chunk)
	out := make([][]string, n)
	var flags [][]string
	if sinks.Flags != nil {
		flags = make([][]string, n)
	}

	w := min(workers, n)
	parts := make([]part, w)
	policies := plan.Policies()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w)
	for i := 0; i < w; i++ {
		i := i
		lo, hi := i*n/w, (i+1)*n/w
		g.Go(func() error {
			p := part{tally: audit.NewTally(policies)}
			results := make([]transformer.Result, len(policies))
			for j := lo; j < hi; j++ {
				if j&1023 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				row := chunk[j]
				vals, rf, err := plan.Apply(row, results)
				p.faults = append(p.faults, rf...)
				if err != nil {
					return err
				}
				id := plan.RecordID(row)
				p.tally.Observe(id, results)
				out[j] = vals
				if flags != nil {
					flags[j] = flagRow(id, results)
				}
			}
			parts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, p := range parts {
		res.Tally.Merge(p.tally)
		for _, f := range p.faults {
			faults.add(f.Error())
		}
	}

	if sinks.Main != nil {
		if err := sinks.Main.Append(ctx, out); err != nil {
			return &errs.WriteError{Sink: sinks.Main.Name(), Chunk: res.Chunks, Err: err}
		}
	}
	if sinks.Flags != nil {
		if err := sinks.Flags.Append(ctx, flags); err != nil {
			return &errs.WriteError{Sink: sinks.Flags.Name(), Chunk: res.Chunks, Err: err}
		}
	}
	return nil
}

func logProgress(log *zap.Logger, res *Result, rows int, start time.Time) {
	elapsed := time.Since(start)
	rps := float64(0)
	if elapsed > 0 {
		rps = float64(res.Rows) / elapsed.Seconds()
	}
	log.Info("pipeline: chunk",
		zap.Int("chunk", res.Chunks),
		zap.Int("rows", rows),
		zap.String("total", humanize.Comma(res.Rows)),
		zap.String("rps", humanize.Comma(int64(rps))),
		zap.Duration("elapsed", elapsed.Truncate(time.Millisecond)),
	)
}
