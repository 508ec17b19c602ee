package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// DefaultBatchSize bounds the rows handed to one CopyFn call.
const DefaultBatchSize = 5_000

// CopyFn abstracts a backend's bulk insert capability. Implementations insert
// rows aligned to columns and return the number of rows written.
type CopyFn func(ctx context.Context, columns []string, rows [][]any) (int64, error)

// LoadRows converts string rows to driver values, groups them into batches of
// batchSize and calls copyFn per batch. Blank strings are stored as NULL. It
// returns the rows reported written and the first error.
//
// A progress line is logged at debug level per flushed batch.
func LoadRows(
	ctx context.Context,
	log *zap.Logger,
	columns []string,
	rows [][]string,
	batchSize int,
	copyFn CopyFn,
) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if copyFn == nil {
		return 0, fmt.Errorf("copyFn must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		total   int64
		batches int
		start   = time.Now()
		batch   = make([][]any, 0, min(batchSize, len(rows)))
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := copyFn(ctx, columns, batch)
		total += n
		batch = batch[:0]
		if err != nil {
			log.Error("loader: copy failed",
				zap.Int64("inserted", n), zap.Int64("total", total), zap.Error(err))
			return err
		}
		batches++
		elapsed := time.Since(start)
		rps := float64(0)
		if elapsed > 0 {
			rps = float64(total) / elapsed.Seconds()
		}
		log.Debug("loader: batch",
			zap.Int("batch", batches),
			zap.Int64("inserted", n),
			zap.String("total", humanize.Comma(total)),
			zap.String("rps", humanize.Comma(int64(rps))),
			zap.Duration("elapsed", elapsed.Truncate(time.Millisecond)),
		)
		return nil
	}

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if len(r) != len(columns) {
			return total, fmt.Errorf("loader: row width %d != columns %d", len(r), len(columns))
		}
		vals := make([]any, len(r))
		for i, s := range r {
			if s != "" {
				vals[i] = s
			}
		}
		batch = append(batch, vals)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	return total, nil
}
