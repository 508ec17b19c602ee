package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// SQLCopyFn writes one batch of rows inside tx.
type SQLCopyFn func(ctx context.Context, tx *sql.Tx, columns []string, rows [][]any) (int64, error)

// BeginSQL starts a database/sql transaction whose CopyFrom delegates to
// copyFn. Backends built on database/sql share it.
func BeginSQL(ctx context.Context, db *sql.DB, copyFn SQLCopyFn) (Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &sqlTx{tx: tx, copyFn: copyFn}, nil
}

type sqlTx struct {
	tx     *sql.Tx
	copyFn SQLCopyFn
}

func (t *sqlTx) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("copy: columns must not be empty")
	}
	return t.copyFn(ctx, t.tx, columns, rows)
}

func (t *sqlTx) Commit(context.Context) error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *sqlTx) Rollback(context.Context) error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// CopyChunk writes rows in one transaction, split into batches of batchSize
// by LoadRows. Either every row commits or none does; on failure the
// returned count is 0.
func CopyChunk(
	ctx context.Context,
	log *zap.Logger,
	repo Repository,
	columns []string,
	rows [][]string,
	batchSize int,
) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	tx, err := repo.Begin(ctx)
	if err != nil {
		return 0, err
	}
	n, err := LoadRows(ctx, log, columns, rows, batchSize, tx.CopyFrom)
	if err != nil {
		if rerr := tx.Rollback(context.WithoutCancel(ctx)); rerr != nil {
			log.Warn("rollback failed", zap.Error(rerr))
		}
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return 0, err
	}
	return n, nil
}
