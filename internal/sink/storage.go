package sink

import (
	"context"

	"go.uber.org/zap"

	"idremap/internal/storage"
)

// StorageOptions controls table preparation and batching of a database sink.
type StorageOptions struct {
	CreateTable bool
	Truncate    bool
	BatchSize   int
}

// Storage writes to a database table through a storage.Repository.
type Storage struct {
	log    *zap.Logger
	cfg    storage.Config
	repo   storage.Repository
	header []string
	batch  int
	rows   int64
}

// OpenStorage opens the repository for cfg and prepares the table.
func OpenStorage(ctx context.Context, log *zap.Logger, cfg storage.Config, opt StorageOptions, header []string) (*Storage, error) {
	repo, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return newStorage(ctx, log, cfg, repo, opt, header)
}

func newStorage(ctx context.Context, log *zap.Logger, cfg storage.Config, repo storage.Repository, opt StorageOptions, header []string) (*Storage, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Storage{
		log:    log.With(zap.String("sink", cfg.Table), zap.String("kind", cfg.Kind)),
		cfg:    cfg,
		repo:   repo,
		header: append([]string(nil), header...),
		batch:  opt.BatchSize,
	}
	if opt.CreateTable {
		if err := storage.EnsureTable(ctx, cfg, repo, header); err != nil {
			repo.Close()
			return nil, wrapErr(s, err)
		}
	}
	if opt.Truncate {
		if err := storage.Truncate(ctx, cfg, repo); err != nil {
			repo.Close()
			return nil, wrapErr(s, err)
		}
	}
	return s, nil
}

// Append loads rows in batches of BatchSize inside one transaction, so a
// failed chunk leaves no rows behind.
func (s *Storage) Append(ctx context.Context, rows [][]string) error {
	if s.repo == nil {
		return wrapErr(s, errClosed)
	}
	n, err := storage.CopyChunk(ctx, s.log, s.repo, s.header, rows, s.batch)
	if err != nil {
		return wrapErr(s, err)
	}
	s.rows += n
	return nil
}

// Close releases the repository.
func (s *Storage) Close() error {
	if s.repo != nil {
		s.repo.Close()
		s.repo = nil
	}
	return nil
}

// Name returns the target table.
func (s *Storage) Name() string { return s.cfg.Kind + ":" + s.cfg.Table }

// Rows returns the rows committed so far.
func (s *Storage) Rows() int64 { return s.rows }
