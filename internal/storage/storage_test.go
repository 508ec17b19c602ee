package storage

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"go.uber.org/zap/zaptest"
)

/*
fakes
*/

// fakeRepo records executed statements and stages copies in a fakeTx.
type fakeRepo struct {
	execs     []string
	closed    bool
	failBatch int // 1-based batch whose CopyFrom fails; 0 never fails
	committed int64
	rollbacks int
}

func (f *fakeRepo) Begin(ctx context.Context) (Tx, error) { return &fakeTx{repo: f}, nil }
func (f *fakeRepo) Exec(ctx context.Context, sql string) error {
	f.execs = append(f.execs, sql)
	return nil
}
func (f *fakeRepo) Close() { f.closed = true }

type fakeTx struct {
	repo    *fakeRepo
	batches int
	staged  int64
}

func (t *fakeTx) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	t.batches++
	if t.batches == t.repo.failBatch {
		return 0, errors.New("batch rejected")
	}
	t.staged += int64(len(rows))
	return int64(len(rows)), nil
}
func (t *fakeTx) Commit(context.Context) error   { t.repo.committed += t.staged; return nil }
func (t *fakeTx) Rollback(context.Context) error { t.repo.rollbacks++; return nil }

type fakeDDL struct{}

func (fakeDDL) CreateTable(table string, columns []string) string {
	return "CREATE " + QuoteWith(table, func(s string) string { return "<" + s + ">" }) +
		" (" + ColumnList(columns, func(s string) string { return "<" + s + ">" }, "TEXT") + ")"
}
func (fakeDDL) Truncate(table string) string { return "TRUNCATE " + table }

// TestRegisterAndNew verifies that a registered kind can be opened and is
// listed.
func TestRegisterAndNew(t *testing.T) {
	t.Parallel()

	Register("fake", func(ctx context.Context, cfg Config) (Repository, error) {
		return &fakeRepo{}, nil
	})
	repo, err := New(context.Background(), Config{Kind: "fake"})
	if err != nil || repo == nil {
		t.Fatalf("New: repo=%v err=%v", repo, err)
	}
	found := false
	for _, k := range ListKinds() {
		if k == "fake" {
			found = true
		}
	}
	if !found {
		t.Fatalf("kind missing from ListKinds: %v", ListKinds())
	}
}

func TestNewUnsupported(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{Kind: "does-not-exist"})
	if err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
	if got, want := err.Error(), "unsupported storage.kind=does-not-exist (registered: "; !strings.HasPrefix(got, want) {
		t.Fatalf("error = %q, want prefix %q", got, want)
	}
}

func TestFactoryErrorsBubbleUp(t *testing.T) {
	t.Parallel()

	want := errors.New("boom")
	Register("errkind", func(ctx context.Context, cfg Config) (Repository, error) { return nil, want })
	if _, err := New(context.Background(), Config{Kind: "errkind"}); !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}

func TestListKindsSnapshot(t *testing.T) {
	t.Parallel()

	Register("snap", func(ctx context.Context, cfg Config) (Repository, error) { return &fakeRepo{}, nil })
	a := ListKinds()
	a[0] = "mutated"
	if b := ListKinds(); reflect.DeepEqual(a, b) {
		t.Fatalf("ListKinds returned shared slice")
	}
}

// TestEnsureTableAndTruncate checks that the registered dialect renders the
// statements executed on the repository.
func TestEnsureTableAndTruncate(t *testing.T) {
	t.Parallel()

	RegisterDDL("fakeddl", fakeDDL{})
	cfg := Config{Kind: "fakeddl", Table: "dbo.Case_mapped"}
	repo := &fakeRepo{}

	if err := EnsureTable(context.Background(), cfg, repo, []string{"Id", "OwnerId"}); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	if err := Truncate(context.Background(), cfg, repo); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	want := []string{
		"CREATE <dbo>.<Case_mapped> (<Id> TEXT, <OwnerId> TEXT)",
		"TRUNCATE dbo.Case_mapped",
	}
	if !reflect.DeepEqual(repo.execs, want) {
		t.Fatalf("execs = %q, want %q", repo.execs, want)
	}

	if err := EnsureTable(context.Background(), cfg, repo, nil); err == nil {
		t.Fatalf("expected error for empty column list")
	}
	if err := Truncate(context.Background(), Config{Kind: "nope"}, repo); err == nil ||
		!strings.Contains(err.Error(), "no DDL registered") {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestLoadRowsBatches verifies batching (3+3+1) and NULL for blank strings.
func TestLoadRowsBatches(t *testing.T) {
	t.Parallel()

	rows := make([][]string, 7)
	for i := range rows {
		rows[i] = []string{"x", ""}
	}
	var calls int32
	var sawNil atomic.Bool
	copyFn := func(_ context.Context, cols []string, batch [][]any) (int64, error) {
		atomic.AddInt32(&calls, 1)
		if batch[0][1] == nil && batch[0][0] == "x" {
			sawNil.Store(true)
		}
		return int64(len(batch)), nil
	}

	total, err := LoadRows(context.Background(), zaptest.NewLogger(t), []string{"a", "b"}, rows, 3, copyFn)
	if err != nil {
		t.Fatalf("LoadRows: %v", err)
	}
	if total != 7 {
		t.Fatalf("total = %d, want 7", total)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Fatalf("copyFn calls = %d, want 3", got)
	}
	if !sawNil.Load() {
		t.Fatalf("blank value was not passed as nil")
	}
}

func TestLoadRowsErrors(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("copy failed")
	calls := 0
	copyFn := func(_ context.Context, _ []string, batch [][]any) (int64, error) {
		calls++
		if calls == 2 {
			return 0, wantErr
		}
		return int64(len(batch)), nil
	}
	rows := [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}

	total, err := LoadRows(context.Background(), nil, []string{"c"}, rows, 2, copyFn)
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if total != 2 || calls != 2 {
		t.Fatalf("total=%d calls=%d, want 2 and 2", total, calls)
	}

	if _, err := LoadRows(context.Background(), nil, []string{"a", "b"}, [][]string{{"1"}}, 2, copyFn); err == nil {
		t.Fatalf("expected width mismatch error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := LoadRows(ctx, nil, []string{"c"}, rows, 2, copyFn); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

/*
CopyChunk
*/

func TestCopyChunkCommitsAllBatches(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	rows := [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}
	n, err := CopyChunk(context.Background(), zaptest.NewLogger(t), repo, []string{"c"}, rows, 2)
	if err != nil || n != 5 {
		t.Fatalf("CopyChunk = %d, %v; want 5, nil", n, err)
	}
	if repo.committed != 5 || repo.rollbacks != 0 {
		t.Fatalf("committed=%d rollbacks=%d, want 5 and 0", repo.committed, repo.rollbacks)
	}
}

// TestCopyChunkSecondBatchFails checks that a failure after one successful
// batch leaves nothing committed.
func TestCopyChunkSecondBatchFails(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{failBatch: 2}
	rows := [][]string{{"1"}, {"2"}, {"3"}, {"4"}, {"5"}}
	n, err := CopyChunk(context.Background(), zaptest.NewLogger(t), repo, []string{"c"}, rows, 2)
	if err == nil || !strings.Contains(err.Error(), "batch rejected") {
		t.Fatalf("err = %v, want batch rejected", err)
	}
	if n != 0 || repo.committed != 0 {
		t.Fatalf("n=%d committed=%d, want 0 and 0", n, repo.committed)
	}
	if repo.rollbacks != 1 {
		t.Fatalf("rollbacks = %d, want 1", repo.rollbacks)
	}
}

func TestCopyChunkEmpty(t *testing.T) {
	t.Parallel()

	if n, err := CopyChunk(context.Background(), nil, nil, []string{"c"}, nil, 2); n != 0 || err != nil {
		t.Fatalf("CopyChunk(nil rows) = %d, %v", n, err)
	}
}
