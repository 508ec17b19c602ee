package sqlds

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestOpen_SQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "lkp.db")

	seed, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE users (legacy_id TEXT, new_id TEXT, rank INTEGER)`,
		`INSERT INTO users VALUES ('005OLD', '005NEW', 1), ('005NUL', NULL, 2)`,
	} {
		if _, err := seed.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec %q: %v", stmt, err)
		}
	}
	seed.Close()

	r, err := Open(ctx, "sqlite", dsn, "SELECT legacy_id, new_id, rank FROM users ORDER BY rank")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	if diff := cmp.Diff([]string{"legacy_id", "new_id", "rank"}, r.Schema().Names()); diff != "" {
		t.Fatalf("columns (-want +got):\n%s", diff)
	}
	var got [][]string
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, row.Values)
	}
	want := [][]string{{"005OLD", "005NEW", "1"}, {"005NUL", "", "2"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("rows (-want +got):\n%s", diff)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "nosuch", "x", "SELECT 1"); err == nil {
		t.Fatalf("Open with unknown driver succeeded")
	}
}
