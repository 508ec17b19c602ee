package datasource

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"idremap/internal/config"
	"idremap/internal/records"
)

/*
helpers
*/

func drain(t *testing.T, r records.Reader) (header []string, rows [][]string) {
	t.Helper()
	defer r.Close()
	header = r.Schema().Names()
	for {
		row, err := r.Next()
		if errors.Is(err, io.EOF) {
			return header, rows
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		rows = append(rows, append([]string(nil), row.Values...))
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestOpenReader_CSV(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "User.csv", "Legacy;Id\nU1;005A\n")
	r, err := OpenReader(context.Background(), config.SourceSpec{
		Path:    p,
		Options: config.Options{"comma": ";"},
	})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	hdr, rows := drain(t, r)
	if diff := cmp.Diff([]string{"Legacy", "Id"}, hdr); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"U1", "005A"}}, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenReader_List(t *testing.T) {
	t.Parallel()

	p := writeFile(t, "inactive.txt", "# inactive users\n005A\n\n005B\n")
	r, err := OpenReader(context.Background(), config.SourceSpec{Path: p})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	hdr, rows := drain(t, r)
	if diff := cmp.Diff([]string{DefaultListColumn}, hdr); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"005A"}, {"005B"}}, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestOpenReader_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := OpenReader(context.Background(), config.SourceSpec{
		Path: filepath.Join(t.TempDir(), "missing.csv"),
	})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want os.ErrNotExist", err)
	}
}

func TestOpenReader_SQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "lkp.db")
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	for _, stmt := range []string{
		`CREATE TABLE accounts (legacy TEXT, id TEXT)`,
		`INSERT INTO accounts VALUES ('A1', '001X')`,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("exec: %v", err)
		}
	}
	db.Close()

	r, err := OpenReader(ctx, config.SourceSpec{
		Kind:  "sqlite",
		DSN:   dsn,
		Query: "SELECT legacy, id FROM accounts",
	})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	hdr, rows := drain(t, r)
	if diff := cmp.Diff([]string{"legacy", "id"}, hdr); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{{"A1", "001X"}}, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestDriverFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		spec config.SourceSpec
		want string
		ok   bool
	}{
		{config.SourceSpec{Kind: "postgres"}, "pgx", true},
		{config.SourceSpec{Kind: "MSSQL"}, "sqlserver", true},
		{config.SourceSpec{Kind: "mysql", Options: config.Options{"driver": "custom"}}, "custom", true},
		{config.SourceSpec{Path: "x.csv"}, "", false},
	}
	for _, c := range cases {
		got, ok := DriverFor(c.spec)
		if got != c.want || ok != c.ok {
			t.Fatalf("DriverFor(%+v) = %q,%v; want %q,%v", c.spec, got, ok, c.want, c.ok)
		}
	}
}

func TestOpenReader_Unsupported(t *testing.T) {
	t.Parallel()

	if _, err := OpenReader(context.Background(), config.SourceSpec{Kind: "parquet", Path: "x"}); err == nil {
		t.Fatalf("expected error for unsupported kind")
	}
	if _, err := OpenReader(context.Background(), config.SourceSpec{Kind: "csv"}); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestOpenReader_URL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exports/User.csv" {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, "Legacy,Id\nU1,005A\nU2,005B\n")
	}))
	defer srv.Close()
	ctx := context.Background()

	r, err := OpenReader(ctx, config.SourceSpec{Path: srv.URL + "/exports/User.csv?sig=abc"})
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	_, rows := drain(t, r)
	if diff := cmp.Diff([][]string{{"U1", "005A"}, {"U2", "005B"}}, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}

	_, err = OpenReader(ctx, config.SourceSpec{Path: srv.URL + "/exports/Missing.csv", Options: config.Options{"retries": 0}})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing remote err = %v, want os.ErrNotExist", err)
	}
}
