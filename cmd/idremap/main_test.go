package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"idremap/internal/config"
)

/*
helpers
*/

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

// fixture writes a small job with one lookup and returns the job path and
// the output directory.
func fixture(t *testing.T) (jobPath, outDir string) {
	t.Helper()
	dir := t.TempDir()
	outDir = filepath.Join(dir, "out")
	in := writeFile(t, dir, "Cases.csv", "Id,OwnerId\nc1,U1\nc2,U2\n")
	users := writeFile(t, dir, "User.csv", "Legacy,Id\nU1,005A\n")
	jobPath = writeFile(t, dir, "job.yaml", `job: cases
run:
  chunk_size: 1000
  record_id_field: Id
input:
  path: "`+in+`"
lookups:
  user:
    source: { path: "`+users+`" }
    key: [Legacy]
    value: [Id]
fields:
  - source: [OwnerId]
    resolver: user
    track_unmapped: true
outputs:
  dir: "`+outDir+`"
`)
	return jobPath, outDir
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetArgs(append([]string{"--env-file=", "--log-format=console"}, args...))
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if out != "idremap dev\n" {
		t.Fatalf("version output = %q", out)
	}
}

func TestValidate(t *testing.T) {
	jobPath, _ := fixture(t)

	out, _, err := execute(t, "validate", "--config", jobPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "configuration is valid") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, _, err = execute(t, "validate", "--config", jobPath, "--print")
	if err != nil {
		t.Fatalf("validate --print: %v", err)
	}
	for _, want := range []string{"job: cases", "chunk_size: 1000", "resolver: user"} {
		if !strings.Contains(out, want) {
			t.Fatalf("printed job missing %q:\n%s", want, out)
		}
	}
}

func TestValidate_Invalid(t *testing.T) {
	dir := t.TempDir()
	jobPath := writeFile(t, dir, "bad.yaml", "job: bad\nfields:\n  - source: [OwnerId]\n    resolver: nope\n")

	_, stderr, err := execute(t, "validate", "--config", jobPath)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(stderr, `unknown lookup or resolver "nope"`) {
		t.Fatalf("issues not printed: %q", stderr)
	}
}

func TestRun(t *testing.T) {
	jobPath, outDir := fixture(t)

	out, _, err := execute(t, "run", "--config", jobPath, "--chunk-size", "1")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "2 rows in 2 chunks") {
		t.Fatalf("unexpected run summary: %q", out)
	}
	b, err := os.ReadFile(filepath.Join(outDir, "Cases_mapped.csv"))
	if err != nil {
		t.Fatalf("read main output: %v", err)
	}
	if got, want := string(b), "Id,OwnerId\nc1,005A\nc2,\n"; got != want {
		t.Fatalf("main output = %q, want %q", got, want)
	}
	if _, err := os.Stat(filepath.Join(outDir, "OwnerId_unmapped.csv")); err != nil {
		t.Fatalf("detail report missing: %v", err)
	}
}

func TestRun_DryRunFlag(t *testing.T) {
	jobPath, outDir := fixture(t)

	if _, _, err := execute(t, "run", "--config", jobPath, "--dry-run"); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "Cases_mapped.csv")); !os.IsNotExist(err) {
		t.Fatalf("main output written on dry run (stat err %v)", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "Cases_SummaryReport.csv")); err != nil {
		t.Fatalf("summary missing: %v", err)
	}
}

func TestResolve(t *testing.T) {
	jobPath, _ := fixture(t)

	out, _, err := execute(t, "resolve", "--config", jobPath, "user", "u1", "U2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if want := "u1\t005A\nU2\t" + missMarker + "\n"; out != want {
		t.Fatalf("resolve output = %q, want %q", out, want)
	}
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "Accounts.csv", "\uFEFFId;Name\n001A;Acme\n001B;Beta\n001C;Gamma\n")

	out, _, err := execute(t, "inspect", p, "--rows", "2")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{
		"bom:       true",
		"delimiter: ';'",
		"header:    Id | Name",
		"row 2:     Id=001B | Name=Beta",
		"rows:      3",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("inspect output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "row 3:") {
		t.Fatalf("printed more sample rows than asked:\n%s", out)
	}
}

// TestApplyRuntime_Env checks that IDREMAP_CHUNK_SIZE and
// IDREMAP_LOOKUP_WORKERS fill a job that leaves them out, and that a job
// value wins over the environment.
func TestApplyRuntime_Env(t *testing.T) {
	t.Setenv("IDREMAP_CHUNK_SIZE", "7")
	t.Setenv("IDREMAP_LOOKUP_WORKERS", "3")

	bare := writeFile(t, t.TempDir(), "job.yaml", "job: bare\n")
	j, err := config.Load(bare, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	applyRuntime(j)
	if j.Run.ChunkSize != 7 || j.Run.LookupWorkers != 3 {
		t.Fatalf("chunk_size=%d lookup_workers=%d, want 7 and 3", j.Run.ChunkSize, j.Run.LookupWorkers)
	}
	if j.Run.TransformWorkers <= 0 {
		t.Fatalf("transform_workers = %d, want the CPU default", j.Run.TransformWorkers)
	}

	jobPath, _ := fixture(t)
	j, err = config.Load(jobPath, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	applyRuntime(j)
	if j.Run.ChunkSize != 1000 {
		t.Fatalf("chunk_size = %d, want job value 1000", j.Run.ChunkSize)
	}
}

func TestPickIntGetenvInt(t *testing.T) {
	t.Setenv("IDREMAP_TEST_INT", "42")
	t.Setenv("IDREMAP_TEST_BAD", "x")

	cases := []struct {
		a, b, want int
	}{
		{5, 9, 5},
		{0, 9, 9},
		{-1, 9, 9},
	}
	for _, c := range cases {
		if got := pickInt(c.a, c.b); got != c.want {
			t.Fatalf("pickInt(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
	if got := getenvInt("IDREMAP_TEST_INT", 1); got != 42 {
		t.Fatalf("getenvInt = %d, want 42", got)
	}
	if got := getenvInt("IDREMAP_TEST_BAD", 1); got != 1 {
		t.Fatalf("getenvInt(bad) = %d, want 1", got)
	}
	if got := getenvInt("IDREMAP_TEST_UNSET", 7); got != 7 {
		t.Fatalf("getenvInt(unset) = %d, want 7", got)
	}
}
