package job

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"

	"idremap/internal/config"
	"idremap/internal/errs"
)

/*
fixtures
*/

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	rows, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(b), "\uFEFF"))).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}

// caseJob migrates OwnerId through a user lookup with a default, blanks it
// for RFPD records and checks misses against an inactive-user list.
func caseJob(t *testing.T) (*config.Job, string) {
	t.Helper()
	src := t.TempDir()
	out := t.TempDir()

	input := write(t, src, "CaseSurveys.csv",
		"Id,OwnerId,RecordType\n"+
			"r1,U1,Standard\n"+
			"r2,U9,Standard\n"+
			"r3,,Standard\n"+
			"r4,U1,rfpd\n")
	users := write(t, src, "User.csv", "Legacy,Id\nU1,005A\n")
	inactive := write(t, src, "inactive.txt", "U9\n")

	j := &config.Job{
		Job: "case_surveys",
		Run: config.RunConfig{
			ChunkSize:        2,
			TransformWorkers: 2,
			LookupWorkers:    2,
			RecordIDField:    "Id",
			MaxFaultLog:      5,
		},
		Input: config.SourceSpec{Path: input},
		Lookups: map[string]config.LookupSpec{
			"user": {Source: config.SourceSpec{Path: users}, Key: []string{"Legacy"}, Value: []string{"Id"}},
		},
		Exclusions: map[string]config.ExclusionSpec{
			"inactive": {Source: config.SourceSpec{Path: inactive}},
		},
		Fields: []config.FieldSpec{{
			Source:        []string{"OwnerId"},
			Resolver:      "user",
			OnUnresolved:  "default",
			Default:       "005DEF",
			TrackUnmapped: true,
			TrackGated:    true,
			Exclusions:    []string{"inactive"},
			Gate: &config.GateSpec{
				Field: "RecordType",
				Rules: []config.GateRule{{Values: []string{"RFPD"}, Action: "blank"}},
			},
		}},
		Outputs: config.Outputs{
			Dir:     out,
			Main:    config.SinkSpec{Path: "{input}_mapped.csv", Encoding: "utf-8"},
			Flags:   config.SinkSpec{Path: "{input}_DetailReport.csv", Encoding: "utf-8-sig"},
			Summary: config.SinkSpec{Path: "{input}_SummaryReport.csv", Encoding: "utf-8-sig"},
			Detail:  config.SinkSpec{Path: "{field}_unmapped.csv", Encoding: "utf-8-sig"},
			Gated:   config.SinkSpec{Path: "{field}_gated.csv", Encoding: "utf-8-sig"},
		},
	}
	return j, out
}

func TestRun_EndToEnd(t *testing.T) {
	j, out := caseJob(t)

	sum, err := Run(context.Background(), zaptest.NewLogger(t), j, "run-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.RunID != "run-1" || sum.Result.Rows != 4 || sum.Result.Chunks != 2 || sum.Result.Written != 4 {
		t.Fatalf("unexpected summary: %+v / %+v", sum, sum.Result)
	}
	if len(sum.Unbalanced) != 0 {
		t.Fatalf("unbalanced fields: %v", sum.Unbalanced)
	}

	wantMain := [][]string{
		{"Id", "OwnerId", "RecordType"},
		{"r1", "005A", "Standard"},
		{"r2", "005DEF", "Standard"},
		{"r3", "", "Standard"},
		{"r4", "", "rfpd"},
	}
	if diff := cmp.Diff(wantMain, readCSV(t, filepath.Join(out, "CaseSurveys_mapped.csv"))); diff != "" {
		t.Fatalf("main output mismatch (-want +got):\n%s", diff)
	}

	wantFlags := [][]string{
		{"Id", "OwnerId", "OwnerId_Lkp", "OwnerId_Flag"},
		{"r1", "U1", "005A", "Y"},
		{"r2", "U9", "005DEF", "N"},
		{"r3", "", "", ""},
		{"r4", "U1", "", "G"},
	}
	if diff := cmp.Diff(wantFlags, readCSV(t, filepath.Join(out, "CaseSurveys_DetailReport.csv"))); diff != "" {
		t.Fatalf("flag report mismatch (-want +got):\n%s", diff)
	}

	summary := readCSV(t, filepath.Join(out, "CaseSurveys_SummaryReport.csv"))
	if len(summary) != 2 {
		t.Fatalf("summary rows = %d, want header + 1", len(summary))
	}
	wantSummary := []string{
		"OwnerId", "4", "3", "2",
		"1", "1", "1", "1",
		"1", "RFPD=1", "default", "005DEF",
		"1", "1", "0", "0",
	}
	if diff := cmp.Diff(wantSummary, summary[1]); diff != "" {
		t.Fatalf("summary row mismatch (-want +got):\n%s", diff)
	}
	if got := summary[0][12]; got != "In_inactive_Total" {
		t.Fatalf("summary header[12] = %q", got)
	}

	wantDetail := [][]string{
		{"Id", "OwnerId", "In_inactive"},
		{"r2", "U9", "TRUE"},
	}
	if diff := cmp.Diff(wantDetail, readCSV(t, filepath.Join(out, "OwnerId_unmapped.csv"))); diff != "" {
		t.Fatalf("detail mismatch (-want +got):\n%s", diff)
	}

	wantGated := [][]string{
		{"Id", "OwnerId", "RecordType"},
		{"r4", "U1", "RFPD"},
	}
	if diff := cmp.Diff(wantGated, readCSV(t, filepath.Join(out, "OwnerId_gated.csv"))); diff != "" {
		t.Fatalf("gated mismatch (-want +got):\n%s", diff)
	}

	roles := map[string]int{}
	for _, o := range sum.Outputs {
		roles[o.Role]++
	}
	if diff := cmp.Diff(map[string]int{"main": 1, "flags": 1, "summary": 1, "detail": 1, "gated": 1}, roles); diff != "" {
		t.Fatalf("outputs mismatch (-want +got):\n%s", diff)
	}
}

// TestRun_DryRun checks that the main output is skipped while the audit
// outputs are still written.
func TestRun_DryRun(t *testing.T) {
	j, out := caseJob(t)
	j.Run.DryRun = true

	sum, err := Run(context.Background(), zaptest.NewLogger(t), j, "")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.RunID == "" {
		t.Fatalf("expected a generated run id")
	}
	if sum.Result.Written != 0 || sum.Result.Rows != 4 {
		t.Fatalf("rows=%d written=%d, want 4 and 0", sum.Result.Rows, sum.Result.Written)
	}
	if _, err := os.Stat(filepath.Join(out, "CaseSurveys_mapped.csv")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("main output should not exist on dry run, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(out, "CaseSurveys_SummaryReport.csv")); err != nil {
		t.Fatalf("summary missing on dry run: %v", err)
	}
}

func TestRun_ChunkSizeInvariance(t *testing.T) {
	var summaries [][][]string
	for _, size := range []int{1, 3, 100} {
		j, out := caseJob(t)
		j.Run.ChunkSize = size
		if _, err := Run(context.Background(), zaptest.NewLogger(t), j, "inv"); err != nil {
			t.Fatalf("chunk %d: Run: %v", size, err)
		}
		summaries = append(summaries, readCSV(t, filepath.Join(out, "CaseSurveys_SummaryReport.csv")))
	}
	for i := 1; i < len(summaries); i++ {
		if diff := cmp.Diff(summaries[0], summaries[i]); diff != "" {
			t.Fatalf("summary differs between chunk sizes (-first +other):\n%s", diff)
		}
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(j *config.Job)
		want   string
	}{
		{
			name:   "missing lookup key column",
			mutate: func(j *config.Job) { j.Lookups["user"] = config.LookupSpec{Source: j.Lookups["user"].Source, Key: []string{"Nope"}, Value: []string{"Id"}} },
			want:   `column "Nope"`,
		},
		{
			name:   "missing source column",
			mutate: func(j *config.Job) { j.Fields[0].Source = []string{"Owner"} },
			want:   `"Owner"`,
		},
		{
			name: "misspelled fallback column",
			mutate: func(j *config.Job) {
				j.Resolvers = map[string]config.ResolverSpec{"user_any": {Fallback: []config.AlternativeSpec{
					{Resolver: "user"},
					{Fields: []string{"Owner_Emial"}, Resolver: "user"},
				}}}
				j.Fields[0].Resolver = "user_any"
			},
			want: `"Owner_Emial"`,
		},
		{
			name:   "unknown resolver",
			mutate: func(j *config.Job) { j.Fields[0].Resolver = "account" },
			want:   `unknown lookup or resolver "account"`,
		},
		{
			name:   "unreadable input",
			mutate: func(j *config.Job) { j.Input.Path = filepath.Join(t.TempDir(), "none.csv") },
			want:   "unreadable input",
		},
		{
			name: "fatal miss",
			mutate: func(j *config.Job) {
				j.Fields[0].OnUnresolved = "fatal"
				j.Fields[0].Default = ""
			},
			want: `value "U9" did not resolve`,
		},
	}
	for _, c := range cases {
		j, _ := caseJob(t)
		c.mutate(j)
		_, err := Run(context.Background(), zaptest.NewLogger(t), j, "cfg")
		if !errs.IsConfig(err) {
			t.Fatalf("%s: err = %v, want a configuration error", c.name, err)
		}
		if !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: err = %q, want it to contain %q", c.name, err, c.want)
		}
	}
}

func TestRun_SinkOpenError(t *testing.T) {
	j, _ := caseJob(t)
	j.Outputs.Main.Encoding = "latin-1"

	_, err := Run(context.Background(), zaptest.NewLogger(t), j, "sink")
	var we *errs.WriteError
	if !errors.As(err, &we) || we.Sink != "main" || we.Chunk != 0 {
		t.Fatalf("err = %v, want WriteError for main at chunk 0", err)
	}
}
