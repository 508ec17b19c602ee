package lookup

import (
	"errors"
	"testing"

	"idremap/internal/errs"
	"idremap/internal/records"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		prefixLen int
		want      string
	}{
		{"trim and fold", "  001Vq00000bXYaIIAW ", 0, "001vq00000bxyaiiaw"},
		{"prefix 15", "001Vq00000bXYaIIAW", 15, "001vq00000bxyai"},
		{"prefix longer than value", "abc", 15, "abc"},
		{"whitespace only", " \t ", 0, ""},
		{"empty", "", 15, ""},
		{"prefix cut before space", "ab cd", 3, "ab"},
		{"decomposed accent composes", "José", 0, "josé"},
		{"prefix counts characters", "ÉÉÉÉ", 2, "éé"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Normalize(tt.raw, tt.prefixLen); got != tt.want {
				t.Fatalf("Normalize(%q,%d)=%q; want %q", tt.raw, tt.prefixLen, got, tt.want)
			}
		})
	}
}

/*
TestNormalize_Idempotent checks normalize(normalize(x)) == normalize(x) for
a spread of inputs and prefix lengths.
*/
func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"", " A1 ", "001Vq00000bXYaIIAW", "ab cd ef", "José Ñ", " x ", "MiXeD@Example.COM"}
	for _, in := range inputs {
		for _, p := range []int{0, 1, 3, 15} {
			once := Normalize(in, p)
			if twice := Normalize(once, p); twice != once {
				t.Fatalf("Normalize not idempotent for %q prefix %d: %q then %q", in, p, once, twice)
			}
		}
	}
}

func TestTable_LastWriteWins(t *testing.T) {
	r := records.NewSliceReader([]string{"key", "value"}, [][]string{
		{"A1", "X1"},
		{"a1", "X2"},
	})
	tbl, stats, err := Build(r, Spec{Name: "t", Source: "mem", Key: []string{"key"}, Value: []string{"value"}})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := tbl.Resolve("A1"); got != "X2" {
		t.Fatalf("Resolve(A1)=%q; want X2", got)
	}
	if stats.Duplicates != 1 || stats.Rows != 2 {
		t.Fatalf("stats=%+v; want 2 rows, 1 duplicate", stats)
	}
}

func TestTable_PrefixTruncation(t *testing.T) {
	b := NewBuilder("contact", 1, 15)
	b.Add([]string{"001Vq00000bXYaIIAW"}, " 003NEW ")
	tbl := b.Table()

	if got := tbl.Resolve("001Vq00000bXYaI"); got != "003NEW" {
		t.Fatalf("Resolve(15-char id)=%q; want 003NEW", got)
	}
	if got := tbl.Resolve("001Vq00000bXYaIIAW"); got != "003NEW" {
		t.Fatalf("Resolve(18-char id)=%q; want 003NEW", got)
	}
}

func TestTable_EmptyKeyNeverMatches(t *testing.T) {
	b := NewBuilder("t", 1, 0)
	b.Add([]string{"   "}, "X")
	tbl := b.Table()
	if got := tbl.Resolve(""); got != "" {
		t.Fatalf("Resolve(empty)=%q; want empty", got)
	}
	if got := tbl.Resolve("  "); got != "" {
		t.Fatalf("Resolve(blank)=%q; want empty", got)
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len=%d; want 0", tbl.Len())
	}
}

func TestBuild_MissingColumnIsConfigError(t *testing.T) {
	r := records.NewSliceReader([]string{"Id", "Name"}, nil)
	_, _, err := Build(r, Spec{Name: "user", Source: "lkp/User.csv", Key: []string{"Legacy_SF_Record_ID__c"}, Value: []string{"Id"}})
	var ce *errs.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err=%v; want ConfigError", err)
	}
	if ce.Column != "Legacy_SF_Record_ID__c" || ce.Source != "lkp/User.csv" {
		t.Fatalf("ConfigError=%+v; want column and source named", ce)
	}
}

func TestTable_CompositeKeyAndValue(t *testing.T) {
	users := records.NewSliceReader([]string{"digital_prod_Id", "Email", "Name"}, [][]string{
		{"005A", "Jane@Example.com", "Jane Doe"},
		{"005B", "", "No Mail"},
	})
	first, _, err := Build(users, Spec{Name: "digital", Key: []string{"digital_prod_Id"}, Value: []string{"Email", "Name"}})
	if err != nil {
		t.Fatalf("Build digital: %v", err)
	}
	merge, _, err := Build(records.NewSliceReader([]string{"Email", "Name", "merge_Id"}, [][]string{
		{"jane@example.com", "JANE DOE", "005NEW"},
	}), Spec{Name: "email_name", Key: []string{"Email", "Name"}, Value: []string{"merge_Id"}})
	if err != nil {
		t.Fatalf("Build email_name: %v", err)
	}

	c := NewChain(first, merge)
	if got := c.Resolve("005a"); got != "005NEW" {
		t.Fatalf("chain composite Resolve=%q; want 005NEW", got)
	}
	if got := first.Resolve("005B"); got != "" {
		t.Fatalf("partial composite value=%q; want empty", got)
	}
}

type countingResolver struct {
	calls int
	m     map[string]string
}

func (c *countingResolver) Resolve(raw string) string {
	c.calls++
	return c.m[raw]
}

func TestChain_ShortCircuits(t *testing.T) {
	a := &countingResolver{m: map[string]string{"old": "mid"}}
	b := &countingResolver{m: map[string]string{"mid": "new", "": "bogus"}}
	c := NewChain(a, b)

	if got := c.Resolve("old"); got != "new" {
		t.Fatalf("Resolve(old)=%q; want new", got)
	}
	if got := c.Resolve("missing"); got != "" {
		t.Fatalf("Resolve(missing)=%q; want empty", got)
	}
	if b.calls != 1 {
		t.Fatalf("second hop called %d times; want 1", b.calls)
	}
}

func TestFallback_DeclaredOrderWins(t *testing.T) {
	schema := records.NewSchema([]string{"OwnerId", "Email", "Name"})
	row := records.Row{Schema: schema, Values: []string{"old1", "a@b.com", "Ann"}}

	byID := ValueMap("by_id", map[string]string{"old1": "FROM_ID"})
	byEmail := ValueMap("by_email", map[string]string{"a@b.com": "FROM_EMAIL"})

	f := NewFallback(
		Alternative{Extract: Fields("OwnerId"), Resolver: byID},
		Alternative{Extract: Fields("Email"), Resolver: byEmail},
	)
	if got := f.ResolveRow(row, "old1"); got != "FROM_ID" {
		t.Fatalf("ResolveRow=%q; want FROM_ID", got)
	}

	rev := NewFallback(
		Alternative{Extract: Fields("Email"), Resolver: byEmail},
		Alternative{Extract: Fields("OwnerId"), Resolver: byID},
	)
	if got := rev.ResolveRow(row, "old1"); got != "FROM_EMAIL" {
		t.Fatalf("reversed ResolveRow=%q; want FROM_EMAIL", got)
	}

	miss := records.Row{Schema: schema, Values: []string{"zzz", "a@b.com", "Ann"}}
	if got := f.ResolveRow(miss, "zzz"); got != "FROM_EMAIL" {
		t.Fatalf("fallthrough ResolveRow=%q; want FROM_EMAIL", got)
	}
}

func TestFallback_ExtractorsReadOriginalRow(t *testing.T) {
	schema := records.NewSchema([]string{"A", "B"})
	row := records.Row{Schema: schema, Values: []string{"k", "b"}}
	first := ValueMap("first", map[string]string{})
	second := &countingResolver{m: map[string]string{"b": "ok"}}

	f := NewFallback(
		Alternative{Resolver: first},
		Alternative{Extract: Fields("B"), Resolver: second},
	)
	if got := f.ResolveRow(row, "k"); got != "ok" {
		t.Fatalf("ResolveRow=%q; want ok", got)
	}
}

func TestIdentityAndConstant(t *testing.T) {
	if got := (Identity{}).Resolve(" x "); got != "x" {
		t.Fatalf("Identity=%q", got)
	}
	c := Constant{Value: "001UNITY"}
	if got := c.Resolve("anything"); got != "001UNITY" {
		t.Fatalf("Constant=%q", got)
	}
	if got := c.Resolve("  "); got != "" {
		t.Fatalf("Constant(blank)=%q; want empty", got)
	}
}

func TestSet_UsesOwnPrefix(t *testing.T) {
	r := records.NewSliceReader([]string{"Id"}, [][]string{{"001Vq00000bXYaIIAW"}, {""}})
	s, err := LoadSet(r, "rfpd", "mem", "Id", 15)
	if err != nil {
		t.Fatalf("LoadSet: %v", err)
	}
	if !s.Contains("001VQ00000BXYAI") {
		t.Fatalf("Contains(15-char upper)=false")
	}
	if s.Contains("") {
		t.Fatalf("Contains(empty)=true")
	}
	if s.Len() != 1 {
		t.Fatalf("Len=%d; want 1", s.Len())
	}
	var nilSet *Set
	if nilSet.Contains("x") {
		t.Fatalf("nil set Contains=true")
	}
}
