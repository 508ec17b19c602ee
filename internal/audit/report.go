package audit

import (
	"fmt"
	"strconv"
	"strings"

	"idremap/internal/lookup"
	"idremap/internal/transformer"
)

// Table is a rendered report ready for a sink.
type Table struct {
	// Name is the audited field for per-field tables, "" for the summary.
	Name   string
	Header []string
	Rows   [][]string
}

// Reporter renders a finished Tally. Exclusions maps a field name to the
// exclusion sets its unmapped values are checked against; SetOrder fixes the
// summary column order of the sets.
type Reporter struct {
	Tally         *Tally
	RecordIDField string
	Exclusions    map[string][]*lookup.Set
	SetOrder      []string
}

const notApplicable = "N/A"

// Summary returns one row per audited field.
func (r *Reporter) Summary() Table {
	header := []string{
		"Field", "Total", "Total_NonBlank", "Unique_Values",
		"Matched", "Matched_Unique", "Unmatched_Total", "Unmatched_Unique",
		"Gated_Total", "Gated_By_Value", "On_Unresolved", "Default_Value",
	}
	for _, s := range r.SetOrder {
		header = append(header, "In_"+s+"_Total", "In_"+s+"_Unique")
	}
	if len(r.SetOrder) > 0 {
		header = append(header, "In_Neither_Total", "In_Neither_Unique")
	}

	t := Table{Header: header}
	for _, ft := range r.Tally.Fields {
		a := ft.Acc
		p := ft.Policy
		def := ""
		if p.OnUnresolved == transformer.Substitute {
			def = p.Default
		}
		row := []string{
			a.Field, i64(a.Total), i64(a.NonBlank), strconv.Itoa(a.UniqueNonBlank()),
			i64(a.Matched), strconv.Itoa(a.UniqueMatched()), i64(a.Unmatched), strconv.Itoa(a.UniqueUnmatched()),
			i64(a.Gated), gatedByValue(a), p.OnUnresolved.String(), def,
		}
		row = append(row, r.exclusionCounts(ft)...)
		t.Rows = append(t.Rows, row)
	}
	return t
}

// exclusionCounts renders the per-set columns for ft. Fields without sets or
// without an unmapped buffer report N/A.
func (r *Reporter) exclusionCounts(ft *FieldTally) []string {
	if len(r.SetOrder) == 0 {
		return nil
	}
	out := make([]string, 0, 2*len(r.SetOrder)+2)
	sets := r.setsByName(ft.Acc.Field)
	if len(sets) == 0 || ft.Unmapped == nil {
		for range r.SetOrder {
			out = append(out, notApplicable, notApplicable)
		}
		return append(out, notApplicable, notApplicable)
	}

	type counts struct {
		total  int
		unique map[string]struct{}
	}
	in := make(map[string]*counts, len(sets))
	for name := range sets {
		in[name] = &counts{unique: map[string]struct{}{}}
	}
	neither := &counts{unique: map[string]struct{}{}}

	for _, e := range ft.Unmapped.Entries() {
		hit := false
		key := lookup.Normalize(e.Value, 0)
		for name, s := range sets {
			if s.Contains(e.Value) {
				hit = true
				in[name].total++
				in[name].unique[key] = struct{}{}
			}
		}
		if !hit {
			neither.total++
			neither.unique[key] = struct{}{}
		}
	}

	for _, name := range r.SetOrder {
		c, ok := in[name]
		if !ok {
			out = append(out, notApplicable, notApplicable)
			continue
		}
		out = append(out, strconv.Itoa(c.total), strconv.Itoa(len(c.unique)))
	}
	return append(out, strconv.Itoa(neither.total), strconv.Itoa(len(neither.unique)))
}

func (r *Reporter) setsByName(field string) map[string]*lookup.Set {
	sets := r.Exclusions[field]
	if len(sets) == 0 {
		return nil
	}
	m := make(map[string]*lookup.Set, len(sets))
	for _, s := range sets {
		m[s.Name()] = s
	}
	return m
}

// Details returns one table per field that tracks unmapped values, listing
// record id, original value and one TRUE/FALSE column per exclusion set.
func (r *Reporter) Details() []Table {
	var out []Table
	for _, ft := range r.Tally.Fields {
		if ft.Unmapped == nil {
			continue
		}
		sets := r.Exclusions[ft.Acc.Field]
		header := []string{r.idColumn(), ft.Acc.Field}
		for _, s := range sets {
			header = append(header, "In_"+s.Name())
		}
		t := Table{Name: ft.Acc.Field, Header: header}
		for _, e := range ft.Unmapped.Entries() {
			row := make([]string, 0, len(header))
			row = append(row, e.RecordID, e.Value)
			for _, s := range sets {
				row = append(row, boolCell(s.Contains(e.Value)))
			}
			t.Rows = append(t.Rows, row)
		}
		out = append(out, t)
	}
	return out
}

// Gated returns one table per field that tracks gated rows.
func (r *Reporter) Gated() []Table {
	var out []Table
	for _, ft := range r.Tally.Fields {
		if ft.GatedOut == nil {
			continue
		}
		gateCol := "Gate_Value"
		if g := ft.Policy.Gate; g != nil {
			gateCol = g.Field
		}
		t := Table{Name: ft.Acc.Field, Header: []string{r.idColumn(), ft.Acc.Field, gateCol}}
		for _, e := range ft.GatedOut.Entries() {
			t.Rows = append(t.Rows, []string{e.RecordID, e.Value, e.Gate})
		}
		out = append(out, t)
	}
	return out
}

func (r *Reporter) idColumn() string {
	if r.RecordIDField != "" {
		return r.RecordIDField
	}
	return "Id"
}

func gatedByValue(a *Accumulator) string {
	vals := a.GateValues()
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprintf("%s=%d", v, a.GatedBy[v])
	}
	return strings.Join(parts, "; ")
}

func boolCell(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func i64(n int64) string { return strconv.FormatInt(n, 10) }
