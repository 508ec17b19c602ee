package pipeline

import "idremap/internal/transformer"

// Flag values of the row-level report.
const (
	FlagMatched   = "Y"
	FlagUnmatched = "N"
	FlagGated     = "G"
)

// FlagHeader is the flag report header: the record id column, then for each
// policy its input value, resolved value and flag.
func FlagHeader(plan *transformer.Plan) []string {
	id := plan.RecordIDField()
	if id == "" {
		id = "Record_Id"
	}
	h := []string{id}
	for _, p := range plan.Policies() {
		n := p.Name()
		h = append(h, n, n+"_Lkp", n+"_Flag")
	}
	return h
}

func flagRow(recordID string, results []transformer.Result) []string {
	row := make([]string, 1, 1+3*len(results))
	row[0] = recordID
	for _, r := range results {
		row = append(row, r.Input, r.Value, flag(r.Outcome))
	}
	return row
}

func flag(o transformer.Outcome) string {
	switch {
	case o == transformer.Matched:
		return FlagMatched
	case o.Unmatched():
		return FlagUnmatched
	case o.Gated():
		return FlagGated
	}
	return ""
}
