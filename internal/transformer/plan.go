package transformer

import (
	"errors"
	"fmt"
	"strings"

	"idremap/internal/errs"
	"idremap/internal/lookup"
	"idremap/internal/records"
)

// PlanOptions are the row-shaping steps around the policies.
type PlanOptions struct {
	// Drop removes input columns from the output. Policies still read them.
	Drop []string
	// Rename maps output column names to new names after policies ran.
	Rename map[string]string
	// RecordIDField identifies a record in audit exports; the first of
	// RecordIDField and RecordIDFallbacks present in the header is used.
	RecordIDField     string
	RecordIDFallbacks []string
}

type compiledPolicy struct {
	p      *Policy
	srcIdx []int
	outIdx int
}

// Plan is a policy list bound to one input header.
type Plan struct {
	in       *records.Schema
	header   []string
	copyIdx  []int // per output column: input position, -1 for a new column
	policies []compiledPolicy
	idIdx    int
	idField  string
}

// Compile binds policies to the input schema and derives the output header:
// input columns minus Drop, then policy targets that are not input columns,
// then Rename. Unknown source, gate, fallback, drop or rename columns are
// configuration errors.
func Compile(in *records.Schema, policies []*Policy, opts PlanOptions) (*Plan, error) {
	dropped := make(map[string]bool, len(opts.Drop))
	for _, d := range opts.Drop {
		if !in.Has(d) {
			return nil, &errs.ConfigError{Source: "input", Column: d, Msg: "drop: column not found in header"}
		}
		dropped[d] = true
	}

	var names []string
	var copyIdx []int
	outPos := map[string]int{}
	for i, n := range in.Names() {
		if dropped[n] {
			continue
		}
		if _, dup := outPos[n]; !dup {
			outPos[n] = len(names)
		}
		names = append(names, n)
		copyIdx = append(copyIdx, i)
	}

	plan := &Plan{in: in, idIdx: -1}
	seen := map[string]bool{}
	targets := map[string]string{}
	for _, p := range policies {
		if len(p.Source) == 0 {
			return nil, &errs.ConfigError{Field: p.Name(), Msg: "policy has no source field"}
		}
		if p.Resolver == nil {
			return nil, &errs.ConfigError{Field: p.Name(), Msg: "policy has no resolver"}
		}
		if seen[p.Name()] {
			return nil, &errs.ConfigError{Field: p.Name(), Msg: "duplicate policy field"}
		}
		seen[p.Name()] = true

		cp := compiledPolicy{p: p, srcIdx: make([]int, len(p.Source))}
		for i, s := range p.Source {
			idx, ok := in.Index(s)
			if !ok {
				return nil, &errs.ConfigError{Source: "input", Field: p.Name(), Column: s, Msg: "source column not found in header"}
			}
			cp.srcIdx[i] = idx
		}
		if p.Gate != nil && !in.Has(p.Gate.Field) {
			return nil, &errs.ConfigError{Source: "input", Field: p.Name(), Column: p.Gate.Field, Msg: "gate column not found in header"}
		}
		if cr, ok := p.Resolver.(lookup.ColumnReader); ok {
			for _, c := range cr.Columns() {
				if !in.Has(c) {
					return nil, &errs.ConfigError{Source: "input", Field: p.Name(), Column: c, Msg: "fallback column not found in header"}
				}
			}
		}

		t := p.target()
		if other, dup := targets[t]; dup {
			return nil, &errs.ConfigError{Field: p.Name(), Column: t, Msg: fmt.Sprintf("target already written by policy %q", other)}
		}
		targets[t] = p.Name()
		pos, ok := outPos[t]
		if !ok {
			pos = len(names)
			outPos[t] = pos
			names = append(names, t)
			copyIdx = append(copyIdx, -1)
		}
		cp.outIdx = pos
		plan.policies = append(plan.policies, cp)
	}

	for from, to := range opts.Rename {
		pos, ok := outPos[from]
		if !ok {
			return nil, &errs.ConfigError{Source: "output", Column: from, Msg: "rename: column not found"}
		}
		if other, clash := outPos[to]; clash && other != pos {
			return nil, &errs.ConfigError{Source: "output", Column: to, Msg: fmt.Sprintf("rename %s: target already exists (drop it first)", from)}
		}
		names[pos] = to
	}
	plan.header = names
	plan.copyIdx = copyIdx

	for _, f := range append([]string{opts.RecordIDField}, opts.RecordIDFallbacks...) {
		if f == "" {
			continue
		}
		if idx, ok := in.Index(f); ok {
			plan.idIdx, plan.idField = idx, f
			break
		}
	}
	if plan.idIdx < 0 {
		for _, cp := range plan.policies {
			if cp.p.TrackUnmapped || cp.p.TrackGated {
				return nil, &errs.ConfigError{Source: "input", Field: cp.p.Name(), Column: opts.RecordIDField, Msg: "record id column not found; required to export unmapped or gated records"}
			}
		}
	}
	return plan, nil
}

// Header is the output header.
func (p *Plan) Header() []string {
	out := make([]string, len(p.header))
	copy(out, p.header)
	return out
}

// Policies returns the policies in evaluation order.
func (p *Plan) Policies() []*Policy {
	out := make([]*Policy, len(p.policies))
	for i, cp := range p.policies {
		out[i] = cp.p
	}
	return out
}

// RecordIDField names the input column used as record id ("" when none).
func (p *Plan) RecordIDField() string { return p.idField }

// RecordID returns the row's record id ("" when the plan has none).
func (p *Plan) RecordID(row records.Row) string {
	if p.idIdx < 0 {
		return ""
	}
	return strings.TrimSpace(row.At(p.idIdx))
}

// Apply builds the output row and fills results (len(results) must equal the
// number of policies). Policies read only input values, so their order does
// not change the outcome.
//
// A panic inside one policy is confined to that field: it is returned as a
// RowFault and the field is handled as unresolved. The only error that stops
// the run is a miss under a Fatal policy, reported as errs.ResolutionError.
func (p *Plan) Apply(row records.Row, results []Result) ([]string, []*errs.RowFault, error) {
	out := make([]string, len(p.header))
	for i, src := range p.copyIdx {
		if src >= 0 {
			out[i] = row.At(src)
		}
	}

	var faults []*errs.RowFault
	for i, cp := range p.policies {
		res, err := safeApply(cp, row)
		if err != nil {
			var u errUnresolved
			if !errors.As(err, &u) {
				faults = append(faults, &errs.RowFault{Line: row.Line, Field: cp.p.Name(), Err: err})
				if in := sourceValue(row, cp.srcIdx); in == "" {
					res, err = Result{Outcome: PassthroughBlank}, nil
				} else {
					res, err = cp.p.unresolved(in)
				}
			}
			if err != nil {
				return nil, faults, &errs.ResolutionError{Field: cp.p.Name(), RecordID: p.RecordID(row), Value: res.Input}
			}
		}
		results[i] = res
		out[cp.outIdx] = res.Value
	}
	return out, faults, nil
}

func safeApply(cp compiledPolicy, row records.Row) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return cp.p.apply(row, cp.srcIdx)
}
