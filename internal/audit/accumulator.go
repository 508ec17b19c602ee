// Package audit accumulates what happened to every field of every row and
// renders the run's summary and detail reports.
//
// Counters are additive and the unique sets are unions, so partial tallies
// built by parallel workers merge into the same totals regardless of how the
// input was chunked.
package audit

import (
	"sort"

	"github.com/zeebo/xxh3"

	"idremap/internal/lookup"
	"idremap/internal/transformer"
)

// hashSet holds 64-bit hashes of normalized values. Only cardinality is ever
// reported, so the values themselves are not kept.
type hashSet map[uint64]struct{}

func (s hashSet) add(v string) { s[xxh3.HashString(lookup.Normalize(v, 0))] = struct{}{} }

func (s hashSet) union(o hashSet) {
	for k := range o {
		s[k] = struct{}{}
	}
}

// Accumulator holds the counters of one audited field.
type Accumulator struct {
	Field string

	Total         int64
	NonBlank      int64
	Matched       int64
	Unmatched     int64
	Gated         int64
	GatedNonBlank int64
	// GatedBy counts gated rows per canonical gate value.
	GatedBy  map[string]int64
	Outcomes map[transformer.Outcome]int64

	nonBlank  hashSet
	matched   hashSet
	unmatched hashSet
}

// NewAccumulator returns an empty accumulator for field.
func NewAccumulator(field string) *Accumulator {
	return &Accumulator{
		Field:     field,
		GatedBy:   map[string]int64{},
		Outcomes:  map[transformer.Outcome]int64{},
		nonBlank:  hashSet{},
		matched:   hashSet{},
		unmatched: hashSet{},
	}
}

// Observe records one row's result. Gated rows count toward the non-blank
// totals when their input was non-blank but never toward matched or
// unmatched.
func (a *Accumulator) Observe(res transformer.Result) {
	a.Total++
	a.Outcomes[res.Outcome]++
	if res.Input != "" {
		a.NonBlank++
		a.nonBlank.add(res.Input)
	}
	switch {
	case res.Outcome.Gated():
		a.Gated++
		a.GatedBy[res.GateValue]++
		if res.Input != "" {
			a.GatedNonBlank++
		}
	case res.Outcome == transformer.Matched:
		a.Matched++
		a.matched.add(res.Input)
	case res.Outcome.Unmatched():
		a.Unmatched++
		a.unmatched.add(res.Input)
	}
}

// Merge folds o into a.
func (a *Accumulator) Merge(o *Accumulator) {
	a.Total += o.Total
	a.NonBlank += o.NonBlank
	a.Matched += o.Matched
	a.Unmatched += o.Unmatched
	a.Gated += o.Gated
	a.GatedNonBlank += o.GatedNonBlank
	for k, v := range o.GatedBy {
		a.GatedBy[k] += v
	}
	for k, v := range o.Outcomes {
		a.Outcomes[k] += v
	}
	a.nonBlank.union(o.nonBlank)
	a.matched.union(o.matched)
	a.unmatched.union(o.unmatched)
}

// UniqueNonBlank is the number of distinct non-blank inputs.
func (a *Accumulator) UniqueNonBlank() int { return len(a.nonBlank) }

// UniqueMatched is the number of distinct inputs that resolved.
func (a *Accumulator) UniqueMatched() int { return len(a.matched) }

// UniqueUnmatched is the number of distinct inputs that did not resolve.
func (a *Accumulator) UniqueUnmatched() int { return len(a.unmatched) }

// Balanced reports whether every non-blank, non-gated row was classified as
// either matched or unmatched.
func (a *Accumulator) Balanced() bool {
	return a.Matched+a.Unmatched == a.NonBlank-a.GatedNonBlank
}

// GateValues returns the gate values seen, sorted.
func (a *Accumulator) GateValues() []string {
	out := make([]string, 0, len(a.GatedBy))
	for k := range a.GatedBy {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Entry is one exported record reference.
type Entry struct {
	RecordID string
	Value    string
	Gate     string
}

// Buffer is an append-only list of entries in input order.
type Buffer struct {
	entries []Entry
}

func (b *Buffer) Append(e Entry) { b.entries = append(b.entries, e) }

// Entries returns the buffered entries. The slice must not be modified.
func (b *Buffer) Entries() []Entry {
	if b == nil {
		return nil
	}
	return b.entries
}

func (b *Buffer) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// Merge appends o after b's entries.
func (b *Buffer) Merge(o *Buffer) {
	if o == nil {
		return
	}
	b.entries = append(b.entries, o.entries...)
}

// FieldTally is the audit state of one policy.
type FieldTally struct {
	Policy   *transformer.Policy
	Acc      *Accumulator
	Unmapped *Buffer // nil unless the policy tracks unmapped values
	GatedOut *Buffer // nil unless the policy tracks gated rows
}

// Tally is the audit state of a whole policy list, in policy order.
type Tally struct {
	Fields []*FieldTally
}

// NewTally returns an empty tally for policies.
func NewTally(policies []*transformer.Policy) *Tally {
	t := &Tally{Fields: make([]*FieldTally, len(policies))}
	for i, p := range policies {
		ft := &FieldTally{Policy: p, Acc: NewAccumulator(p.Name())}
		if p.TrackUnmapped {
			ft.Unmapped = &Buffer{}
		}
		if p.TrackGated {
			ft.GatedOut = &Buffer{}
		}
		t.Fields[i] = ft
	}
	return t
}

// Observe records the results of one row; results are in policy order.
func (t *Tally) Observe(recordID string, results []transformer.Result) {
	for i, res := range results {
		ft := t.Fields[i]
		ft.Acc.Observe(res)
		if ft.Unmapped != nil && res.Outcome.Unmatched() {
			ft.Unmapped.Append(Entry{RecordID: recordID, Value: res.Input})
		}
		if ft.GatedOut != nil && res.Outcome.Gated() {
			ft.GatedOut.Append(Entry{RecordID: recordID, Value: res.Input, Gate: res.GateValue})
		}
	}
}

// Merge folds o into t. Buffers keep order: o's entries follow t's, so
// partial tallies must be merged in input order.
func (t *Tally) Merge(o *Tally) {
	for i, ft := range t.Fields {
		of := o.Fields[i]
		ft.Acc.Merge(of.Acc)
		if ft.Unmapped != nil {
			ft.Unmapped.Merge(of.Unmapped)
		}
		if ft.GatedOut != nil {
			ft.GatedOut.Merge(of.GatedOut)
		}
	}
}
