package lookup

import (
	"strings"

	"idremap/internal/records"
)

// Chain resolves through each hop in order, feeding every hop the previous
// hop's output. An empty intermediate result stops the chain.
type Chain struct {
	hops []Resolver
}

// NewChain composes hops. With one hop it behaves like that hop.
func NewChain(hops ...Resolver) *Chain {
	return &Chain{hops: hops}
}

func (c *Chain) Resolve(raw string) string {
	v := raw
	for _, h := range c.hops {
		v = h.Resolve(v)
		if v == "" {
			return ""
		}
	}
	return v
}

// RowResolver resolves a field using the whole input row. value is the
// field's own source value.
type RowResolver interface {
	ResolveRow(row records.Row, value string) string
}

type valueResolver struct{ r Resolver }

func (v valueResolver) ResolveRow(_ records.Row, value string) string { return v.r.Resolve(value) }

// OnValue adapts a Resolver to resolve the field's own source value.
func OnValue(r Resolver) RowResolver { return valueResolver{r: r} }

// Extractor derives a lookup key from the original input row.
type Extractor func(row records.Row, value string) string

// SourceValue extracts the field's own source value.
func SourceValue(_ records.Row, value string) string { return value }

// Fields extracts one field, or a composite key from several. A composite
// with any blank part extracts as "".
func Fields(names ...string) Extractor {
	if len(names) == 1 {
		name := names[0]
		return func(row records.Row, _ string) string { return row.Get(name) }
	}
	return func(row records.Row, _ string) string {
		parts := make([]string, len(names))
		for i, n := range names {
			parts[i] = strings.TrimSpace(row.Get(n))
			if parts[i] == "" {
				return ""
			}
		}
		return records.Join(parts...)
	}
}

// Alternative is one step of a Fallback. Columns lists the input columns
// Extract reads, so they can be checked against the input header.
type Alternative struct {
	Extract  Extractor
	Resolver Resolver
	Columns  []string
}

// FieldsAlternative resolves the value of names (a composite key when there
// are several) through r.
func FieldsAlternative(r Resolver, names ...string) Alternative {
	return Alternative{Extract: Fields(names...), Resolver: r, Columns: append([]string(nil), names...)}
}

// ColumnReader is a RowResolver that reads input columns besides the
// field's own source value.
type ColumnReader interface {
	Columns() []string
}

// Fallback tries alternatives in declared order and returns the first
// non-empty result. Each alternative reads the original row, never a previous
// alternative's output.
type Fallback struct {
	alts []Alternative
}

// NewFallback returns a Fallback over alts. A nil Extract reads the source
// value.
func NewFallback(alts ...Alternative) *Fallback {
	out := make([]Alternative, len(alts))
	for i, a := range alts {
		if a.Extract == nil {
			a.Extract = SourceValue
		}
		out[i] = a
	}
	return &Fallback{alts: out}
}

// Columns returns the input columns read by the alternatives, in first-use
// order.
func (f *Fallback) Columns() []string {
	var out []string
	seen := map[string]bool{}
	for _, a := range f.alts {
		for _, c := range a.Columns {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

func (f *Fallback) ResolveRow(row records.Row, value string) string {
	for _, a := range f.alts {
		key := a.Extract(row, value)
		if strings.TrimSpace(key) == "" {
			continue
		}
		if v := a.Resolver.Resolve(key); v != "" {
			return v
		}
	}
	return ""
}
